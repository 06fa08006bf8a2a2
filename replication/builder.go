package replication

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// BuildFunc creates the outbound request for a method.
type BuildFunc func(ctx context.Context, method string, u *url.URL, params *Params) (*http.Request, error)

var builders = map[string]BuildFunc{
	http.MethodGet:     bodyless,
	http.MethodDelete:  bodyless,
	http.MethodOptions: bodyless,
	http.MethodPost:    withForm,
	http.MethodPut:     withForm,
	http.MethodPatch:   withForm,
}

// Builder returns the BuildFunc for method or an UnsupportedMethod
// error.
func Builder(method string) (BuildFunc, error) {
	b, ok := builders[method]
	if !ok {
		return nil, newError(UnsupportedMethod, "build request", fmt.Errorf("method %q", method))
	}
	return b, nil
}

func bodyless(ctx context.Context, method string, u *url.URL, _ *Params) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, method, u.String(), nil)
}

func withForm(ctx context.Context, method string, u *url.URL, params *Params) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u.String(), strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", formMediaType)
	return req, nil
}

// BuildRequest creates the outbound request for s at u. params
// replaces the snapshot parameters when not nil. The Cookie header is
// set when cookie is not empty.
func BuildRequest(ctx context.Context, s *Snapshot, u *url.URL, params *Params, cookie string) (*http.Request, error) {
	build, err := Builder(s.Method)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = s.Params
	}

	req, err := build(ctx, s.Method, u, params)
	if err != nil {
		return nil, newError(InvalidDestination, "build request", err)
	}

	if s.Accept != "" {
		req.Header.Set("Accept", s.Accept)
	}
	if s.AcceptEncoding != "" {
		req.Header.Set("Accept-Encoding", s.AcceptEncoding)
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	if s.Host != "" {
		req.Host = s.Host
	}

	return req, nil
}
