package replication

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
)

const (
	authenticityTokenParam = "authenticity_token"
	formMediaType          = "application/x-www-form-urlencoded"
)

var defaultPorts = map[string]int{
	"http":  80,
	"https": 443,
}

// Snapshot is the replicable part of an inbound request. It is not
// modified after capture.
type Snapshot struct {
	Method string
	Scheme string
	Host   string
	Port   int
	// FullPath is the path with the raw query, as received.
	FullPath string
	// Params merges query and form body parameters, body values win.
	Params *Params

	Charset        string
	MediaType      string
	Referer        string
	UserAgent      string
	Accept         string
	AcceptEncoding string
	// Cookie is the raw Cookie header.
	Cookie string

	// AuthenticityToken is the CSRF token sent by the client, if any.
	AuthenticityToken string
}

// NewSnapshot captures r. A form body is read up to maxBody bytes and
// restored on r, so later readers observe the same stream. A larger
// body is restored too, but its parameters are not captured.
func NewSnapshot(r *http.Request, maxBody int64) (*Snapshot, error) {
	s := &Snapshot{
		Method:         r.Method,
		Scheme:         requestScheme(r),
		FullPath:       fullPath(r),
		Referer:        r.Referer(),
		UserAgent:      r.UserAgent(),
		Accept:         r.Header.Get("Accept"),
		AcceptEncoding: r.Header.Get("Accept-Encoding"),
		Cookie:         r.Header.Get("Cookie"),
	}
	s.Host, s.Port = hostPort(r.Host, s.Scheme)

	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, params, err := mime.ParseMediaType(ct)
		if err == nil {
			s.MediaType = mt
			s.Charset = params["charset"]
		}
	}

	s.Params = ParseParams(r.URL.RawQuery)

	if s.MediaType == formMediaType && r.Body != nil && r.Body != http.NoBody {
		body, complete, err := peekBody(r, maxBody)
		if err != nil {
			return nil, newError(ParseError, "read body", err)
		}
		if complete {
			s.Params.Merge(ParseParams(string(body)))
		}
	}

	s.AuthenticityToken = s.Params.String(authenticityTokenParam)
	return s, nil
}

// peekBody reads up to limit bytes of the body and puts them back in
// front of the unread rest.
func peekBody(r *http.Request, limit int64) ([]byte, bool, error) {
	if limit <= 0 {
		return nil, false, nil
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	complete := int64(len(buf)) <= limit
	r.Body = &restoredBody{
		Reader: io.MultiReader(bytes.NewReader(buf), r.Body),
		closer: r.Body,
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read request body: %w", err)
	}
	return buf, complete, nil
}

type restoredBody struct {
	io.Reader
	closer io.Closer
}

func (b *restoredBody) Close() error {
	return b.closer.Close()
}

func requestScheme(r *http.Request) string {
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		p, _, _ = strings.Cut(p, ",")
		p = strings.ToLower(strings.TrimSpace(p))
		if _, ok := defaultPorts[p]; ok {
			return p
		}
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func fullPath(r *http.Request) string {
	if r.RequestURI != "" && strings.HasPrefix(r.RequestURI, "/") {
		return r.RequestURI
	}
	return r.URL.RequestURI()
}

func hostPort(host, scheme string) (string, int) {
	h, p, err := net.SplitHostPort(host)
	if err != nil {
		return host, defaultPorts[scheme]
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return h, defaultPorts[scheme]
	}
	return h, port
}
