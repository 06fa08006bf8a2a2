package replication

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
)

// CookieJar holds the destination's cookies of one user session.
type CookieJar map[string]string

// Header serializes the jar as a Cookie header value, names sorted.
func (j CookieJar) Header() string {
	names := make([]string, 0, len(j))
	for n := range j {
		names = append(names, n)
	}
	slices.Sort(names)

	var b strings.Builder
	for i, n := range names {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(n)
		b.WriteByte('=')
		b.WriteString(j[n])
	}
	return b.String()
}

// Marshal encodes the jar for the store.
func (j CookieJar) Marshal() (string, error) {
	b, err := json.Marshal(map[string]string(j))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UnmarshalCookieJar decodes a jar read from the store.
func UnmarshalCookieJar(s string) (CookieJar, error) {
	var j CookieJar
	if err := json.Unmarshal([]byte(s), &j); err != nil {
		return nil, newError(ParseError, "decode cookie jar", err)
	}
	return j, nil
}

// ParseSetCookies builds a jar from the Set-Cookie headers of h. The
// first value of a name wins and attributes after ';' are dropped.
// Entries without '=' or with an empty name are skipped, they are
// reported as ParseError values.
func ParseSetCookies(h http.Header) (CookieJar, []error) {
	var (
		jar  CookieJar
		errs []error
	)
	for _, line := range h.Values("Set-Cookie") {
		pair, _, _ := strings.Cut(line, ";")
		name, value, found := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !found || name == "" {
			errs = append(errs, newError(ParseError, "parse set-cookie", fmt.Errorf("malformed entry %q", line)))
			continue
		}
		if jar == nil {
			jar = make(CookieJar)
		}
		if _, exists := jar[name]; exists {
			continue
		}
		jar[name] = strings.TrimSpace(value)
	}
	return jar, errs
}
