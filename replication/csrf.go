package replication

import (
	"bytes"
	"io"
	"regexp"
)

const (
	csrfKeyPrefix = "csrf-"
	csrfMarker    = "csrf-token"
)

var csrfContent = regexp.MustCompile(`content="([^"]*)"`)

func csrfKey(token string) string {
	return csrfKeyPrefix + token
}

// ExtractCSRFToken returns the content attribute of the first line of
// body containing "csrf-token", e.g. from
//
//	<meta name="csrf-token" content="abc" />
//
// A body without such a line, or with an empty content, does not
// match. Reading stops after limit bytes when limit is positive.
func ExtractCSRFToken(body io.Reader, limit int64) (string, bool, error) {
	if limit > 0 {
		body = io.LimitReader(body, limit)
	}

	b, err := io.ReadAll(body)
	if err != nil {
		return "", false, newError(ParseError, "read response body", err)
	}

	for line := range bytes.Lines(b) {
		if !bytes.Contains(line, []byte(csrfMarker)) {
			continue
		}
		if m := csrfContent.FindSubmatch(line); m != nil && len(m[1]) > 0 {
			return string(m[1]), true, nil
		}
	}
	return "", false, nil
}

// substituteToken returns a copy of params with the authenticity token
// replaced.
func substituteToken(params *Params, token string) *Params {
	c := params.Clone()
	c.Set(authenticityTokenParam, token)
	return c
}
