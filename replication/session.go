package replication

import (
	"net/url"
	"strings"
)

const sessionDelimiter = "\n--"

// SessionKey derives the store key of a user session from the named
// cookie in a raw Cookie header: the URL decoded cookie value after the
// last "\n--". ok is false when the cookie is missing, cannot be
// decoded, has no delimiter or yields an empty key.
func SessionKey(rawCookie, cookieName string) (key string, ok bool) {
	value, ok := cookieValue(rawCookie, cookieName)
	if !ok {
		return "", false
	}

	decoded, err := url.QueryUnescape(value)
	if err != nil {
		return "", false
	}

	i := strings.LastIndex(decoded, sessionDelimiter)
	if i < 0 {
		return "", false
	}

	key = decoded[i+len(sessionDelimiter):]
	return key, key != ""
}

// cookieValue returns the first value of name in a raw Cookie header.
func cookieValue(rawCookie, name string) (string, bool) {
	if name == "" {
		return "", false
	}
	for part := range strings.SplitSeq(rawCookie, ";") {
		n, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found || strings.TrimSpace(n) != name {
			continue
		}
		v = strings.TrimSpace(v)
		if len(v) > 1 && v[0] == '"' && v[len(v)-1] == '"' {
			v = v[1 : len(v)-1]
		}
		return v, true
	}
	return "", false
}
