package replication

import (
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnapshot(t *testing.T) {
	r := httptest.NewRequest("POST", "http://primary.example.org:3000/users?page=2&foo=query", strings.NewReader("foo=body&user[name]=x&authenticity_token=tok"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	r.Header.Set("Referer", "http://primary.example.org/form")
	r.Header.Set("User-Agent", "test-agent")
	r.Header.Set("Accept", "text/html")
	r.Header.Set("Accept-Encoding", "gzip, br")
	r.Header.Set("Cookie", "a=1; b=2")

	s, err := NewSnapshot(r, 1024)
	require.NoError(t, err)

	assert.Equal(t, "POST", s.Method)
	assert.Equal(t, "http", s.Scheme)
	assert.Equal(t, "primary.example.org", s.Host)
	assert.Equal(t, 3000, s.Port)
	assert.Equal(t, "/users?page=2&foo=query", s.FullPath)
	assert.Equal(t, "page=2&foo=body&user[name]=x&authenticity_token=tok", s.Params.Encode())
	assert.Equal(t, "UTF-8", s.Charset)
	assert.Equal(t, "application/x-www-form-urlencoded", s.MediaType)
	assert.Equal(t, "http://primary.example.org/form", s.Referer)
	assert.Equal(t, "test-agent", s.UserAgent)
	assert.Equal(t, "text/html", s.Accept)
	assert.Equal(t, "gzip, br", s.AcceptEncoding)
	assert.Equal(t, "a=1; b=2", s.Cookie)
	assert.Equal(t, "tok", s.AuthenticityToken)

	b, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, "foo=body&user[name]=x&authenticity_token=tok", string(b), "body must be restored")
}

func TestSnapshotScheme(t *testing.T) {
	for _, tt := range []struct {
		name      string
		target    string
		forwarded string
		tls       bool
		scheme    string
		port      int
	}{
		{"plain", "http://example.org/", "", false, "http", 80},
		{"tls", "https://example.org/", "", true, "https", 443},
		{"forwarded https", "http://example.org/", "https", false, "https", 443},
		{"forwarded list", "http://example.org/", "HTTPS, http", false, "https", 443},
		{"forwarded garbage", "http://example.org/", "ftp", false, "http", 80},
		{"forwarded http over tls", "https://example.org/", "http", true, "http", 80},
		{"explicit port", "http://example.org:8443/", "https", false, "https", 8443},
	} {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.target, nil)
			if !tt.tls {
				r.TLS = nil
			} else if r.TLS == nil {
				r.TLS = &tls.ConnectionState{}
			}
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-Proto", tt.forwarded)
			}

			s, err := NewSnapshot(r, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.scheme, s.Scheme)
			assert.Equal(t, "example.org", s.Host)
			assert.Equal(t, tt.port, s.Port)
		})
	}
}

func TestSnapshotBodyLimit(t *testing.T) {
	body := "foo=" + strings.Repeat("x", 100)
	r := httptest.NewRequest("POST", "/?q=1", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	s, err := NewSnapshot(r, 10)
	require.NoError(t, err)
	assert.Equal(t, "q=1", s.Params.Encode(), "oversized body is not captured")

	b, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, body, string(b), "oversized body must be restored")
}

func TestSnapshotIgnoresNonFormBody(t *testing.T) {
	body := `{"foo":"bar"}`
	r := httptest.NewRequest("POST", "/", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")

	s, err := NewSnapshot(r, 1024)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Params.Len())
	assert.Equal(t, "application/json", s.MediaType)

	b, _ := io.ReadAll(r.Body)
	assert.Equal(t, body, string(b))
}

func TestSnapshotBodyReadError(t *testing.T) {
	r := httptest.NewRequest("POST", "/", nil)
	r.Body = io.NopCloser(iotest.ErrReader(errors.New("broken")))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	_, err := NewSnapshot(r, 1024)
	assert.True(t, IsKind(err, ParseError))
}

func TestSnapshotQueryToken(t *testing.T) {
	r := httptest.NewRequest("DELETE", "/items/1?authenticity_token=abc", nil)
	s, err := NewSnapshot(r, 1024)
	require.NoError(t, err)
	assert.Equal(t, "abc", s.AuthenticityToken)
	assert.Equal(t, "/items/1?authenticity_token=abc", s.FullPath)
}

func TestSnapshotWithoutRequestURI(t *testing.T) {
	r, err := http.NewRequest("GET", "http://example.org/a%20b?c=d", nil)
	require.NoError(t, err)

	s, err := NewSnapshot(r, 0)
	require.NoError(t, err)
	assert.Equal(t, "/a%20b?c=d", s.FullPath)
}
