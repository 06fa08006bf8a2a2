package replication

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateURI(t *testing.T) {
	for _, tt := range []struct {
		name     string
		scheme   string
		fullPath string
		host     string
		port     int
		want     string
	}{
		{"http default port", "http", "/", "dest", 80, "http://dest/"},
		{"https default port", "https", "/a?b=c", "dest", 443, "https://dest/a?b=c"},
		{"http other port", "http", "/", "localhost", 4568, "http://localhost:4568/"},
		{"https on http port", "https", "/", "dest", 80, "https://dest:80/"},
		{"http on https port", "http", "/x", "dest", 443, "http://dest:443/x"},
		{"query kept verbatim", "http", "/p?a[]=1&b=%20", "dest", 8080, "http://dest:8080/p?a[]=1&b=%20"},
		{"ipv6 host", "http", "/", "::1", 8080, "http://[::1]:8080/"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			u, err := TranslateURI(&Snapshot{Scheme: tt.scheme, FullPath: tt.fullPath}, tt.host, tt.port)
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.String())
		})
	}
}

func TestTranslateURIEmptyHost(t *testing.T) {
	_, err := TranslateURI(&Snapshot{Scheme: "http", FullPath: "/"}, "", 80)
	assert.True(t, IsKind(err, InvalidDestination))
}
