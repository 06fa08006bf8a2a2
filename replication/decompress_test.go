package replication

import (
	"bytes"
	"io"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContent = `<meta name="csrf-token" content="abc">`

func encode(t *testing.T, content []byte, enc string) []byte {
	t.Helper()
	var (
		buf bytes.Buffer
		w   io.WriteCloser
		err error
	)
	switch enc {
	case "gzip":
		w = gzip.NewWriter(&buf)
	case "deflate":
		w, err = flate.NewWriter(&buf, flate.BestSpeed)
		require.NoError(t, err)
	case "br":
		w = brotli.NewWriter(&buf)
	case "zstd":
		w, err = zstd.NewWriter(&buf, zstd.WithEncoderConcurrency(1))
		require.NoError(t, err)
	}
	_, err = w.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestDecodeBody(t *testing.T) {
	for _, tt := range []struct {
		name     string
		encoding string
		encs     []string
	}{
		{name: "identity", encoding: "", encs: nil},
		{name: "explicit identity", encoding: "identity", encs: nil},
		{name: "gzip", encoding: "gzip", encs: []string{"gzip"}},
		{name: "deflate", encoding: "deflate", encs: []string{"deflate"}},
		{name: "brotli", encoding: "br", encs: []string{"br"}},
		{name: "zstd", encoding: "zstd", encs: []string{"zstd"}},
		{name: "gzip then brotli", encoding: "gzip, br", encs: []string{"gzip", "br"}},
		{name: "zstd then gzip", encoding: "zstd, gzip", encs: []string{"zstd", "gzip"}},
		{name: "upper case", encoding: "GZIP", encs: []string{"gzip"}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			content := []byte(testContent)
			for _, e := range tt.encs {
				content = encode(t, content, e)
			}

			original := &closeRecorder{Reader: bytes.NewReader(content)}
			body, err := decodeBody(original, tt.encoding)
			require.NoError(t, err)

			got, err := io.ReadAll(body)
			require.NoError(t, err)
			assert.Equal(t, testContent, string(got))

			require.NoError(t, body.Close())
			assert.True(t, original.closed)
		})
	}
}

func TestDecodeBodyErrors(t *testing.T) {
	_, err := decodeBody(io.NopCloser(bytes.NewReader(nil)), "compress")
	assert.True(t, IsKind(err, ParseError))

	_, err = decodeBody(io.NopCloser(bytes.NewBufferString("not gzip")), "gzip")
	assert.True(t, IsKind(err, ParseError))
}

func TestGetEncodings(t *testing.T) {
	assert.Nil(t, getEncodings(""))
	assert.Equal(t, []string{"gzip", "br"}, getEncodings(" gzip ,, br "))
}
