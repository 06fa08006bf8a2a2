package replication

import (
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

type decodedBody struct {
	enc        string
	original   io.Closer
	decoder    io.ReadCloser
	isFromPool bool
}

// brotli.Reader has no Close
type brotliWrapper struct {
	brotli.Reader
}

func (brotliWrapper) Close() error { return nil }

// zstd.Decoder.Close releases the decoder for good, pooled decoders
// stay open.
type zstdWrapper struct {
	*zstd.Decoder
}

func (zstdWrapper) Close() error { return nil }

var decoderPools = map[string]*sync.Pool{
	"gzip":    {},
	"deflate": {},
	"br":      {},
	"zstd":    {},
}

func init() {
	for enc, pool := range decoderPools {
		for range runtime.NumCPU() {
			pool.Put(newDecoder(enc))
		}
	}
}

func newDecoder(enc string) io.ReadCloser {
	switch enc {
	case "gzip":
		return new(gzip.Reader)
	case "br":
		return new(brotliWrapper)
	case "zstd":
		// synchronous stream decoding, no background goroutines
		d, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		return zstdWrapper{d}
	default:
		return flate.NewReader(nil)
	}
}

func fromPool(enc string) (io.ReadCloser, bool) {
	d, ok := decoderPools[enc].Get().(io.ReadCloser)
	return d, ok
}

func resetDecoder(decoder io.ReadCloser, original io.Reader, enc string) error {
	switch enc {
	case "gzip":
		return decoder.(*gzip.Reader).Reset(original)
	case "br":
		return decoder.(*brotliWrapper).Reset(original)
	case "zstd":
		return decoder.(zstdWrapper).Reset(original)
	default:
		return decoder.(flate.Resetter).Reset(original, nil)
	}
}

// getEncodings splits a Content-Encoding header, identity dropped.
func getEncodings(header string) []string {
	var encs []string
	for e := range strings.SplitSeq(header, ",") {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && e != "identity" {
			encs = append(encs, e)
		}
	}
	return encs
}

// decodeBody undoes the encodings of a Content-Encoding header,
// applied in order, so the last one is decoded first.
func decodeBody(body io.ReadCloser, contentEncoding string) (io.ReadCloser, error) {
	encs := getEncodings(contentEncoding)
	for _, e := range encs {
		if _, ok := decoderPools[e]; !ok {
			return nil, newError(ParseError, "decode body", fmt.Errorf("unsupported content encoding %q", e))
		}
	}

	b, err := newDecodedBody(body, encs)
	if err != nil {
		return nil, newError(ParseError, "decode body", err)
	}
	return b, nil
}

func newDecodedBody(original io.ReadCloser, encs []string) (io.ReadCloser, error) {
	if len(encs) == 0 {
		return original, nil
	}

	last := len(encs) - 1
	enc := encs[last]
	encs = encs[:last]

	decoder, isFromPool := fromPool(enc)
	if !isFromPool {
		decoder = newDecoder(enc)
	}

	if err := resetDecoder(decoder, original, enc); err != nil {
		if isFromPool {
			decoderPools[enc].Put(newDecoder(enc))
		}
		return nil, err
	}

	return newDecodedBody(decodedBody{
		enc:        enc,
		original:   original,
		decoder:    decoder,
		isFromPool: isFromPool,
	}, encs)
}

func (b decodedBody) Read(p []byte) (int, error) {
	return b.decoder.Read(p)
}

func (b decodedBody) Close() error {
	derr := b.decoder.Close()
	if b.isFromPool {
		if derr != nil {
			decoderPools[b.enc].Put(newDecoder(b.enc))
		} else {
			decoderPools[b.enc].Put(b.decoder)
		}
	}

	oerr := b.original.Close()
	if derr != nil {
		return derr
	}
	return oerr
}
