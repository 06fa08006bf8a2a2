package net

import (
	"crypto/tls"
	"net/http"
	"net/http/httptrace"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
)

const (
	tracingTagURL = "http.url"

	defaultIdleConnTimeout = 30 * time.Second
)

// TracingRoundTripper is an http.RoundTripper that can record a
// client span for a single roundtrip.
type TracingRoundTripper interface {
	http.RoundTripper
	// Do executes the request roundtrip in a new span with the given
	// name, child of the span found in the request context, if any.
	Do(req *http.Request, spanName string) (*http.Response, error)
}

// Options are mostly passed to the http.Transport of the same
// name. Options.Timeout is used as default for all timeouts that are
// not set. Tracer can be nil to get the opentracing.NoopTracer.
type Options struct {
	// DisableKeepAlives see https://golang.org/pkg/net/http/#Transport.DisableKeepAlives
	DisableKeepAlives bool
	// DisableCompression see https://golang.org/pkg/net/http/#Transport.DisableCompression
	DisableCompression bool
	// MaxIdleConns see https://golang.org/pkg/net/http/#Transport.MaxIdleConns
	MaxIdleConns int
	// MaxIdleConnsPerHost see https://golang.org/pkg/net/http/#Transport.MaxIdleConnsPerHost
	MaxIdleConnsPerHost int
	// MaxConnsPerHost see https://golang.org/pkg/net/http/#Transport.MaxConnsPerHost
	MaxConnsPerHost int
	// MaxResponseHeaderBytes see
	// https://golang.org/pkg/net/http/#Transport.MaxResponseHeaderBytes
	MaxResponseHeaderBytes int64
	// Timeout sets all timeouts that are set to 0 to the given
	// value.
	Timeout time.Duration
	// TLSHandshakeTimeout see
	// https://golang.org/pkg/net/http/#Transport.TLSHandshakeTimeout
	TLSHandshakeTimeout time.Duration
	// IdleConnTimeout see
	// https://golang.org/pkg/net/http/#Transport.IdleConnTimeout,
	// defaults to 30s when neither it nor Timeout is set.
	IdleConnTimeout time.Duration
	// ResponseHeaderTimeout see
	// https://golang.org/pkg/net/http/#Transport.ResponseHeaderTimeout
	ResponseHeaderTimeout time.Duration
	// ExpectContinueTimeout see
	// https://golang.org/pkg/net/http/#Transport.ExpectContinueTimeout
	ExpectContinueTimeout time.Duration
	// InsecureSkipVerify disables TLS verification of the
	// destination.
	InsecureSkipVerify bool
	// Tracer
	Tracer opentracing.Tracer
}

// Transport wraps an http.Transport, closes its idle connections
// periodically and records client spans.
type Transport struct {
	tr     *http.Transport
	tracer opentracing.Tracer
	quit   chan struct{}
	once   sync.Once
}

var _ TracingRoundTripper = &Transport{}

// NewTransport creates a Transport. Call Close to stop the idle
// connection reaper.
func NewTransport(options Options) *Transport {
	if options.Tracer == nil {
		options.Tracer = &opentracing.NoopTracer{}
	}

	if options.TLSHandshakeTimeout == 0 {
		options.TLSHandshakeTimeout = options.Timeout
	}
	if options.IdleConnTimeout == 0 {
		options.IdleConnTimeout = options.Timeout
	}
	if options.IdleConnTimeout == 0 {
		options.IdleConnTimeout = defaultIdleConnTimeout
	}
	if options.ResponseHeaderTimeout == 0 {
		options.ResponseHeaderTimeout = options.Timeout
	}
	if options.ExpectContinueTimeout == 0 {
		options.ExpectContinueTimeout = options.Timeout
	}

	htransport := &http.Transport{
		Proxy:                  http.ProxyFromEnvironment,
		DisableKeepAlives:      options.DisableKeepAlives,
		DisableCompression:     options.DisableCompression,
		MaxIdleConns:           options.MaxIdleConns,
		MaxIdleConnsPerHost:    options.MaxIdleConnsPerHost,
		MaxConnsPerHost:        options.MaxConnsPerHost,
		MaxResponseHeaderBytes: options.MaxResponseHeaderBytes,
		ResponseHeaderTimeout:  options.ResponseHeaderTimeout,
		TLSHandshakeTimeout:    options.TLSHandshakeTimeout,
		IdleConnTimeout:        options.IdleConnTimeout,
		ExpectContinueTimeout:  options.ExpectContinueTimeout,
	}
	if options.InsecureSkipVerify {
		htransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	t := &Transport{
		tr:     htransport,
		tracer: options.Tracer,
		quit:   make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(options.IdleConnTimeout)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				htransport.CloseIdleConnections()
			case <-t.quit:
				return
			}
		}
	}()

	return t
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.tr.RoundTrip(req)
}

// Do runs the roundtrip in a client span named spanName and injects
// the span context into the outgoing request headers.
func (t *Transport) Do(req *http.Request, spanName string) (*http.Response, error) {
	span, ctx := opentracing.StartSpanFromContextWithTracer(req.Context(), t.tracer, spanName)
	defer span.Finish()

	ext.SpanKindRPCClient.Set(span)
	ext.HTTPMethod.Set(span, req.Method)
	span.SetTag(tracingTagURL, req.URL.String())

	req = req.WithContext(ctx)
	_ = t.tracer.Inject(span.Context(), opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(req.Header))
	req = injectClientTrace(req, span)

	span.LogKV("http_do", "start")
	rsp, err := t.tr.RoundTrip(req)
	span.LogKV("http_do", "stop")

	if err != nil {
		ext.Error.Set(span, true)
		span.LogKV("event", "error", "message", err.Error())
		return nil, err
	}

	ext.HTTPStatusCode.Set(span, uint16(rsp.StatusCode))
	return rsp, nil
}

// Close stops the idle connection reaper and closes idle
// connections. It is safe to call Close more than once.
func (t *Transport) Close() {
	t.once.Do(func() {
		close(t.quit)
		t.tr.CloseIdleConnections()
	})
}

func injectClientTrace(req *http.Request, span opentracing.Span) *http.Request {
	trace := &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) {
			span.LogKV("DNS", "start")
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			span.LogKV("DNS", "end")
		},
		ConnectStart: func(string, string) {
			span.LogKV("connect", "start")
		},
		ConnectDone: func(string, string, error) {
			span.LogKV("connect", "end")
		},
		TLSHandshakeStart: func() {
			span.LogKV("TLS", "start")
		},
		TLSHandshakeDone: func(tls.ConnectionState, error) {
			span.LogKV("TLS", "end")
		},
		GetConn: func(string) {
			span.LogKV("get_conn", "start")
		},
		GotConn: func(httptrace.GotConnInfo) {
			span.LogKV("get_conn", "end")
		},
	}
	return req.WithContext(httptrace.WithClientTrace(req.Context(), trace))
}
