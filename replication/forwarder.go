package replication

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	"github.com/zalando/replicator/logging"
	"github.com/zalando/replicator/metrics"
	"github.com/zalando/replicator/net"
	"github.com/zalando/replicator/store"
)

const (
	DefaultHost            = "localhost"
	DefaultPort            = 8080
	DefaultSessionKey      = "rack.session"
	DefaultMaxRequestBody  = 1 << 20
	DefaultMaxResponseBody = 1 << 20

	// KeyCookies counts the destination cookies stored in session jars.
	KeyCookies = "replication.cookies"

	replicationSpanName = "replication"
	requestSpanName     = "replicate_request"
)

// Options configure a Forwarder. Zero values take the defaults.
type Options struct {
	// Host and Port address the destination backend.
	Host string
	Port int
	// SessionKey is the name of the session cookie.
	SessionKey string

	// Store keeps cookie jars and CSRF token mappings, defaults to
	// an in-memory store.
	Store store.Store
	// Transport sends the replicated requests. When it implements
	// net.TracingRoundTripper, every exchange gets a client span.
	// Defaults to a net.Transport owned and closed by the Forwarder.
	Transport http.RoundTripper

	Workers   int
	QueueSize int
	// Timeout bounds a single replication, including store calls.
	Timeout time.Duration
	// MaxRequestBody limits the inbound form body captured for
	// replication.
	MaxRequestBody int64
	// MaxResponseBody limits the destination body scanned for a CSRF
	// token.
	MaxResponseBody int64

	Metrics metrics.Metrics
	Log     logging.Logger
	Tracer  opentracing.Tracer
}

// Forwarder replicates inbound requests to the destination backend.
type Forwarder struct {
	host            string
	port            int
	sessionKey      string
	store           store.Store
	transport       http.RoundTripper
	ownTransport    *net.Transport
	maxRequestBody  int64
	maxResponseBody int64
	metrics         metrics.Metrics
	log             logging.Logger
	tracer          opentracing.Tracer
	dispatcher      *Dispatcher
	closeOnce       sync.Once
	closeErr        error
}

// New creates a Forwarder and starts its workers. Call Close to stop
// them.
func New(o Options) *Forwarder {
	if o.Host == "" {
		o.Host = DefaultHost
	}
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.SessionKey == "" {
		o.SessionKey = DefaultSessionKey
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxRequestBody == 0 {
		o.MaxRequestBody = DefaultMaxRequestBody
	}
	if o.MaxResponseBody == 0 {
		o.MaxResponseBody = DefaultMaxResponseBody
	}
	if o.Store == nil {
		o.Store = store.NewMemory()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NewVoid()
	}
	if o.Log == nil {
		o.Log = logging.New()
	}
	if o.Tracer == nil {
		o.Tracer = &opentracing.NoopTracer{}
	}

	f := &Forwarder{
		host:            o.Host,
		port:            o.Port,
		sessionKey:      o.SessionKey,
		store:           o.Store,
		transport:       o.Transport,
		maxRequestBody:  o.MaxRequestBody,
		maxResponseBody: o.MaxResponseBody,
		metrics:         o.Metrics,
		log:             o.Log,
		tracer:          o.Tracer,
	}

	if f.transport == nil {
		f.ownTransport = net.NewTransport(net.Options{
			Timeout:             o.Timeout,
			MaxIdleConnsPerHost: o.Workers,
			Tracer:              o.Tracer,
		})
		f.transport = f.ownTransport
	}

	f.dispatcher = NewDispatcher(DispatcherOptions{
		Workers:   o.Workers,
		QueueSize: o.QueueSize,
		Timeout:   o.Timeout,
		Metrics:   o.Metrics,
		Log:       o.Log,
	})

	return f
}

// Handler returns a middleware that replicates every request and then
// passes the unmodified request to next.
func (f *Forwarder) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.Replicate(r)
		next.ServeHTTP(w, r)
	})
}

// Replicate captures r and queues its replication. It returns false
// when r is not replicated. It never fails the caller, errors are
// logged and counted. The replication id and the outcome are added to
// the access log entry of r.
func (f *Forwarder) Replicate(r *http.Request) (replicated bool) {
	id := uuid.NewString()
	logging.SetAccessData(r, "replication-id", id)
	defer func() { logging.SetAccessData(r, "replicated", replicated) }()

	log := f.log.WithFields(map[string]interface{}{
		"replication-id": id,
		"method":         r.Method,
		"path":           r.URL.Path,
	})

	s, err := NewSnapshot(r, f.maxRequestBody)
	if err != nil {
		f.fail(log, err)
		return false
	}

	u, err := TranslateURI(s, f.host, f.port)
	if err != nil {
		f.fail(log, err)
		return false
	}

	if _, err := Builder(s.Method); err != nil {
		f.fail(log, err)
		return false
	}

	t := &task{
		forwarder: f,
		log:       log,
		snapshot:  s,
		uri:       u,
		state:     Built,
	}
	t.sessionKey, t.hasSession = SessionKey(s.Cookie, f.sessionKey)
	if parent := opentracing.SpanFromContext(r.Context()); parent != nil {
		t.parent = parent.Context()
	}

	return f.dispatcher.Submit(t.run)
}

func (f *Forwarder) fail(log logging.Logger, err error) {
	kind := KindOf(err)
	f.metrics.IncReplicationErrors(kind.String())

	switch kind {
	case UnsupportedMethod:
		log.Infof("Replication skipped: %v", err)
	case TransportError:
		log.Warnf("Replication failed: %v", err)
	default:
		log.Errorf("Replication failed: %v", err)
	}
}

// Close stops accepting requests and waits for queued replications
// until ctx expires. It is safe to call Close more than once.
func (f *Forwarder) Close(ctx context.Context) error {
	f.closeOnce.Do(func() {
		f.closeErr = f.dispatcher.Close(ctx)
		if f.ownTransport != nil {
			f.ownTransport.Close()
		}
	})
	return f.closeErr
}

func (f *Forwarder) roundTrip(req *http.Request) (*http.Response, error) {
	if t, ok := f.transport.(net.TracingRoundTripper); ok {
		return t.Do(req, requestSpanName)
	}
	return f.transport.RoundTrip(req)
}

// State is the progress of a single replication.
type State int

const (
	Built State = iota
	Sent
	Succeeded
	ReconcileCookies
	ReconcileCSRF
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Built:
		return "built"
	case Sent:
		return "sent"
	case Succeeded:
		return "succeeded"
	case ReconcileCookies:
		return "reconcile-cookies"
	case ReconcileCSRF:
		return "reconcile-csrf"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type task struct {
	forwarder  *Forwarder
	log        logging.Logger
	snapshot   *Snapshot
	uri        *url.URL
	sessionKey string
	hasSession bool
	parent     opentracing.SpanContext
	state      State
}

func (t *task) run(ctx context.Context) (err error) {
	f := t.forwarder

	var opts []opentracing.StartSpanOption
	if t.parent != nil {
		opts = append(opts, opentracing.FollowsFrom(t.parent))
	}
	span := f.tracer.StartSpan(replicationSpanName, opts...)
	defer span.Finish()
	ctx = opentracing.ContextWithSpan(ctx, span)

	defer func() {
		if r := recover(); r != nil {
			t.log.Errorf("Replication panic: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("replication panic: %v", r)
		}

		span.SetTag("replication.state", t.state.String())
		if err != nil {
			ext.Error.Set(span, true)
			f.fail(t.log, err)
			t.log.Debugf("Replication finished: %s after %s", Failed, t.state)
			t.state = Failed
			return
		}
		t.log.Debugf("Replication finished: %s", t.state)
	}()

	cookie, err := t.outboundCookie(ctx)
	if err != nil {
		return err
	}

	params, err := t.outboundParams(ctx)
	if err != nil {
		return err
	}

	req, err := BuildRequest(ctx, t.snapshot, t.uri, params, cookie)
	if err != nil {
		return err
	}

	start := time.Now()
	t.state = Sent
	rsp, err := f.roundTrip(req)
	if err != nil {
		return newError(TransportError, "send", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(rsp.Body, f.maxResponseBody))
		rsp.Body.Close()
	}()

	t.state = Succeeded
	f.metrics.MeasureReplication(t.snapshot.Method, rsp.StatusCode, start)

	t.state = ReconcileCookies
	if err := t.reconcileCookies(ctx, rsp); err != nil {
		return err
	}

	t.state = ReconcileCSRF
	if err := t.reconcileCSRF(ctx, rsp); err != nil {
		return err
	}

	t.state = Done
	return nil
}

// outboundCookie returns the stored jar of the session, or the raw
// inbound Cookie header when there is no session or no jar.
func (t *task) outboundCookie(ctx context.Context) (string, error) {
	if !t.hasSession {
		return t.snapshot.Cookie, nil
	}

	v, ok, err := t.forwarder.store.Get(ctx, t.sessionKey)
	if err != nil {
		return "", newError(StoreUnavailable, "get cookie jar", err)
	}
	if !ok {
		return t.snapshot.Cookie, nil
	}

	jar, err := UnmarshalCookieJar(v)
	if err != nil {
		return "", err
	}
	if len(jar) == 0 {
		return t.snapshot.Cookie, nil
	}
	return jar.Header(), nil
}

// outboundParams returns nil, meaning the snapshot parameters, unless a
// translated CSRF token is stored.
func (t *task) outboundParams(ctx context.Context) (*Params, error) {
	token := t.snapshot.AuthenticityToken
	if token == "" {
		return nil, nil
	}

	v, ok, err := t.forwarder.store.Get(ctx, csrfKey(token))
	if err != nil {
		return nil, newError(StoreUnavailable, "get csrf token", err)
	}
	if !ok || v == "" {
		return nil, nil
	}
	return substituteToken(t.snapshot.Params, v), nil
}

func (t *task) reconcileCookies(ctx context.Context, rsp *http.Response) error {
	if !t.hasSession {
		return nil
	}

	jar, errs := ParseSetCookies(rsp.Header)
	for _, err := range errs {
		t.log.Debugf("Skipping cookie: %v", err)
	}
	t.forwarder.metrics.IncCounterBy(KeyCookies, int64(len(jar)))
	if len(jar) == 0 {
		return nil
	}

	v, err := jar.Marshal()
	if err != nil {
		return newError(ParseError, "encode cookie jar", err)
	}
	if err := t.forwarder.store.Set(ctx, t.sessionKey, v); err != nil {
		return newError(StoreUnavailable, "set cookie jar", err)
	}
	return nil
}

func (t *task) reconcileCSRF(ctx context.Context, rsp *http.Response) error {
	original := t.snapshot.AuthenticityToken
	if original == "" {
		return nil
	}

	body, err := decodeBody(rsp.Body, rsp.Header.Get("Content-Encoding"))
	if err != nil {
		return t.noCSRFMatch(err)
	}
	if body != rsp.Body {
		defer body.Close()
	}

	token, ok, err := ExtractCSRFToken(body, t.forwarder.maxResponseBody)
	if err != nil {
		return t.noCSRFMatch(err)
	}
	if !ok {
		return nil
	}

	if err := t.forwarder.store.Set(ctx, csrfKey(original), token); err != nil {
		return newError(StoreUnavailable, "set csrf token", err)
	}
	return nil
}

// noCSRFMatch treats a body that cannot be decoded or read as a
// response without token. Only a cancelled or expired task fails.
func (t *task) noCSRFMatch(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newError(TransportError, "read response body", err)
	}

	t.log.Debugf("CSRF token not scanned: %v", err)
	return nil
}
