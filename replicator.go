package replicator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opentracing/opentracing-go"
	log "github.com/sirupsen/logrus"

	"github.com/zalando/replicator/logging"
	"github.com/zalando/replicator/metrics"
	"github.com/zalando/replicator/net"
	"github.com/zalando/replicator/replication"
	"github.com/zalando/replicator/store"
)

const (
	defaultShutdownTimeout   = 10 * time.Second
	defaultReadHeaderTimeout = 60 * time.Second
	defaultIdleTimeout       = 60 * time.Second
	storeCheckTimeout        = 30 * time.Second
)

// Options to start the replicator.
type Options struct {
	// Address is the network address the proxy listens on.
	Address string

	// PrimaryBackend is the URL of the primary application. Its
	// responses are returned to the clients.
	PrimaryBackend string

	// SupportListener is the network address of /metrics and
	// /healthz. Empty disables it.
	SupportListener string

	// ShutdownTimeout bounds the graceful shutdown, including
	// draining queued replications.
	ShutdownTimeout time.Duration

	// DestinationHost and DestinationPort address the backend the
	// requests are replicated to.
	DestinationHost string
	DestinationPort int

	// DestinationInsecure disables TLS verification towards the
	// destination.
	DestinationInsecure bool

	// SessionKey is the name of the session cookie.
	SessionKey string

	ReplicationWorkers   int
	ReplicationQueueSize int
	ReplicationTimeout   time.Duration
	MaxRequestBody       int64
	MaxResponseBody      int64

	// StoreKind selects redis, valkey or memory.
	StoreKind            store.Kind
	StoreHost            string
	StorePort            int
	StoreDB              string
	StoreUsername        string
	StorePassword        string
	StoreTimeout         time.Duration
	StoreMetricsInterval time.Duration

	// Store overrides the store created from the Store* options.
	Store store.Store

	// Flavour of the metrics, codahale, prometheus or both.
	MetricsFlavours        []string
	MetricsPrefix          string
	EnableRuntimeMetrics   bool
	HistogramMetricBuckets []float64

	// EnableDebugGcMetrics reports debug.GCStats, codahale only.
	EnableDebugGcMetrics bool
	// MetricsUseExpDecaySample selects exponentially decaying samples
	// for codahale timers instead of uniform ones.
	MetricsUseExpDecaySample bool

	ApplicationLogOutput      io.Writer
	ApplicationLogPrefix      string
	ApplicationLogLevel       log.Level
	ApplicationLogJSONEnabled bool
	AccessLogOutput           io.Writer
	AccessLogDisabled         bool
	AccessLogJSONEnabled      bool

	// Tracer records the replication spans. Optional.
	Tracer opentracing.Tracer
}

func (o *Options) metricsKind() metrics.Kind {
	var kind metrics.Kind
	for _, f := range o.MetricsFlavours {
		kind |= metrics.ParseMetricsKind(f)
	}
	if kind == metrics.UnkownKind {
		return metrics.CodaHaleKind
	}
	return kind
}

func (o *Options) storeOptions(m metrics.Metrics, tracer opentracing.Tracer) store.Options {
	return store.Options{
		Kind:                o.StoreKind,
		Host:                o.StoreHost,
		Port:                o.StorePort,
		DB:                  o.StoreDB,
		Username:            o.StoreUsername,
		Password:            o.StorePassword,
		Timeout:             o.StoreTimeout,
		ConnMetricsInterval: o.StoreMetricsInterval,
		Metrics:             m,
		Tracer:              tracer,
		Log:                 logging.New().WithFields(map[string]interface{}{"store": string(o.StoreKind)}),
	}
}

func newPrimaryProxy(backend string) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(backend)
	if err != nil {
		return nil, fmt.Errorf("invalid primary backend: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid primary backend: %q", backend)
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.SetXForwarded()
			pr.Out.Host = pr.In.Host
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Errorf("Failed to proxy request to the primary backend: %v", err)
			w.WriteHeader(http.StatusBadGateway)
		},
	}, nil
}

func newSupportHandler(m metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	m.RegisterHandler("/metrics", mux)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return mux
}

func checkStore(ctx context.Context, b store.Backend, kind store.Kind) {
	if b.Available(ctx) {
		log.Infof("Store %s is available", kind)
		return
	}
	log.Warnf("Store %s is not available, replications depending on it will fail", kind)
}

func listenAndServe(srv *http.Server, name string, errs chan<- error) {
	log.Infof("%s listener on %s", name, srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs <- fmt.Errorf("%s listener: %w", name, err)
	}
}

// Run starts the replicator and blocks until SIGTERM or SIGINT is
// received, then shuts down gracefully.
func Run(o Options) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sig)

	return run(o, sig)
}

func run(o Options, sig <-chan os.Signal) error {
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = defaultShutdownTimeout
	}
	if o.StoreKind == "" {
		o.StoreKind = store.RedisKind
	}

	accessLog := logging.Init(logging.Options{
		ApplicationLogPrefix:      o.ApplicationLogPrefix,
		ApplicationLogOutput:      o.ApplicationLogOutput,
		ApplicationLogLevel:       o.ApplicationLogLevel,
		ApplicationLogJSONEnabled: o.ApplicationLogJSONEnabled,
		AccessLogOutput:           o.AccessLogOutput,
		AccessLogDisabled:         o.AccessLogDisabled,
		AccessLogJSONEnabled:      o.AccessLogJSONEnabled,
	})

	primary, err := newPrimaryProxy(o.PrimaryBackend)
	if err != nil {
		return err
	}

	mtr := metrics.NewMetrics(metrics.Options{
		Format:               o.metricsKind(),
		Prefix:               o.MetricsPrefix,
		EnableRuntimeMetrics: o.EnableRuntimeMetrics,
		HistogramBuckets:     o.HistogramMetricBuckets,
		EnableDebugGcMetrics: o.EnableDebugGcMetrics,
		UseExpDecaySample:    o.MetricsUseExpDecaySample,
	})
	defer mtr.Close()

	tracer := o.Tracer
	if tracer == nil {
		tracer = &opentracing.NoopTracer{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := o.Store
	if st == nil {
		backend, err := store.New(o.storeOptions(mtr, tracer))
		if err != nil {
			return fmt.Errorf("failed to create store: %w", err)
		}
		defer backend.Close()

		checkCtx, checkCancel := context.WithTimeout(ctx, storeCheckTimeout)
		go func() {
			defer checkCancel()
			checkStore(checkCtx, backend, o.StoreKind)
		}()
		st = backend
	}

	transport := net.NewTransport(net.Options{
		Timeout:             o.ReplicationTimeout,
		MaxIdleConnsPerHost: o.ReplicationWorkers,
		InsecureSkipVerify:  o.DestinationInsecure,
		Tracer:              tracer,
	})
	defer transport.Close()

	forwarder := replication.New(replication.Options{
		Host:            o.DestinationHost,
		Port:            o.DestinationPort,
		SessionKey:      o.SessionKey,
		Store:           st,
		Transport:       transport,
		Workers:         o.ReplicationWorkers,
		QueueSize:       o.ReplicationQueueSize,
		Timeout:         o.ReplicationTimeout,
		MaxRequestBody:  o.MaxRequestBody,
		MaxResponseBody: o.MaxResponseBody,
		Metrics:         mtr,
		Log:             logging.New(),
		Tracer:          tracer,
	})

	errs := make(chan error, 2)

	srv := &http.Server{
		Addr:              o.Address,
		Handler:           logging.NewHandler(forwarder.Handler(primary), accessLog),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}
	go listenAndServe(srv, "proxy", errs)

	var support *http.Server
	if o.SupportListener != "" {
		support = &http.Server{
			Addr:              o.SupportListener,
			Handler:           newSupportHandler(mtr),
			ReadHeaderTimeout: defaultReadHeaderTimeout,
		}
		go listenAndServe(support, "support", errs)
	}

	var runErr error
	select {
	case s := <-sig:
		log.Infof("Got shutdown signal %v, shutting down", s)
	case runErr = <-errs:
		log.Errorf("Shutting down: %v", runErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), o.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Failed to shut down the proxy listener: %v", err)
	}
	if support != nil {
		if err := support.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Failed to shut down the support listener: %v", err)
		}
	}
	if err := forwarder.Close(shutdownCtx); err != nil {
		log.Errorf("Failed to drain replications: %v", err)
	}

	return runErr
}
