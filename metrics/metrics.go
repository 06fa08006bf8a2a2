package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Kind is the metrics backend flavour.
type Kind int

const (
	UnkownKind     Kind = 0
	CodaHaleKind   Kind = 1 << 0
	PrometheusKind Kind = 1 << 1
	AllKind             = CodaHaleKind | PrometheusKind
)

func (k Kind) String() string {
	switch k {
	case AllKind:
		return "all"
	case CodaHaleKind:
		return "codahale"
	case PrometheusKind:
		return "prometheus"
	default:
		return "unknown"
	}
}

// ParseMetricsKind parses a metrics flavour name, case insensitive.
func ParseMetricsKind(t string) Kind {
	switch strings.ToLower(t) {
	case "codahale":
		return CodaHaleKind
	case "prometheus":
		return PrometheusKind
	case "all":
		return AllKind
	default:
		return UnkownKind
	}
}

// Metrics is the generic interface that all the required backends
// should implement to be a replicator metrics compatible backend.
type Metrics interface {
	// Implements the generic metrics.
	MeasureSince(key string, start time.Time)
	IncCounter(key string)
	IncCounterBy(key string, value int64)
	UpdateGauge(key string, value float64)

	// MeasureReplication measures the round trip of a replicated
	// request, labelled with its method and the destination status.
	MeasureReplication(method string, code int, start time.Time)

	// IncReplicationErrors counts a failed replication by error
	// kind.
	IncReplicationErrors(kind string)

	RegisterHandler(path string, handler *http.ServeMux)
	Close()
}

// Options for initializing metrics collection.
type Options struct {
	// the metrics exposing format.
	Format Kind

	// Common prefix for the keys of the different
	// collected metrics.
	Prefix string

	// If set, garbage collector metrics are collected
	// in addition to the http traffic metrics.
	EnableDebugGcMetrics bool

	// If set, Go runtime metrics are collected in
	// addition to the http traffic metrics.
	EnableRuntimeMetrics bool

	// If set, the CodaHale timers use an exponentially
	// decaying sample instead of a uniform one.
	UseExpDecaySample bool

	// HistogramBuckets defines buckets into which the observations
	// are counted for histogram metrics, Prometheus only.
	HistogramBuckets []float64

	// PrometheusRegistry is the Prometheus registry that will be
	// used. If not set, a new registry is created.
	PrometheusRegistry *prometheus.Registry
}

// NewMetrics returns the backend selected by o.Format. Unknown
// formats fall back to CodaHale.
func NewMetrics(o Options) Metrics {
	switch o.Format {
	case PrometheusKind:
		return NewPrometheus(o)
	case AllKind:
		return NewAll(o)
	default:
		return NewCodaHale(o)
	}
}

func measuredMethod(m string) string {
	switch m {
	case "OPTIONS",
		"GET",
		"HEAD",
		"POST",
		"PUT",
		"PATCH",
		"DELETE":
		return m
	default:
		return "_unknownmethod_"
	}
}
