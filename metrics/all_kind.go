package metrics

import (
	"net/http"
	"strings"
	"time"
)

// All publishes every measurement to both the Prometheus and the
// CodaHale backends.
type All struct {
	prometheus        *Prometheus
	codaHale          *CodaHale
	prometheusHandler http.Handler
	codaHaleHandler   http.Handler
}

func NewAll(o Options) *All {
	return &All{
		prometheus: NewPrometheus(o),
		codaHale:   NewCodaHale(o),
	}
}

func (a *All) MeasureSince(key string, start time.Time) {
	a.prometheus.MeasureSince(key, start)
	a.codaHale.MeasureSince(key, start)
}

func (a *All) IncCounter(key string) {
	a.prometheus.IncCounter(key)
	a.codaHale.IncCounter(key)
}

func (a *All) IncCounterBy(key string, value int64) {
	a.prometheus.IncCounterBy(key, value)
	a.codaHale.IncCounterBy(key, value)
}

func (a *All) UpdateGauge(key string, v float64) {
	a.prometheus.UpdateGauge(key, v)
	a.codaHale.UpdateGauge(key, v)
}

func (a *All) MeasureReplication(method string, code int, start time.Time) {
	a.prometheus.MeasureReplication(method, code, start)
	a.codaHale.MeasureReplication(method, code, start)
}

func (a *All) IncReplicationErrors(kind string) {
	a.prometheus.IncReplicationErrors(kind)
	a.codaHale.IncReplicationErrors(kind)
}

// RegisterHandler serves the Prometheus text format when the client
// accepts text/plain, and the CodaHale JSON format otherwise.
func (a *All) RegisterHandler(path string, handler *http.ServeMux) {
	a.prometheusHandler = a.prometheus.getHandler()
	a.codaHaleHandler = a.codaHale.getHandler(path)
	handler.Handle(path, a.newHandler())
}

func (a *All) newHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if strings.Contains(req.Header.Get("Accept"), "text/plain") {
			a.prometheusHandler.ServeHTTP(w, req)
		} else {
			a.codaHaleHandler.ServeHTTP(w, req)
		}
	})
}

func (a *All) Close() {
	a.codaHale.Close()
	a.prometheus.Close()
}
