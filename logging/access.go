package logging

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	dateFormat      = "02/Jan/2006:15:04:05 -0700"
	commonLogFormat = `%s - - [%s] "%s %s %s" %d %d`
	// format:
	// remote_host - - [date] "method uri protocol" status response_size "referer" "user_agent"
	combinedLogFormat = commonLogFormat + ` "%s" "%s"`
	// duration in ms and the requested host follow the combined format
	accessLogFormat = combinedLogFormat + " %d %s"
)

// fixed fields of an access entry, in the order of accessLogFormat
var accessLogKeys = []string{
	"host", "timestamp", "method", "uri", "proto",
	"status", "response-size", "referer", "user-agent",
	"duration", "requested-host",
}

var accessLogKeySet = func() map[string]bool {
	m := make(map[string]bool, len(accessLogKeys))
	for _, k := range accessLogKeys {
		m[k] = true
	}
	return m
}()

// accessLogFormatter writes the fixed fields in accessLogFormat and
// appends any additional fields as sorted key=value pairs.
type accessLogFormatter struct {
	format string
}

// AccessEntry is a single served primary request.
type AccessEntry struct {
	Request      *http.Request
	StatusCode   int
	ResponseSize int64
	Duration     time.Duration
	RequestTime  time.Time

	// AdditionalData is logged next to the fixed fields, e.g. the
	// replication id of the request. Keys of fixed fields are ignored.
	AdditionalData map[string]interface{}
}

// AccessLog writes access entries of the primary traffic.
type AccessLog struct {
	logger *logrus.Logger
}

type accessDataKey struct{}

// accessData collects the additional fields of one request while it
// is being served.
type accessData struct {
	mu     sync.Mutex
	values map[string]interface{}
}

func withAccessData(r *http.Request) (*http.Request, *accessData) {
	d := &accessData{values: make(map[string]interface{})}
	return r.WithContext(context.WithValue(r.Context(), accessDataKey{}, d)), d
}

func (d *accessData) snapshot() map[string]interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.values) == 0 {
		return nil
	}

	m := make(map[string]interface{}, len(d.values))
	for k, v := range d.values {
		m[k] = v
	}
	return m
}

// SetAccessData adds a field to the access log entry of r. It does
// nothing when r is not served through a logging handler.
func SetAccessData(r *http.Request, key string, value interface{}) {
	d, ok := r.Context().Value(accessDataKey{}).(*accessData)
	if !ok {
		return
	}

	d.mu.Lock()
	d.values[key] = value
	d.mu.Unlock()
}

func remoteHost(r *http.Request) string {
	a := r.Header.Get("X-Forwarded-For")
	if a == "" {
		a = r.RemoteAddr
	}

	// strip the port of hostname, ipv4 and ipv6 addresses
	if h, _, err := net.SplitHostPort(a); err == nil {
		a = h
	}

	if a == "" {
		return "-"
	}
	return a
}

func (f *accessLogFormatter) Format(e *logrus.Entry) ([]byte, error) {
	values := make([]interface{}, len(accessLogKeys))
	for i, key := range accessLogKeys {
		values[i] = e.Data[key]
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, f.format, values...)

	var extra []string
	for k := range e.Data {
		if !accessLogKeySet[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		fmt.Fprintf(&buf, " %s=%v", k, e.Data[k])
	}

	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func (e *AccessEntry) fields() logrus.Fields {
	f := logrus.Fields{
		"timestamp":      e.RequestTime.Format(dateFormat),
		"host":           "-",
		"method":         "",
		"uri":            "",
		"proto":          "",
		"referer":        "",
		"user-agent":     "",
		"requested-host": "",
		"status":         e.StatusCode,
		"response-size":  e.ResponseSize,
		"duration":       int64(e.Duration / time.Millisecond),
	}

	if r := e.Request; r != nil {
		f["host"] = remoteHost(r)
		f["method"] = r.Method
		f["uri"] = r.RequestURI
		f["proto"] = r.Proto
		f["referer"] = r.Referer()
		f["user-agent"] = r.UserAgent()
		f["requested-host"] = r.Host
	}

	for k, v := range e.AdditionalData {
		if !accessLogKeySet[k] {
			f[k] = v
		}
	}

	return f
}

// Log writes an access event in Apache combined log format, extended
// with the duration, the requested host and the additional data.
func (a *AccessLog) Log(entry *AccessEntry) {
	if a == nil || entry == nil {
		return
	}

	a.logger.WithFields(entry.fields()).Infoln()
}
