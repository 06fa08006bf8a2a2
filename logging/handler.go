package logging

import (
	"net/http"
	"time"
)

type loggingWriter struct {
	writer http.ResponseWriter
	code   int
	bytes  int64
}

func (lw *loggingWriter) Write(data []byte) (count int, err error) {
	if lw.code == 0 {
		lw.code = http.StatusOK
	}

	count, err = lw.writer.Write(data)
	lw.bytes += int64(count)
	return
}

func (lw *loggingWriter) WriteHeader(code int) {
	lw.writer.WriteHeader(code)
	lw.code = code
}

func (lw *loggingWriter) Header() http.Header {
	return lw.writer.Header()
}

func (lw *loggingWriter) Flush() {
	if f, ok := lw.writer.(http.Flusher); ok {
		f.Flush()
	}
}

func (lw *loggingWriter) Unwrap() http.ResponseWriter {
	return lw.writer
}

type loggingHandler struct {
	accessLog *AccessLog
	next      http.Handler
}

// NewHandler wraps next and writes an access log entry for every
// served request. When accessLog is nil, next is returned unchanged.
func NewHandler(next http.Handler, accessLog *AccessLog) http.Handler {
	if accessLog == nil {
		return next
	}

	return &loggingHandler{accessLog: accessLog, next: next}
}

func (lh *loggingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	now := time.Now()

	lw := &loggingWriter{writer: w}
	r, data := withAccessData(r)
	lh.next.ServeHTTP(lw, r)

	if lw.code == 0 {
		lw.code = http.StatusOK
	}

	lh.accessLog.Log(&AccessEntry{
		Request:      r,
		StatusCode:   lw.code,
		ResponseSize: lw.bytes,
		Duration:     time.Since(now),
		RequestTime:  now,

		AdditionalData: data.snapshot(),
	})
}
