/*
Copyright © 2025 Cropd Authors.

Released under MIT license.
*/

package pipeline

import (
	"bytes"
	"net/http"

	"github.com/acronis/go-appkit/log"
)

// bufferedResponseWriter is an http.ResponseWriter that accumulates the
// response in memory. It is handed to the downstream handler instead of the
// real writer so that a response arriving after the execution deadline can
// be dropped.
type bufferedResponseWriter struct {
	header     http.Header
	buf        bytes.Buffer
	statusCode int
}

func newBufferedResponseWriter() *bufferedResponseWriter {
	return &bufferedResponseWriter{header: make(http.Header)}
}

// Header implements http.ResponseWriter.
func (w *bufferedResponseWriter) Header() http.Header {
	return w.header
}

// WriteHeader implements http.ResponseWriter. Only the first call is honored,
// matching the net/http behavior.
func (w *bufferedResponseWriter) WriteHeader(statusCode int) {
	if w.statusCode == 0 {
		w.statusCode = statusCode
	}
}

// Write implements http.ResponseWriter.
func (w *bufferedResponseWriter) Write(b []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	return w.buf.Write(b)
}

// WriteTo copies the buffered response to rw and returns the status code.
func (w *bufferedResponseWriter) WriteTo(rw http.ResponseWriter, logger log.FieldLogger) int {
	statusCode := w.statusCode
	if statusCode == 0 {
		statusCode = http.StatusOK
	}
	for key, values := range w.header {
		for _, value := range values {
			rw.Header().Add(key, value)
		}
	}
	rw.WriteHeader(statusCode)
	if w.buf.Len() != 0 {
		if _, err := rw.Write(w.buf.Bytes()); err != nil && logger != nil {
			logger.Error("error while writing buffered response", log.Error(err))
		}
	}
	return statusCode
}
