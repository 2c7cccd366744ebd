/*
Package middleware provides HTTP middleware for logging, error handling, and request/response tracking.
*/
package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marketpulse-labs/sentiment-backend/utils"
)

// Logger is the global structured logger
var Logger *logrus.Logger

// maxLoggedBody caps how much of a request or response body ends up in a log line.
const maxLoggedBody = 1024

// ResponseWriter captures response data for logging
type ResponseWriter struct {
	http.ResponseWriter
	status int
	body   *bytes.Buffer
}

func (rw *ResponseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *ResponseWriter) Write(b []byte) (int, error) {
	// Only retain a prefix of the body; backfill progress streams can be large.
	if rw.body.Len() < maxLoggedBody {
		rw.body.Write(b[:min(len(b), maxLoggedBody-rw.body.Len())])
	}
	return rw.ResponseWriter.Write(b)
}

// Flush forwards flushes so NDJSON progress streams stay incremental.
func (rw *ResponseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// InitLogger initializes the structured logger
func InitLogger() {
	Logger = logrus.New()
	Logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})
	Logger.SetLevel(logrus.InfoLevel)
}

// LoggingMiddleware logs HTTP requests and responses
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Reuse the caller-provided request ID so log lines correlate
		// with the X-Request-ID echoed in responses.
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = utils.GenerateRequestID()
			r.Header.Set("X-Request-ID", requestID)
		}

		// Read request body for logging
		var bodyBytes []byte
		if r.Body != nil {
			bodyBytes, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		}

		// Create response writer to capture response
		rw := &ResponseWriter{
			ResponseWriter: w,
			status:         http.StatusOK,
			body:           bytes.NewBuffer(nil),
		}

		// Process request
		next.ServeHTTP(rw, r)

		// Calculate duration
		duration := time.Since(start)

		// Log request and response
		fields := logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"query":       r.URL.RawQuery,
			"remote_addr": r.RemoteAddr,
			"user_agent":  r.UserAgent(),
			"status":      rw.status,
			"duration_ms": duration.Milliseconds(),
			"request_id":  requestID,
		}

		// Add request body if present (limit size for security)
		if len(bodyBytes) > 0 && len(bodyBytes) < maxLoggedBody {
			fields["request_body"] = string(bodyBytes)
		}

		// Add response body for errors (limit size)
		if rw.status >= 400 && rw.body.Len() > 0 && rw.body.Len() < maxLoggedBody {
			fields["response_body"] = rw.body.String()
		}

		// Log with appropriate level based on status
		switch {
		case rw.status >= 500:
			Logger.WithFields(fields).Error("Request completed with server error")
		case rw.status >= 400:
			Logger.WithFields(fields).Warn("Request completed with client error")
		default:
			Logger.WithFields(fields).Info("Request completed successfully")
		}
	})
}
