// Package middleware holds the per-request HTTP middleware: one log line and
// one metrics observation for every request the router sees.
//
// Both run inside chi's RequestID and Recoverer, so a panicking handler is
// still logged (as the 500 Recoverer wrote) and carries its request id.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Logger logs every finished request.
//
// FIELDS: request_id, method, path, status, duration, bytes.
// The level follows the status: 5xx Error, 4xx Warn, the rest Info, so a
// log.level of "warn" keeps only failed requests.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := statusOf(ww)
			logger.LogAttrs(r.Context(), levelFor(status), "request completed",
				slog.String("request_id", chimiddleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)),
				slog.Int("bytes", ww.BytesWritten()),
			)
		})
	}
}

// statusOf reads the status a handler sent. A handler that never called
// WriteHeader (or wrote nothing at all) answered 200.
func statusOf(ww chimiddleware.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}

func levelFor(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
