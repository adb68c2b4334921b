package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/kiranshivaraju/interviewd/internal/api/response"
	"github.com/kiranshivaraju/interviewd/internal/metrics"
)

// Recovery turns a handler panic into a 500 INTERNAL_ERROR envelope and counts
// it by route. http.ErrAbortHandler is re-raised so net/http can drop the
// connection.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			route := routeLabel(r)
			metrics.Panics.WithLabelValues(route).Inc()
			slog.Error("panic recovered",
				"panic", rec,
				"route", route,
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)
			response.Error(w, http.StatusInternalServerError,
				response.CodeInternal, "An unexpected error occurred", nil)
		}()
		next.ServeHTTP(w, r)
	})
}
