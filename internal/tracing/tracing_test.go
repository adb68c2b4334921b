package tracing_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/interviewd/internal/tracing"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestMiddleware_PropagatesSpanContext(t *testing.T) {
	var sawSpan bool
	r := chi.NewRouter()
	r.Use(tracing.Middleware)
	r.Get("/assignments/{id}", func(w http.ResponseWriter, r *http.Request) {
		sawSpan = trace.SpanFromContext(r.Context()) != nil
		w.WriteHeader(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/assignments/abc", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, sawSpan)
}

func TestInitTracer(t *testing.T) {
	tp, err := tracing.InitTracer("interviewd-test", "http://localhost:14268/api/traces")
	if assert.NoError(t, err) {
		assert.NoError(t, tp.Shutdown(t.Context()))
	}
}
