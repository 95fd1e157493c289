package obs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func TestInstrumentUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Instrument)
	r.Get("/v1/artisans/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	counter := httpRequestsTotal.WithLabelValues("GET", "/v1/artisans/{id}", "418")
	before := testutil.ToFloat64(counter)
	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/artisans/"+id, nil))
		if rec.Code != http.StatusTeapot {
			t.Fatalf("unexpected status %d", rec.Code)
		}
	}
	if got := testutil.ToFloat64(counter) - before; got != 3 {
		t.Fatalf("expected 3 requests on one route label, got %v", got)
	}
}

func TestRecordDecision(t *testing.T) {
	c := AssignmentDecisions.WithLabelValues(ResultRejected, "overlapping_assignment")
	before := testutil.ToFloat64(c)
	RecordDecision(ResultRejected, "overlapping_assignment")
	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Fatalf("expected increment, got %v", got)
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := NewLogger("debug", "json"); err != nil {
		t.Fatalf("json logger: %v", err)
	}
	if _, err := NewLogger("info", "console"); err != nil {
		t.Fatalf("console logger: %v", err)
	}
	if _, err := NewLogger("chatty", "json"); err == nil {
		t.Fatalf("expected invalid level error")
	}
}

func TestTracingDisabledWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown, err := InitTracing(context.Background(), zap.NewNop(), "siteplan", "test")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
