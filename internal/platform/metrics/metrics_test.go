package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveComparison(t *testing.T) {
	m := New()
	m.ObserveComparison("ready", 2*time.Millisecond)
	m.ObserveComparison("ready", time.Millisecond)
	m.ObserveComparison("insufficient_data", time.Millisecond)

	if got := testutil.ToFloat64(m.comparisons.WithLabelValues("ready")); got != 2 {
		t.Errorf("expected 2 ready comparisons, got %v", got)
	}
	if got := testutil.ToFloat64(m.comparisons.WithLabelValues("insufficient_data")); got != 1 {
		t.Errorf("expected 1 insufficient comparison, got %v", got)
	}
}

func TestObserveFetch(t *testing.T) {
	m := New()
	m.ObserveFetch("sheet", nil, time.Second, 42)
	m.ObserveFetch("sheet", errors.New("timeout"), time.Second, 0)

	if got := testutil.ToFloat64(m.sourceFetches.WithLabelValues("sheet", "ok")); got != 1 {
		t.Errorf("expected 1 ok fetch, got %v", got)
	}
	if got := testutil.ToFloat64(m.sourceFetches.WithLabelValues("sheet", "error")); got != 1 {
		t.Errorf("expected 1 failed fetch, got %v", got)
	}
	if got := testutil.ToFloat64(m.records); got != 42 {
		t.Errorf("expected records gauge 42, got %v", got)
	}
}

func TestObserveCacheAndSkipped(t *testing.T) {
	m := New()
	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveCache(true)
	m.ObserveSkippedRows("bad_date", 3)
	m.ObserveSkippedRows("missing_id", 0)

	if got := testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")); got != 2 {
		t.Errorf("expected 2 hits, got %v", got)
	}
	if got := testutil.ToFloat64(m.skippedRows.WithLabelValues("bad_date")); got != 3 {
		t.Errorf("expected 3 skipped rows, got %v", got)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/ok", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/missing", func(c echo.Context) error { return echo.NewHTTPError(http.StatusNotFound, "nope") })
	e.GET("/metrics", m.Handler())

	for _, path := range []string{"/ok", "/ok", "/missing"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("/ok", "GET", "200")); got != 2 {
		t.Errorf("expected 2 requests to /ok, got %v", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("/missing", "GET", "404")); got != 1 {
		t.Errorf("expected 1 404, got %v", got)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "physio_http_requests_total") {
		t.Error("expected http metrics in exposition output")
	}
}
