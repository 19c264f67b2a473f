package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gatherFamily(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gathering metrics: %v", err)
	}
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	return nil
}

func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	family := gatherFamily(t, name)
	if family == nil {
		return 0
	}

	for _, metric := range family.GetMetric() {
		matched := true
		for _, pair := range metric.GetLabel() {
			if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
				matched = false
				break
			}
		}
		if matched {
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestMetricsAreRegistered(t *testing.T) {
	RequestsTotal.WithLabelValues("GET", "/probe", "2xx").Inc()
	RequestDuration.WithLabelValues("GET", "/probe").Observe(0.1)
	StreamingConnections.Set(0)
	RelayTokensTotal.WithLabelValues("gemini-pro", "prompt").Add(1)

	for _, name := range []string{
		"gemini_relay_requests_total",
		"gemini_relay_request_duration_seconds",
		"gemini_relay_streaming_connections_active",
		"gemini_relay_tokens_total",
	} {
		if gatherFamily(t, name) == nil {
			t.Errorf("metric %s not registered", name)
		}
	}
}

func TestMiddlewareRecordsRequestMetrics(t *testing.T) {
	labels := map[string]string{"method": "GET", "path": "/ping", "status": "2xx"}
	before := counterValue(t, "gemini_relay_requests_total", labels)

	e := echo.New()
	e.Use(Middleware())
	e.GET("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, "pong")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	after := counterValue(t, "gemini_relay_requests_total", labels)
	if after != before+1 {
		t.Errorf("expected counter to rise by 1: before=%v after=%v", before, after)
	}
}

func TestMiddlewareClassifiesHandlerErrors(t *testing.T) {
	labels := map[string]string{"method": "GET", "path": "/boom", "status": "5xx"}
	before := counterValue(t, "gemini_relay_requests_total", labels)

	e := echo.New()
	e.Use(Middleware())
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadGateway, "upstream down")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	after := counterValue(t, "gemini_relay_requests_total", labels)
	if after != before+1 {
		t.Errorf("expected 5xx counter to rise by 1: before=%v after=%v", before, after)
	}
}
