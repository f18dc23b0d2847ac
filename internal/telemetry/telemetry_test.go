package telemetry

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsExposition(t *testing.T) {
	m := New()
	m.RecordRequest("/linked-data", "GET", 200, 12*time.Millisecond)
	m.RecordRequest("/linked-data", "GET", 404, 3*time.Millisecond)
	m.RecordNavigation("UT")
	m.RecordRemoteCall("nldi-flowtrace", "ok")
	m.ObserveQuery(2 * time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `nldi_http_requests_total{code="200",method="GET",route="/linked-data"} 1`)
	assert.Contains(t, body, `nldi_http_requests_total{code="404",method="GET",route="/linked-data"} 1`)
	assert.Contains(t, body, `nldi_navigation_walks_total{mode="UT"} 1`)
	assert.Contains(t, body, `nldi_pygeoapi_calls_total{outcome="ok",process="nldi-flowtrace"} 1`)
	assert.Contains(t, body, "nldi_db_query_duration_seconds_count 1")
}

func TestIndependentRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a := New()
	b := New()
	a.RecordNavigation("DM")

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.NotContains(t, rec.Body.String(), `mode="DM"`)
}
