package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsHandler_Smoke(t *testing.T) {
	ObserveHTTP("GET", "/tiles/{z}/{x}/{y}", 200, 0.001)
	IncTileRead("hit")
	IncTileWrite("ok")
	ObserveStoreOp("get_tile", nil, 0.0002)
	ObserveValidation("1.1", errors.New("bad"))
	IncCacheHit("lru")
	IncTileEvent("published", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, name := range []string{
		"http_requests_total",
		"mbtiles_tile_reads_total",
		"mbtiles_tile_writes_total",
		"mbtiles_store_op_duration_seconds_bucket",
		`mbtiles_validations_total{result="error",version="1.1"}`,
		`tile_cache_results_total{outcome="hit",tier="lru"}`,
		"tile_events_total",
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("metrics payload missing %s; got:\n%s", name, body)
		}
	}
}

func TestTileReadCounter_Increments(t *testing.T) {
	before := testutil.ToFloat64(tileReadsTotal.WithLabelValues("out_of_bounds"))
	IncTileRead("out_of_bounds")
	IncTileRead("out_of_bounds")
	after := testutil.ToFloat64(tileReadsTotal.WithLabelValues("out_of_bounds"))
	if after-before != 2 {
		t.Fatalf("delta=%v want 2", after-before)
	}
}
