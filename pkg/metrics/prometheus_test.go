package metrics

import (
	"testing"

	"StockPulse/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordJobRun("price_refresh", true, 0.2)
	r.RecordJobRun("price_refresh", false, 0.1)
	r.RecordJobSkipped("price_refresh")
	r.RecordPrediction("AAPL", "comprehensive_v1", models.Buy, 78)
	r.RecordCacheResult("hit")
	r.RecordCacheResult("hit")

	if got := testutil.ToFloat64(r.jobRuns.WithLabelValues("price_refresh", "false")); got != 1 {
		t.Errorf("failed runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.cacheResults.WithLabelValues("hit")); got != 2 {
		t.Errorf("cache hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.confidence.WithLabelValues("AAPL", "comprehensive_v1")); got != 78 {
		t.Errorf("confidence gauge = %v, want 78", got)
	}
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}
