package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"feedrelay/internal/metrics"
)

func TestHandlerExposesRecordedSeries(t *testing.T) {
	metrics.RecordDelivery("batch", "delivered", 1.5)
	metrics.RecordFallback("photo", "photo")
	metrics.RecordTrigger("summarize", "too_large")
	metrics.AddBytes("download", 1024)
	metrics.SetScheduler(2, 1)

	srv := httptest.NewServer(metrics.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`feedrelay_pipeline_deliveries_total{status="delivered",strategy="batch"}`,
		`feedrelay_pipeline_fallbacks_total{chain="photo",step="photo"}`,
		`feedrelay_dispatch_triggers_total{action="summarize",decision="too_large"}`,
		`feedrelay_scheduler_in_flight 2`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("missing %s in scrape output", want)
		}
	}
}
