package metrics_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/prophezy/oracle-resolver/internal/metrics"
)

func TestRegistry_Counters(t *testing.T) {
	r := metrics.New()

	r.ObserveResolution(true, "Yes")
	r.ObserveResolution(false, "No")
	r.ObserveResolution(false, "No")
	r.IncFallback("ledger_error")
	r.AddSkippedLogs("MarketCreated", 3)
	r.AddSkippedLogs("MarketCreated", 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Resolutions.WithLabelValues("on_chain", "Yes")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.Resolutions.WithLabelValues("off_chain", "No")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Fallbacks.WithLabelValues("ledger_error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.SkippedLogs.WithLabelValues("MarketCreated")))
}

func TestRegistry_NilSafe(t *testing.T) {
	var r *metrics.Registry
	assert.NotPanics(t, func() {
		r.ObserveResolution(true, "Yes")
		r.IncChallenge()
		r.ObserveHTTP("GET", "/health", 200, time.Millisecond)
	})
}

func TestRegistry_Handler(t *testing.T) {
	r := metrics.New()
	r.IncChallenge()
	r.ObserveHTTP("GET", "/health", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(body, "oracle_challenges_total 1"))
	assert.Contains(t, body, `oracle_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestRegistry_Jobs(t *testing.T) {
	r := metrics.New()
	r.ObserveJob("reconcile", "ok")
	r.ObserveJob("reconcile", "ok")
	r.ObserveJob("archive", "error")
	r.AddArchived("resolutions", 12)
	r.AddArchived("challenges", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.JobRuns.WithLabelValues("reconcile", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.JobRuns.WithLabelValues("archive", "error")))
	assert.Equal(t, 12.0, testutil.ToFloat64(r.Archived.WithLabelValues("resolutions")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.Archived))
}
