package telemetry

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RecordsWorkflowActivity(t *testing.T) {
	t.Parallel()

	m := New()
	m.WorkflowRun("ok")
	m.WorkflowRun("ok")
	m.WorkflowRun("conflict")
	m.StageRun("started", "ok", 20*time.Millisecond)
	m.Conflict()
	m.RateLimited()

	if got := testutil.ToFloat64(m.workflowRuns.WithLabelValues("ok")); got != 2 {
		t.Fatalf("workflow_runs_total{ok}=%v", got)
	}
	if got := testutil.ToFloat64(m.stageRuns.WithLabelValues("started", "ok")); got != 1 {
		t.Fatalf("workflow_stages_total=%v", got)
	}
	if got := testutil.ToFloat64(m.conflicts); got != 1 {
		t.Fatalf("idempotency_conflicts_total=%v", got)
	}
	if got := testutil.ToFloat64(m.rateLimited); got != 1 {
		t.Fatalf("checkout_rate_limited_total=%v", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := New()
	m.WorkflowRun("error")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if rr.Code != 200 {
		t.Fatalf("status=%d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(body), `workflow_runs_total{result="error"} 1`) {
		t.Fatalf("metrics output missing counter:\n%s", body)
	}
}
