package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Iron-Ham/worklog/internal/errors"
)

func TestOperationDone(t *testing.T) {
	m := New()
	m.OperationDone("create", 3*time.Millisecond, nil)
	m.OperationDone("create", 2*time.Millisecond, nil)
	m.OperationDone("get", time.Millisecond, errors.NewNotFoundError("session", "sess_20260210T1430_a1b2"))

	tests := []struct {
		op, result string
		want       float64
	}{
		{"create", "ok", 2},
		{"get", "not_found", 1},
		{"get", "ok", 0},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(m.storeOps.WithLabelValues(tt.op, tt.result)); got != tt.want {
			t.Errorf("store_operations_total{%s,%s} = %v, want %v", tt.op, tt.result, got, tt.want)
		}
	}
	if n := testutil.CollectAndCount(m.storeDuration); n != 2 {
		t.Errorf("duration series = %d, want 2", n)
	}
}

func TestObserverCounters(t *testing.T) {
	m := New()
	m.IndexRebuilt(7)
	m.IndexRebuilt(9)
	m.LockWaited("index", 20*time.Millisecond)
	m.ItemReconciled("cleanup-stale", "closed")
	m.ItemReconciled("cleanup-stale", "closed")
	m.ItemReconciled("archive", "error")
	m.ProjectStateWritten(true)
	m.ProjectStateWritten(false)
	m.ProjectStateWritten(false)

	if got := testutil.ToFloat64(m.indexRebuilds); got != 2 {
		t.Errorf("index_rebuilds_total = %v", got)
	}
	if got := testutil.ToFloat64(m.indexEntries); got != 9 {
		t.Errorf("index_entries = %v", got)
	}
	if got := testutil.ToFloat64(m.reconcileItems.WithLabelValues("cleanup-stale", "closed")); got != 2 {
		t.Errorf("reconcile closed = %v", got)
	}
	if got := testutil.ToFloat64(m.projectStateWrites.WithLabelValues("unchanged")); got != 2 {
		t.Errorf("project state unchanged = %v", got)
	}
	if n := testutil.CollectAndCount(m.lockWait, "worklog_lock_wait_seconds"); n != 1 {
		t.Errorf("lock wait series = %d", n)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ProjectStateWritten(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `worklog_project_state_writes_total{result="written"} 1`) {
		t.Errorf("exposition missing project state counter:\n%s", body)
	}
}
