// Copyright 2025 Lantern Protocol

package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandlerExposesRegisteredCollectors(t *testing.T) {
	m := New()
	m.EventsAppended.Inc()
	m.AnchorPublishes.WithLabelValues("log").Inc()
	m.HeadSeq.Set(42)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "lantern_ledger_events_appended_total 1") {
		t.Fatalf("expected events_appended_total in output, got:\n%s", body)
	}
	if !strings.Contains(body, `lantern_ledger_anchor_publishes_total{backend="log"} 1`) {
		t.Fatalf("expected anchor_publishes_total labeled by backend, got:\n%s", body)
	}
	if !strings.Contains(body, "lantern_ledger_head_seq 42") {
		t.Fatalf("expected head_seq gauge, got:\n%s", body)
	}
}

func TestNewCreatesIndependentRegistries(t *testing.T) {
	a := New()
	b := New()
	a.EventsAppended.Inc()
	a.EventsAppended.Inc()
	b.EventsAppended.Inc()

	if got := testutil.ToFloat64(a.EventsAppended); got != 2 {
		t.Fatalf("expected a's counter at 2, got %v", got)
	}
	if got := testutil.ToFloat64(b.EventsAppended); got != 1 {
		t.Fatalf("expected b's counter unaffected by a, got %v", got)
	}
}
