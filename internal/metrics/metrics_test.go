package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObservePollTickIncrementsCounter(t *testing.T) {
	t.Helper()

	before := testutil.ToFloat64(pollTicksTotal.WithLabelValues("cameras", OutcomeHidden))
	ObservePollTick("cameras", OutcomeHidden)
	ObservePollTick("cameras", OutcomeHidden)
	after := testutil.ToFloat64(pollTicksTotal.WithLabelValues("cameras", OutcomeHidden))
	if after-before != 2 {
		t.Fatalf("counter delta = %v, want 2", after-before)
	}
}

func TestObserveStaleResponse(t *testing.T) {
	t.Helper()

	before := testutil.ToFloat64(staleResponsesTotal.WithLabelValues("timeline"))
	ObserveStaleResponse("timeline")
	if got := testutil.ToFloat64(staleResponsesTotal.WithLabelValues("timeline")); got-before != 1 {
		t.Fatalf("counter delta = %v, want 1", got-before)
	}
}
