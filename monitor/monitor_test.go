package monitor

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMonitorGaugesAndCounters(t *testing.T) {
	m := NewMonitor("monitor_test")

	m.SetWaitingMatches(3)
	m.SetOngoingMatches(2)
	m.IncMatchesStarted()
	m.IncMatchesFinished()
	m.AddMatchesReaped(4)
	m.IncMovesSubmitted()
	m.IncRoundsResolved()
	m.IncEventsPublished()

	if got := testutil.ToFloat64(m.metrics.WaitingMatches); got != 3 {
		t.Errorf("waiting gauge = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.metrics.OngoingMatches); got != 2 {
		t.Errorf("ongoing gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.metrics.MatchesReaped); got != 4 {
		t.Errorf("reaped counter = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.metrics.MatchesStarted); got != 1 {
		t.Errorf("started counter = %v, want 1", got)
	}
}

func TestNilMonitorIsSafe(t *testing.T) {
	var m *Monitor
	m.SetWaitingMatches(1)
	m.SetOngoingMatches(1)
	m.IncMatchesStarted()
	m.IncMatchesFinished()
	m.AddMatchesReaped(1)
	m.IncMovesSubmitted()
	m.IncRoundsResolved()
	m.IncEventsPublished()
}
