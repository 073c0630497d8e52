package session

import (
	"testing"
	"time"

	"github.com/wavesync/syncd/internal/protocol"
)

func TestAverageDriftIgnoresClientsWithNoReports(t *testing.T) {
	s := New("sess-1")
	avg, any := s.AverageDrift(time.Now())
	if any {
		t.Fatal("expected no recent reports on a fresh session")
	}
	if avg != 0 {
		t.Fatalf("expected zero average, got %v", avg)
	}
}

func TestAverageDriftUsesAbsoluteValues(t *testing.T) {
	s := New("sess-1")
	now := time.Now()
	nowMs := now.UnixMilli()

	s.RecordDrift("client-1", protocol.DriftReportPayload{DriftS: -0.2, WallMs: nowMs}, nowMs)
	s.RecordDrift("client-2", protocol.DriftReportPayload{DriftS: 0.2, WallMs: nowMs}, nowMs)

	avg, any := s.AverageDrift(now)
	if !any {
		t.Fatal("expected recent reports")
	}
	if avg != 0.2 {
		t.Fatalf("expected average of absolute drift 0.2, got %v", avg)
	}
}

func TestAverageDriftExcludesStaleClients(t *testing.T) {
	s := New("sess-1")
	staleTime := time.Now().Add(-DriftWindow - time.Second)
	s.RecordDrift("client-1", protocol.DriftReportPayload{DriftS: 0.5}, staleTime.UnixMilli())

	avg, any := s.AverageDrift(time.Now())
	if any {
		t.Fatal("expected stale client to be excluded from AverageDrift")
	}
	if avg != 0 {
		t.Fatalf("expected zero average with no recent clients, got %v", avg)
	}
}

func TestRecordDriftRingIsBounded(t *testing.T) {
	s := New("sess-1")
	now := time.Now().UnixMilli()
	for i := 0; i < DriftAvgWindow+3; i++ {
		s.RecordDrift("client-1", protocol.DriftReportPayload{DriftS: 0.01 * float64(i)}, now)
	}
	d := s.drift["client-1"]
	if d.count != DriftAvgWindow {
		t.Fatalf("ring count: got %d, want %d", d.count, DriftAvgWindow)
	}
}

func TestRecordDriftKeepsManualHistoryBounded(t *testing.T) {
	s := New("sess-1")
	now := time.Now().UnixMilli()
	for i := 0; i < DriftManualHistorySize+4; i++ {
		s.RecordDrift("client-1", protocol.DriftReportPayload{DriftS: 0.01, Manual: true}, now)
	}
	d := s.drift["client-1"]
	if len(d.manualHistory) != DriftManualHistorySize {
		t.Fatalf("manual history length: got %d, want %d", len(d.manualHistory), DriftManualHistorySize)
	}
}

func TestSweepExpiredDriftRemovesStaleClients(t *testing.T) {
	s := New("sess-1")
	staleTime := time.Now().Add(-DriftWindow - time.Second)
	s.RecordDrift("client-1", protocol.DriftReportPayload{DriftS: 0.1}, staleTime.UnixMilli())

	s.SweepExpiredDrift(time.Now())
	if _, ok := s.drift["client-1"]; ok {
		t.Fatal("expected stale drift state to be swept")
	}
}

func TestSweepExpiredDriftKeepsFreshClients(t *testing.T) {
	s := New("sess-1")
	s.RecordDrift("client-1", protocol.DriftReportPayload{DriftS: 0.1}, time.Now().UnixMilli())

	s.SweepExpiredDrift(time.Now())
	if _, ok := s.drift["client-1"]; !ok {
		t.Fatal("expected fresh drift state to survive the sweep")
	}
}

func TestAverageDriftExcludesStaleSamplesWithinAFreshClientRing(t *testing.T) {
	s := New("sess-1")
	now := time.Now()
	staleMs := now.Add(-DriftWindow - time.Second).UnixMilli()
	freshMs := now.UnixMilli()

	// Seven stale samples (same client, reported long ago) followed by one
	// fresh report. RecordDrift's last call sets lastReportMs, so the client
	// as a whole passes the outer recency gate, but most of its ring is
	// stale and must not be averaged in.
	for i := 0; i < 7; i++ {
		s.RecordDrift("client-1", protocol.DriftReportPayload{DriftS: 1.0, WallMs: staleMs}, staleMs)
	}
	s.RecordDrift("client-1", protocol.DriftReportPayload{DriftS: 0.1, WallMs: freshMs}, freshMs)

	avg, any := s.AverageDrift(now)
	if !any {
		t.Fatal("expected the client to count as recent")
	}
	if avg != 0.1 {
		t.Fatalf("expected only the fresh sample averaged in (0.1), got %v", avg)
	}
}

func TestDriftSnapshotReportsLatestSample(t *testing.T) {
	s := New("sess-1")
	now := time.Now().UnixMilli()
	s.RecordDrift("client-1", protocol.DriftReportPayload{DriftS: 0.1}, now)
	s.RecordDrift("client-1", protocol.DriftReportPayload{DriftS: 0.3}, now)

	snap := s.Snapshot()
	if snap.Drift["client-1"] != 0.3 {
		t.Fatalf("expected latest sample 0.3, got %v", snap.Drift["client-1"])
	}
}
