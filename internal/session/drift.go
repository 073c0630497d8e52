package session

import (
	"time"

	"github.com/wavesync/syncd/internal/protocol"
)

// RecordDrift stores a drift sample in the per-client bounded ring, plus the
// manual-resync history when Manual is set. State-only: spec.md §6 lists no
// fan-out for drift_report.
func (s *Session) RecordDrift(clientID string, report protocol.DriftReportPayload, nowMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drift[clientID]
	if !ok {
		d = &driftState{}
		s.drift[clientID] = d
	}

	d.ring[d.next] = report.DriftS
	d.wallMs[d.next] = report.WallMs
	d.next = (d.next + 1) % DriftAvgWindow
	if d.count < DriftAvgWindow {
		d.count++
	}
	d.lastReportMs = nowMs

	if report.Manual {
		d.manualHistory = append(d.manualHistory, report)
		if len(d.manualHistory) > DriftManualHistorySize {
			d.manualHistory = d.manualHistory[len(d.manualHistory)-DriftManualHistorySize:]
		}
	}
}

// SweepExpiredDrift evicts samples and per-client states that have produced
// no report within DriftWindow. Run from the registry's periodic drift
// sweep, which cli.go's runSweeper triggers every 5 seconds.
func (s *Session) SweepExpiredDrift(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-DriftWindow).UnixMilli()
	for clientID, d := range s.drift {
		if d.lastReportMs < cutoff {
			delete(s.drift, clientID)
		}
	}
}

// AverageDrift returns the mean absolute drift across all clients whose most
// recent report is within DriftWindow, and whether any client has reported
// at all within that window. Used by the adaptive broadcaster's tick
// decision (§4.7).
func (s *Session) AverageDrift(now time.Time) (avg float64, anyRecent bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := now.Add(-DriftWindow).UnixMilli()
	var sum float64
	var n int
	for _, d := range s.drift {
		if d.count == 0 || d.lastReportMs < cutoff {
			continue
		}
		anyRecent = true
		var clientSum float64
		var clientN int
		for i := 0; i < d.count; i++ {
			if d.wallMs[i] < cutoff {
				continue
			}
			v := d.ring[i]
			if v < 0 {
				v = -v
			}
			clientSum += v
			clientN++
		}
		if clientN == 0 {
			continue
		}
		sum += clientSum / float64(clientN)
		n++
	}
	if n == 0 {
		return 0, anyRecent
	}
	return sum / float64(n), anyRecent
}

// driftSnapshotLocked builds the {client_id: latest_drift_s} map for the
// session snapshot ack payload. Caller must hold at least a read lock.
func (s *Session) driftSnapshotLocked() map[string]float64 {
	if len(s.drift) == 0 {
		return nil
	}
	out := make(map[string]float64, len(s.drift))
	for clientID, d := range s.drift {
		if d.count == 0 {
			continue
		}
		idx := (d.next - 1 + DriftAvgWindow) % DriftAvgWindow
		out[clientID] = d.ring[idx]
	}
	return out
}
