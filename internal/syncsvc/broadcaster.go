package syncsvc

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wavesync/syncd/internal/clock"
	"github.com/wavesync/syncd/internal/session"
)

// SessionSource is the subset of *registry.Registry the broadcaster needs,
// kept as an interface so it has no import-cycle dependency on registry.
type SessionSource interface {
	Each(fn func(id string, s *session.Session))
}

// Broadcaster runs the base-rate and high-drift tickers described in
// spec.md §4.7, snapshotting each session's playback state under its own
// read lock without ever mutating it.
type Broadcaster struct {
	sessions SessionSource
	clk      clock.Clock

	baseInterval      time.Duration
	highDriftInterval time.Duration
	driftThreshold    float64
	driftWindow       time.Duration
	laggyThreshold    time.Duration

	broadcastsSent *prometheus.CounterVec
}

// New builds a Broadcaster. metrics may be nil to disable counting.
func New(sessions SessionSource, clk clock.Clock, baseInterval, highDriftInterval time.Duration, driftThreshold float64, driftWindow time.Duration, broadcastsSent *prometheus.CounterVec) *Broadcaster {
	return &Broadcaster{
		sessions:          sessions,
		clk:               clk,
		baseInterval:      baseInterval,
		highDriftInterval: highDriftInterval,
		driftThreshold:    driftThreshold,
		driftWindow:       driftWindow,
		laggyThreshold:    time.Second,
		broadcastsSent:    broadcastsSent,
	}
}

// Run blocks until ctx is cancelled, driving both tickers concurrently.
func (b *Broadcaster) Run(ctx context.Context) {
	base := time.NewTicker(b.baseInterval)
	high := time.NewTicker(b.highDriftInterval)
	defer base.Stop()
	defer high.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-base.C:
			b.tick(false)
		case <-high.C:
			b.tick(true)
		}
	}
}

// tick runs one pass over every session. highDriftTick selects the
// high-drift ticker's emission rule; otherwise the base-rate rule applies.
func (b *Broadcaster) tick(highDriftTick bool) {
	now := time.Now()
	serverTimeMs := b.clk.NowMs()

	b.sessions.Each(func(id string, s *session.Session) {
		avg, anyRecent := s.AverageDrift(now)

		shouldSend := false
		kind := "base"
		if highDriftTick {
			if avg > b.driftThreshold || !anyRecent {
				shouldSend = true
				kind = "high_drift"
			}
		} else if avg < b.driftThreshold {
			shouldSend = true
		}

		if !shouldSend {
			return
		}

		s.BroadcastSyncState(serverTimeMs)
		if b.broadcastsSent != nil {
			b.broadcastsSent.WithLabelValues(kind).Inc()
		}

		if s.IsPlayingLaggy(serverTimeMs, b.laggyThreshold.Milliseconds()) {
			slog.Warn("controller device lag detected", "session_id", id)
		}
	})
}
