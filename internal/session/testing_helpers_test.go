package session

import "github.com/wavesync/syncd/internal/protocol"

// fakeSender collects every envelope sent to it, for assertions. Mirrors the
// teacher's in-memory fake client used across channel_state_test.go.
type fakeSender struct {
	connID string
	sent   []protocol.Envelope
}

func newFakeSender(connID string) *fakeSender {
	return &fakeSender{connID: connID}
}

func (f *fakeSender) ConnID() string { return f.connID }

func (f *fakeSender) Send(ev protocol.Envelope) {
	f.sent = append(f.sent, ev)
}

func (f *fakeSender) eventTypes() []string {
	out := make([]string, len(f.sent))
	for i, ev := range f.sent {
		out[i] = ev.Event
	}
	return out
}

// join is a small convenience wrapper around Session.Join for tests that
// don't care about JoinResult.
func join(s *Session, connID, clientID, displayName string) *fakeSender {
	fs := newFakeSender(connID)
	s.Join(connID, clientID, displayName, nil, fs, nil)
	return fs
}
