// Package registry owns the session_id -> *session.Session map and the
// expiry min-heap that reaps sessions one hour after their last authoritative
// change, per spec.md §4.1.
//
// Grounded on the teacher's design note ("Min-heap with in-map position for
// session expiry: preserved as-is") and room.go's coarse registry-lock
// pattern (a single RWMutex over a map, readers outnumbering writers).
package registry

import (
	"container/heap"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/wavesync/syncd/internal/protocol"
	"github.com/wavesync/syncd/internal/session"
)

// ErrAlreadyExists is returned by Create when session_id is already registered.
var ErrAlreadyExists = errors.New("session already exists")

// AuditSink records session lifecycle events for the optional persistence
// layer. Nil-safe: Registry calls it only when configured.
type AuditSink interface {
	SessionCreated(sessionID string, at time.Time)
	SessionDestroyed(sessionID string, at time.Time)
	ControllerTransferred(sessionID, toClientID string, at time.Time)
}

// Registry is the coarse-locked session directory plus expiry heap.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	heap     expiryHeap
	index    map[string]*expiryEntry

	audit AuditSink

	ttl                  time.Duration
	controllerRequestTTL time.Duration
}

// Option configures a Registry beyond New's defaults.
type Option func(*Registry)

// WithSessionTTL overrides session.TTL for sessions created by this
// registry's expiry heap.
func WithSessionTTL(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.ttl = d
		}
	}
}

// WithControllerRequestTTL overrides session.ControllerRequestTTL for
// sessions created by this registry.
func WithControllerRequestTTL(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.controllerRequestTTL = d
		}
	}
}

// New constructs an empty registry. audit may be nil.
func New(audit AuditSink, opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]*session.Session),
		index:    make(map[string]*expiryEntry),
		audit:    audit,
		ttl:      session.TTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) newSessionLocked(id string) *session.Session {
	s := session.New(id)
	if r.controllerRequestTTL > 0 {
		s.SetControllerRequestTTL(r.controllerRequestTTL)
	}
	return s
}

// Get returns the session for id, if present.
func (r *Registry) Get(id string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// CreateIfAbsent returns the existing session for id, or creates and
// registers a fresh one (inserting an expiry entry) if absent. The bool
// return reports whether this call created the session.
func (r *Registry) CreateIfAbsent(id string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s, false
	}

	s := r.newSessionLocked(id)
	r.sessions[id] = s
	r.insertExpiryLocked(id, time.Now().Add(r.ttl))

	if r.audit != nil {
		r.audit.SessionCreated(id, time.Now())
	}
	slog.Info("session created", "session_id", id)
	return s, true
}

// Create fails with ErrAlreadyExists if id is already registered.
func (r *Registry) Create(id string) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return nil, ErrAlreadyExists
	}
	s := r.newSessionLocked(id)
	r.sessions[id] = s
	r.insertExpiryLocked(id, time.Now().Add(r.ttl))
	return s, nil
}

// Touch refreshes id's expiry entry to now+TTL in O(log N).
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateExpiryLocked(id, time.Now().Add(r.ttl))
}

// Delete removes id from the registry and its expiry entry.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteLocked(id)
}

func (r *Registry) deleteLocked(id string) {
	delete(r.sessions, id)
	if entry, ok := r.index[id]; ok {
		heap.Remove(&r.heap, entry.idx)
		delete(r.index, id)
	}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Each calls fn for every live session, under the registry read lock. fn
// must not call back into the registry.
func (r *Registry) Each(fn func(id string, s *session.Session)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, s := range r.sessions {
		fn(id, s)
	}
}

// SweepControllerRequests runs session.Session.SweepExpiredRequests across
// every live session and broadcasts controller_requests_update wherever a
// request expired. This periodic sweep is the only place expired requests
// are removed; Join and Leave do not sweep them.
func (r *Registry) SweepControllerRequests(now time.Time) {
	r.Each(func(_ string, s *session.Session) {
		if ev, changed := s.SweepExpiredRequests(now); changed {
			s.Broadcast(ev)
		}
	})
}

// SweepDrift runs session.Session.SweepExpiredDrift across every live
// session. cli.go's runSweeper calls it every 5 seconds.
func (r *Registry) SweepDrift(now time.Time) {
	r.Each(func(_ string, s *session.Session) {
		s.SweepExpiredDrift(now)
	})
}

// Reap pops every session whose expiry is at or before now, notifies members
// with session_closed, invokes cleanup on owned uploads via fileCleanup, and
// removes the session. Intended to run at most once per second.
func (r *Registry) Reap(now time.Time, fileCleanup session.FileCleanup) {
	var expired []*session.Session

	r.mu.Lock()
	for r.heap.Len() > 0 {
		top := r.heap[0]
		if top.expiresAt.After(now) {
			break
		}
		s, ok := r.sessions[top.id]
		if ok && s.LastUpdatedAtomic() > 0 {
			// last_updated may have been refreshed since the entry was
			// queued; re-check against the authoritative TTL before
			// evicting.
			deadline := time.UnixMilli(s.LastUpdatedAtomic()).Add(r.ttl)
			if deadline.After(now) {
				r.updateExpiryLocked(top.id, deadline)
				continue
			}
		}
		heap.Pop(&r.heap)
		delete(r.index, top.id)
		if ok {
			expired = append(expired, s)
			delete(r.sessions, top.id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		r.closeSession(s, now, fileCleanup)
	}
}

func (r *Registry) closeSession(s *session.Session, now time.Time, fileCleanup session.FileCleanup) {
	s.Broadcast(protocol.Envelope{Event: protocol.TypeSessionClosed, Payload: map[string]string{"session_id": s.ID}})

	for _, t := range firstQueueOf(s) {
		if fileCleanup != nil && isUserUpload(t.URL) {
			fileCleanup.Remove(t.URL)
		}
	}

	if r.audit != nil {
		r.audit.SessionDestroyed(s.ID, now)
	}
	slog.Info("session destroyed", "session_id", s.ID)
}

func firstQueueOf(s *session.Session) []protocol.Track {
	q, _ := s.QueueSnapshot()
	return q
}

func isUserUpload(url string) bool {
	return len(url) > len(session.UploadPrefix) &&
		url[:len(session.UploadPrefix)] == session.UploadPrefix &&
		!(len(url) >= len(session.SamplePrefix) && url[:len(session.SamplePrefix)] == session.SamplePrefix)
}

// DeleteIfEmpty removes id immediately if it currently has zero members,
// used on the last member's disconnect rather than waiting out the TTL.
func (r *Registry) DeleteIfEmpty(id string, now time.Time, fileCleanup session.FileCleanup) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok || !s.IsEmpty() {
		r.mu.Unlock()
		return
	}
	r.deleteLocked(id)
	r.mu.Unlock()

	r.closeSession(s, now, fileCleanup)
}
