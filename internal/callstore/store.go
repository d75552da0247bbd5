package callstore

import (
	"sync"
	"time"
)

// Store is the in-process call record store. Merges for the same call id are
// serialized by a per-record mutex; merges for different ids proceed in
// parallel. Nothing here blocks on another leg's progress.
type Store struct {
	mu      sync.Mutex
	records map[string]*entry
	clock   func() time.Time
}

type entry struct {
	mu  sync.Mutex
	rec Record
}

func New() *Store {
	return &Store{
		records: make(map[string]*entry),
		clock:   time.Now,
	}
}

// WithClock overrides the time source; for tests.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

// Get returns a copy of the record for callID.
func (s *Store) Get(callID string) (Record, bool) {
	e := s.lookup(callID)
	if e == nil {
		return Record{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.clone(), true
}

// Linked returns a copy of the record on the other side of callID's lead.
func (s *Store) Linked(callID string) (Record, bool) {
	e := s.lookup(callID)
	if e == nil {
		return Record{}, false
	}
	e.mu.Lock()
	linkedID := e.rec.LinkedCallID
	e.mu.Unlock()
	if linkedID == "" {
		return Record{}, false
	}
	return s.Get(linkedID)
}

// Merge applies a shallow partial update to callID's record, creating it if
// absent, and returns the updated copy. Latch invariants are enforced here so
// no caller ordering can violate them.
func (s *Store) Merge(callID string, p Patch) Record {
	e := s.lookupOrCreate(callID)
	e.mu.Lock()
	defer e.mu.Unlock()
	applyPatch(&e.rec, p)
	e.rec.UpdatedAt = s.clock().UTC()
	return e.rec.clone()
}

// BeginBridgeAttempt is the orchestrator's re-entrancy guard: an atomic
// compare-and-set on BridgeAttemptStartedAt for the given call id. Only the
// first caller per lead gets true; every later call is refused regardless of
// how many readiness evaluations fire concurrently.
func (s *Store) BeginBridgeAttempt(callID string, at time.Time) bool {
	e := s.lookup(callID)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.rec.BridgeAttemptStartedAt.IsZero() {
		return false
	}
	e.rec.BridgeAttemptStartedAt = at.UTC()
	e.rec.UpdatedAt = s.clock().UTC()
	return true
}

// RemovePair garbage-collects both legs of a lead. Callers are expected to
// invoke it only once both legs are terminal and the bridge outcome is settled.
func (s *Store) RemovePair(callID string) {
	e := s.lookup(callID)
	if e == nil {
		return
	}
	e.mu.Lock()
	linkedID := e.rec.LinkedCallID
	e.mu.Unlock()

	s.mu.Lock()
	delete(s.records, callID)
	if linkedID != "" {
		delete(s.records, linkedID)
	}
	s.mu.Unlock()
}

// Len reports how many records are currently tracked.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Store) lookup(callID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[callID]
}

func (s *Store) lookupOrCreate(callID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.records[callID]; ok {
		return e
	}
	e := &entry{rec: Record{
		CallID:    callID,
		Status:    StatusInitiated,
		CreatedAt: s.clock().UTC(),
	}}
	s.records[callID] = e
	return e
}

func applyPatch(rec *Record, p Patch) {
	if p.LeadID != nil {
		rec.LeadID = *p.LeadID
	}
	if p.Role != nil {
		rec.Role = *p.Role
	}
	if p.Status != nil {
		rec.Status = *p.Status
	}
	if p.LinkedCallID != nil && rec.LinkedCallID == "" {
		// Immutable after creation.
		rec.LinkedCallID = *p.LinkedCallID
	}
	if p.Lead != nil {
		rec.Lead = *p.Lead
	}
	if p.AnsweredByMachine != nil {
		// One-way latch: a machine verdict is never downgraded to human.
		if !rec.AnsweredByMachineTrue() {
			v := *p.AnsweredByMachine
			rec.AnsweredByMachine = &v
		}
	}
	if p.ConferenceRoomID != nil {
		rec.ConferenceRoomID = *p.ConferenceRoomID
	}
	if p.Joined != nil {
		rec.Joined = *p.Joined
	}
	if p.BridgeComplete != nil && *p.BridgeComplete && !rec.BridgeFailed {
		rec.BridgeComplete = true
	}
	if p.BridgeFailed != nil && *p.BridgeFailed && !rec.BridgeComplete {
		rec.BridgeFailed = true
	}
	if p.AppendTurn != nil {
		rec.TranscriptTurns = append(rec.TranscriptTurns, *p.AppendTurn)
	}
	if p.DerivedIntent != nil {
		rec.DerivedIntent = &Intent{
			Primary:    p.DerivedIntent.Primary,
			Supporting: append([]string(nil), p.DerivedIntent.Supporting...),
		}
	}
	if p.AgentUnavailableNoticeSent != nil && *p.AgentUnavailableNoticeSent {
		rec.AgentUnavailableNoticeSent = true
	}
	if p.NeedsFollowUp != nil && *p.NeedsFollowUp {
		rec.NeedsFollowUp = true
	}
	if p.PostFailureReconnect != nil && *p.PostFailureReconnect {
		rec.PostFailureReconnect = true
	}
	if p.ConversationID != nil {
		rec.ConversationID = *p.ConversationID
	}
}

func (r Record) clone() Record {
	out := r
	if r.AnsweredByMachine != nil {
		v := *r.AnsweredByMachine
		out.AnsweredByMachine = &v
	}
	if r.TranscriptTurns != nil {
		out.TranscriptTurns = append([]Turn(nil), r.TranscriptTurns...)
	}
	if r.DerivedIntent != nil {
		out.DerivedIntent = &Intent{
			Primary:    r.DerivedIntent.Primary,
			Supporting: append([]string(nil), r.DerivedIntent.Supporting...),
		}
	}
	return out
}
