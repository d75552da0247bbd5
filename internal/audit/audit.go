package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one coordinator decision, kept so a finished lead's path through
// the system can be reconstructed after the fact.
type Event struct {
	ID       string         `json:"id"`
	LeadID   string         `json:"lead_id"`
	CallID   string         `json:"call_id"`
	Kind     string         `json:"kind"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
	At       time.Time      `json:"at"`
}

// Repo persists audit events.
type Repo interface {
	Append(ctx context.Context, e Event) error
	ByLead(ctx context.Context, leadID string) ([]Event, error)
}

// Service stamps and stores decision events. Storage failures are logged and
// swallowed; the audit trail must never fail a live call.
type Service struct {
	repo  Repo
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repo, log *slog.Logger) *Service {
	return &Service{repo: repo, log: log, clock: time.Now}
}

// WithClock overrides the time source; for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Note implements the coordinator's Auditor.
func (s *Service) Note(ctx context.Context, leadID, callID, kind, message string, meta map[string]any) {
	e := Event{
		ID:       uuid.NewString(),
		LeadID:   leadID,
		CallID:   callID,
		Kind:     kind,
		Message:  message,
		Metadata: meta,
		At:       s.clock().UTC(),
	}
	if err := s.repo.Append(ctx, e); err != nil {
		s.log.WarnContext(ctx, "audit append failed",
			"lead_id", leadID, "kind", kind, "error", err)
	}
}

// Trail returns the recorded events for one lead, oldest first.
func (s *Service) Trail(ctx context.Context, leadID string) ([]Event, error) {
	return s.repo.ByLead(ctx, leadID)
}

// MemoryRepo keeps a bounded in-memory trail.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
	max    int
}

func NewMemoryRepo(max int) *MemoryRepo {
	if max <= 0 {
		max = 10000
	}
	return &MemoryRepo{max: max}
}

func (r *MemoryRepo) Append(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	if len(r.events) > r.max {
		r.events = r.events[len(r.events)-r.max:]
	}
	return nil
}

func (r *MemoryRepo) ByLead(ctx context.Context, leadID string) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.LeadID == leadID {
			out = append(out, e)
		}
	}
	return out, nil
}
