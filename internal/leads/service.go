package leads

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"leadbridge/internal/callstore"
	"leadbridge/internal/telephony"
)

// Notifier publishes the end-of-call snapshot to interested consumers.
type Notifier interface {
	LeadFinished(ctx context.Context, snap Snapshot) error
}

// Archive persists snapshots durably.
type Archive interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
}

// Config carries the endpoints baked into outbound call instructions.
type Config struct {
	// PublicBaseURL is the externally reachable base for webhook and TwiML
	// URLs.
	PublicBaseURL string

	// SalesTeamNumber is dialed for the sales agent leg.
	SalesTeamNumber string
}

// Service launches the two legs of each lead and settles finished leads into
// snapshots. The live-call decisions in between belong to the coordinator;
// this service only touches records at the start and end of a lead's life.
type Service struct {
	store    *callstore.Store
	provider telephony.Provider
	cfg      Config
	capacity Capacity
	notifier Notifier
	archive  Archive
	log      *slog.Logger
	clock    func() time.Time
}

type Option func(*Service)

func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithArchive(a Archive) Option {
	return func(s *Service) { s.archive = a }
}

func NewService(store *callstore.Store, provider telephony.Provider, capacity Capacity, cfg Config, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		provider: provider,
		cfg:      cfg,
		capacity: capacity,
		log:      log,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start validates the lead, claims a concurrency slot, places both outbound
// calls, and seeds the linked call records. The sales leg is dialed without
// machine detection; only the contact leg carries AMD.
func (s *Service) Start(ctx context.Context, req StartRequest) (StartResult, error) {
	if err := req.Validate(); err != nil {
		return StartResult{}, err
	}

	ok, err := s.capacity.Acquire(ctx)
	if err != nil {
		return StartResult{}, fmt.Errorf("leads: acquire capacity: %w", err)
	}
	if !ok {
		return StartResult{}, ErrTooManyActiveLeads
	}

	leadID := uuid.NewString()
	lead := req.leadInfo()

	contactCallID, err := s.provider.CreateCall(ctx, telephony.CreateCallRequest{
		To:                lead.ContactPhone,
		InstructionURL:    s.cfg.PublicBaseURL + "/twiml/contact",
		StatusCallbackURL: s.cfg.PublicBaseURL + "/webhooks/voice/status",
		MachineDetection:  true,
		AMDCallbackURL:    s.cfg.PublicBaseURL + "/webhooks/voice/amd",
	})
	if err != nil {
		s.release(ctx)
		return StartResult{}, fmt.Errorf("leads: dial contact: %w", err)
	}

	salesCallID, err := s.provider.CreateCall(ctx, telephony.CreateCallRequest{
		To:                s.cfg.SalesTeamNumber,
		InstructionURL:    s.cfg.PublicBaseURL + "/twiml/sales",
		StatusCallbackURL: s.cfg.PublicBaseURL + "/webhooks/voice/status",
	})
	if err != nil {
		// Unwind the half-started lead rather than stranding the contact.
		if hangErr := s.provider.Hangup(ctx, contactCallID); hangErr != nil {
			s.log.WarnContext(ctx, "unwind contact leg", "call_id", contactCallID, "error", hangErr)
		}
		s.release(ctx)
		return StartResult{}, fmt.Errorf("leads: dial sales team: %w", err)
	}

	contactRole, salesRole := callstore.RoleContact, callstore.RoleSales
	s.store.Merge(contactCallID, callstore.Patch{
		LeadID:       &leadID,
		Role:         &contactRole,
		LinkedCallID: &salesCallID,
		Lead:         &lead,
	})
	s.store.Merge(salesCallID, callstore.Patch{
		LeadID:       &leadID,
		Role:         &salesRole,
		LinkedCallID: &contactCallID,
		Lead:         &lead,
	})

	s.log.InfoContext(ctx, "lead started",
		"lead_id", leadID,
		"contact_call_id", contactCallID,
		"sales_call_id", salesCallID)

	return StartResult{
		LeadID:        leadID,
		ContactCallID: contactCallID,
		SalesCallID:   salesCallID,
	}, nil
}

// Complete settles a finished lead: snapshot, archive, publish, release the
// concurrency slot. Wired as the coordinator's lead-done hook, so it runs
// exactly once per lead. Downstream failures are logged, not propagated; a
// broken archive must not leak capacity slots.
func (s *Service) Complete(ctx context.Context, contact, sales callstore.Record) {
	snap := BuildSnapshot(contact, sales, s.clock())

	if s.archive != nil {
		if err := s.archive.SaveSnapshot(ctx, snap); err != nil {
			s.log.ErrorContext(ctx, "archive snapshot", "lead_id", snap.LeadID, "error", err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.LeadFinished(ctx, snap); err != nil {
			s.log.ErrorContext(ctx, "publish snapshot", "lead_id", snap.LeadID, "error", err)
		}
	}
	s.release(ctx)

	s.log.InfoContext(ctx, "lead settled",
		"lead_id", snap.LeadID, "outcome", snap.Outcome, "needs_follow_up", snap.NeedsFollowUp)
}

// Get returns the live record for a call id.
func (s *Service) Get(callID string) (callstore.Record, bool) {
	return s.store.Get(callID)
}

func (s *Service) release(ctx context.Context) {
	if err := s.capacity.Release(ctx); err != nil {
		s.log.WarnContext(ctx, "release capacity", "error", err)
	}
}
