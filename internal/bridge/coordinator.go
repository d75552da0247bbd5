package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"leadbridge/internal/callstore"
	"leadbridge/internal/signals"
	"leadbridge/internal/telephony"
)

// AgentNotifier delivers out-of-band messages to the live conversational
// agent session attached to a leg. Implemented by the agent stream hub.
type AgentNotifier interface {
	// Instruct injects a one-shot instruction into the session for callID.
	Instruct(ctx context.Context, callID, instruction string) error
	// Teardown closes the session for callID, e.g. once the leg has been
	// bridged away from the media stream.
	Teardown(ctx context.Context, callID string) error
}

// Auditor records coordinator decisions for later inspection.
type Auditor interface {
	Note(ctx context.Context, leadID, callID, kind, message string, meta map[string]any)
}

// Config carries the coordinator's tunables and callback endpoints.
type Config struct {
	// JoinDeadline bounds how long a bridge attempt may wait for both legs
	// to land in the room before fallbacks run.
	JoinDeadline time.Duration

	MinContactTurns int

	HoldMusicURL string

	// ConferenceCallbackURL receives participant join/leave webhooks.
	ConferenceCallbackURL string

	// AgentStreamURL is the media-stream endpoint used to re-attach a
	// contact leg to the agent after a failed bridge.
	AgentStreamURL string
}

// Coordinator drives both legs of every active lead from validated telephony
// events and agent transcript turns. It holds no per-lead goroutines; all
// state lives in the store and every handler is safe to call concurrently.
type Coordinator struct {
	store    *callstore.Store
	provider telephony.Provider
	cfg      Config

	sched      Scheduler
	clock      func() time.Time
	log        *slog.Logger
	classifier *signals.Classifier
	agent      AgentNotifier
	audit      Auditor
	onLeadDone func(ctx context.Context, contact, sales callstore.Record)

	mu        sync.Mutex
	detectors map[string]*signals.RescheduleDetector

	finishing sync.Map
}

type Option func(*Coordinator)

func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) { c.clock = clock }
}

func WithScheduler(s Scheduler) Option {
	return func(c *Coordinator) { c.sched = s }
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

func WithClassifier(cl *signals.Classifier) Option {
	return func(c *Coordinator) { c.classifier = cl }
}

func WithAgentNotifier(a AgentNotifier) Option {
	return func(c *Coordinator) { c.agent = a }
}

func WithAuditor(a Auditor) Option {
	return func(c *Coordinator) { c.audit = a }
}

// WithLeadDoneHook registers the callback invoked exactly once per lead when
// both legs are terminal, before the records are removed from the store.
func WithLeadDoneHook(fn func(ctx context.Context, contact, sales callstore.Record)) Option {
	return func(c *Coordinator) { c.onLeadDone = fn }
}

func NewCoordinator(store *callstore.Store, provider telephony.Provider, cfg Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:      store,
		provider:   provider,
		cfg:        cfg,
		sched:      TimerScheduler{},
		clock:      time.Now,
		log:        slog.Default(),
		classifier: signals.NewClassifier(),
		agent:      nopAgent{},
		audit:      nopAuditor{},
		detectors:  make(map[string]*signals.RescheduleDetector),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAgentNotifier rebinds the agent notifier after the stream hub is
// constructed; the hub needs the coordinator as its turn sink, so one side of
// the pair is wired late. Call before serving traffic.
func (c *Coordinator) SetAgentNotifier(a AgentNotifier) {
	c.agent = a
}

// HandleEvent dispatches one validated telephony event. Implements
// telephony.EventSink.
func (c *Coordinator) HandleEvent(ctx context.Context, ev telephony.Event) error {
	switch e := ev.(type) {
	case telephony.LegStatusEvent:
		return c.handleLegStatus(ctx, e)
	case telephony.AMDEvent:
		return c.handleAMD(ctx, e)
	case telephony.ConferenceEvent:
		return c.handleConference(ctx, e)
	default:
		return fmt.Errorf("bridge: unhandled event type %T", ev)
	}
}

func (c *Coordinator) handleLegStatus(ctx context.Context, ev telephony.LegStatusEvent) error {
	cur, ok := c.store.Get(ev.CallID)
	if !ok {
		// A call this instance never launched. Merging would leave an
		// orphan record with no lead and no linked leg to clean it up.
		c.log.WarnContext(ctx, "status for unknown call",
			"call_id", ev.CallID, "status", ev.Status)
		return nil
	}
	// Out-of-order tolerance: a status that does not advance the leg is
	// dropped. The check is advisory; merges themselves are safe in any
	// order.
	if ev.Status.Rank() <= cur.Status.Rank() {
		c.log.DebugContext(ctx, "stale status ignored",
			"call_id", ev.CallID, "status", ev.Status, "current", cur.Status)
		return nil
	}

	rec := c.store.Merge(ev.CallID, callstore.StatusPatch(ev.Status))
	c.log.InfoContext(ctx, "leg status",
		"call_id", ev.CallID, "lead_id", rec.LeadID, "role", rec.Role, "status", ev.Status)

	if ev.Status == callstore.StatusInProgress {
		// A sales rep answering after the contact leg hit a machine has
		// no one to be connected to.
		if rec.Role == callstore.RoleSales {
			if linked, ok := c.store.Linked(ev.CallID); ok &&
				linked.AnsweredByMachineTrue() && rec.BridgeAttemptStartedAt.IsZero() {
				if err := c.provider.SayThenHangup(ctx, ev.CallID, ContactMachineMessage()); err != nil {
					c.log.WarnContext(ctx, "release sales leg", "call_id", ev.CallID, "error", err)
				}
				return nil
			}
		}
		return c.maybeBridge(ctx, ev.CallID)
	}
	if ev.Status.IsTerminal() {
		return c.handleTerminalLeg(ctx, rec)
	}
	return nil
}

// handleTerminalLeg settles the other side of the lead when one leg ends
// before a bridge completed, and finishes the lead once both legs are down.
func (c *Coordinator) handleTerminalLeg(ctx context.Context, rec callstore.Record) error {
	linked, hasLinked := c.store.Linked(rec.CallID)

	if hasLinked && !linked.Status.IsTerminal() && !rec.BridgeComplete {
		switch rec.Role {
		case callstore.RoleContact:
			// The contact is gone; the sales leg has no one to talk to.
			// Follow-up is marked on the surviving leg, mirroring the
			// sales-ended branch below.
			c.store.Merge(linked.CallID, callstore.Patch{NeedsFollowUp: boolPtr(true)})
			c.audit.Note(ctx, rec.LeadID, rec.CallID, "contact-ended-early",
				"contact leg ended before bridging; releasing sales leg", nil)
			if err := c.provider.SayThenHangup(ctx, linked.CallID, ContactLostMessage()); err != nil {
				c.log.WarnContext(ctx, "release sales leg", "call_id", linked.CallID, "error", err)
			}
		case callstore.RoleSales:
			// No representative will join; the agent keeps the contact
			// usefully occupied instead of stranding them.
			c.store.Merge(linked.CallID, callstore.Patch{
				AgentUnavailableNoticeSent: boolPtr(true),
				NeedsFollowUp:              boolPtr(true),
			})
			c.audit.Note(ctx, rec.LeadID, rec.CallID, "sales-ended-early",
				"sales leg ended before bridging; contact stays with agent", nil)
			if err := c.agent.Instruct(ctx, linked.CallID, SalesUnavailableInstruction()); err != nil {
				c.log.WarnContext(ctx, "instruct agent", "call_id", linked.CallID, "error", err)
			}
		}
	}

	if hasLinked && linked.Status.IsTerminal() {
		c.finishLead(ctx, rec.CallID)
	}
	return nil
}

func (c *Coordinator) handleAMD(ctx context.Context, ev telephony.AMDEvent) error {
	if _, ok := c.store.Get(ev.CallID); !ok {
		c.log.WarnContext(ctx, "amd verdict for unknown call", "call_id", ev.CallID)
		return nil
	}
	switch {
	case ev.Classification.Machine():
		return c.latchMachine(ctx, ev.CallID, "amd")
	case ev.Classification == signals.AMDHuman:
		c.store.Merge(ev.CallID, callstore.MachinePatch(false))
		return nil
	default:
		// Unknown keeps the tri-state unset rather than asserting human.
		return nil
	}
}

// latchMachine sets the one-way machine latch and unwinds whatever the lead
// was building toward: the agent leaves a voicemail on the contact leg, and a
// live sales leg is released since no transfer will happen.
func (c *Coordinator) latchMachine(ctx context.Context, callID, source string) error {
	rec := c.store.Merge(callID, callstore.MachinePatch(true))
	c.log.InfoContext(ctx, "machine latched",
		"call_id", callID, "lead_id", rec.LeadID, "source", source)
	c.audit.Note(ctx, rec.LeadID, callID, "machine-detected",
		"answering machine detected; bridging blocked", map[string]any{"source": source})

	if rec.BridgeAttemptStartedAt.IsZero() {
		c.store.Merge(callID, callstore.Patch{NeedsFollowUp: boolPtr(true)})
		if err := c.agent.Instruct(ctx, callID, VoicemailInstruction(rec.Lead)); err != nil {
			c.log.WarnContext(ctx, "voicemail instruction", "call_id", callID, "error", err)
		}
		if linked, ok := c.store.Linked(callID); ok && linked.Status == callstore.StatusInProgress {
			if err := c.provider.SayThenHangup(ctx, linked.CallID, ContactMachineMessage()); err != nil {
				c.log.WarnContext(ctx, "release sales leg", "call_id", linked.CallID, "error", err)
			}
		}
	}
	return nil
}

// HandleTranscriptTurn records one transcript turn from the agent session and
// re-derives conversational signals. Implements the agent stream's turn sink.
func (c *Coordinator) HandleTranscriptTurn(ctx context.Context, callID, speaker, text string) error {
	turn := callstore.Turn{Speaker: speaker, Text: text, At: c.clock().UTC()}
	rec := c.store.Merge(callID, callstore.Patch{AppendTurn: &turn})

	if speaker != callstore.SpeakerContact {
		return nil
	}

	// Second, independent path to the machine latch: the "contact" is
	// reciting a voicemail greeting.
	if signals.LooksLikeVoicemail(text) && !rec.AnsweredByMachineTrue() {
		return c.latchMachine(ctx, callID, "speech")
	}

	if primary, supporting, ok := c.classifier.Classify(text); ok {
		c.applyIntent(ctx, callID, rec, primary, supporting)
	}

	if sig, ok := c.detectorFor(callID).Detect(text); ok {
		c.audit.Note(ctx, rec.LeadID, callID, "reschedule-signal",
			string(sig.Kind), map[string]any{"callback_time": sig.CallbackTime})
		if err := c.agent.Instruct(ctx, callID, PauseAcknowledgement(sig)); err != nil {
			c.log.WarnContext(ctx, "reschedule instruction", "call_id", callID, "error", err)
		}
	}

	return c.maybeBridge(ctx, callID)
}

// applyIntent merges a freshly classified intent, never downgrading a
// negative primary to a softer one: once the contact has said "not
// interested" or "wrong number", later chatter does not re-open the transfer.
func (c *Coordinator) applyIntent(ctx context.Context, callID string, rec callstore.Record, primary signals.Intent, supporting []signals.Intent) {
	if cur := rec.DerivedIntent; cur != nil &&
		signals.Intent(cur.Primary).Negative() && !primary.Negative() {
		return
	}

	intent := callstore.Intent{Primary: string(primary)}
	for _, s := range supporting {
		intent.Supporting = append(intent.Supporting, string(s))
	}
	c.store.Merge(callID, callstore.IntentPatch(intent))
	c.log.InfoContext(ctx, "intent derived",
		"call_id", callID, "lead_id", rec.LeadID, "primary", primary)
}

// BindConversation records the agent-service conversation id once the session
// opens.
func (c *Coordinator) BindConversation(ctx context.Context, callID, conversationID string) {
	c.store.Merge(callID, callstore.ConversationIDPatch(conversationID))
}

// finishLead runs the lead-done hook exactly once per pair and then removes
// both records.
func (c *Coordinator) finishLead(ctx context.Context, callID string) {
	contact, sales, ok := c.pair(callID)
	if !ok {
		return
	}
	key := contact.LeadID
	if key == "" {
		key = contact.CallID
	}
	if _, already := c.finishing.LoadOrStore(key, true); already {
		return
	}
	// The entry only guards the window until the records are removed; after
	// that, pair() failing above is what blocks re-entry, so the key can go.
	defer c.finishing.Delete(key)
	// Re-check under the guard: a finisher that completed between our pair()
	// snapshot and winning the guard has already removed the records.
	if _, ok := c.store.Get(callID); !ok {
		return
	}

	c.log.InfoContext(ctx, "lead finished",
		"lead_id", contact.LeadID,
		"bridged", contact.BridgeComplete,
		"voicemail", contact.AnsweredByMachineTrue(),
		"needs_follow_up", contact.NeedsFollowUp || sales.NeedsFollowUp)

	if c.onLeadDone != nil {
		c.onLeadDone(ctx, contact, sales)
	}
	c.store.RemovePair(callID)
	c.dropDetector(contact.CallID)
}

// pair resolves both legs of callID's lead, ordered contact then sales.
func (c *Coordinator) pair(callID string) (contact, sales callstore.Record, ok bool) {
	rec, found := c.store.Get(callID)
	if !found {
		return callstore.Record{}, callstore.Record{}, false
	}
	linked, found := c.store.Linked(callID)
	if !found {
		return callstore.Record{}, callstore.Record{}, false
	}
	if rec.Role == callstore.RoleContact {
		return rec, linked, true
	}
	return linked, rec, true
}

func (c *Coordinator) detectorFor(callID string) *signals.RescheduleDetector {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.detectors[callID]
	if !ok {
		d = signals.NewRescheduleDetector()
		c.detectors[callID] = d
	}
	return d
}

func (c *Coordinator) dropDetector(callID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.detectors, callID)
}

func boolPtr(v bool) *bool { return &v }

type nopAgent struct{}

func (nopAgent) Instruct(context.Context, string, string) error { return nil }
func (nopAgent) Teardown(context.Context, string) error         { return nil }

type nopAuditor struct{}

func (nopAuditor) Note(context.Context, string, string, string, string, map[string]any) {}
