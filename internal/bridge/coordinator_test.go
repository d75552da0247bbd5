package bridge

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"leadbridge/internal/callstore"
	"leadbridge/internal/signals"
	"leadbridge/internal/telephony"
)

type joinCall struct {
	callID string
	req    telephony.JoinConferenceRequest
}

type fakeProvider struct {
	mu         sync.Mutex
	joins      []joinCall
	redirects  map[string]telephony.RedirectToStreamRequest
	sayHangups map[string]string
	hangups    []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		redirects:  make(map[string]telephony.RedirectToStreamRequest),
		sayHangups: make(map[string]string),
	}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) CreateCall(ctx context.Context, req telephony.CreateCallRequest) (string, error) {
	return "CAfake", nil
}

func (p *fakeProvider) JoinConference(ctx context.Context, callID string, req telephony.JoinConferenceRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.joins = append(p.joins, joinCall{callID: callID, req: req})
	return nil
}

func (p *fakeProvider) RedirectToStream(ctx context.Context, callID string, req telephony.RedirectToStreamRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.redirects[callID] = req
	return nil
}

func (p *fakeProvider) SayThenHangup(ctx context.Context, callID string, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sayHangups[callID] = message
	return nil
}

func (p *fakeProvider) Hangup(ctx context.Context, callID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hangups = append(p.hangups, callID)
	return nil
}

func (p *fakeProvider) joinCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.joins)
}

func (p *fakeProvider) joinFor(callID string) (telephony.JoinConferenceRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, j := range p.joins {
		if j.callID == callID {
			return j.req, true
		}
	}
	return telephony.JoinConferenceRequest{}, false
}

type fakeScheduler struct {
	mu    sync.Mutex
	tasks []func()
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, fn)
}

// fire runs every pending task once.
func (s *fakeScheduler) fire() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()
	for _, fn := range tasks {
		fn()
	}
}

type fakeAgent struct {
	mu           sync.Mutex
	instructions map[string][]string
	teardowns    []string
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{instructions: make(map[string][]string)}
}

func (a *fakeAgent) Instruct(ctx context.Context, callID, instruction string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.instructions[callID] = append(a.instructions[callID], instruction)
	return nil
}

func (a *fakeAgent) Teardown(ctx context.Context, callID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.teardowns = append(a.teardowns, callID)
	return nil
}

const (
	contactID = "CAcontact1"
	salesID   = "CAsales1"
)

func strPtr(s string) *string                  { return &s }
func rolePtr(r callstore.Role) *callstore.Role { return &r }

func seedLead(s *callstore.Store) {
	lead := callstore.LeadInfo{
		ContactName:  "Dana Reyes",
		ContactPhone: "+15550100",
		Recipient:    "her father",
		CareReason:   "in-home care",
	}
	contact := contactID
	sales := salesID
	s.Merge(contactID, callstore.Patch{
		LeadID:       strPtr("lead-1"),
		Role:         rolePtr(callstore.RoleContact),
		LinkedCallID: &sales,
		Lead:         &lead,
	})
	s.Merge(salesID, callstore.Patch{
		LeadID:       strPtr("lead-1"),
		Role:         rolePtr(callstore.RoleSales),
		LinkedCallID: &contact,
		Lead:         &lead,
	})
}

type testRig struct {
	store    *callstore.Store
	provider *fakeProvider
	sched    *fakeScheduler
	agent    *fakeAgent
	coord    *Coordinator
}

func newRig(t *testing.T, opts ...Option) *testRig {
	t.Helper()
	store := callstore.New()
	provider := newFakeProvider()
	sched := &fakeScheduler{}
	agent := newFakeAgent()
	base := []Option{
		WithScheduler(sched),
		WithAgentNotifier(agent),
	}
	coord := NewCoordinator(store, provider, Config{
		JoinDeadline:          30 * time.Second,
		MinContactTurns:       3,
		HoldMusicURL:          "https://example.com/hold.mp3",
		ConferenceCallbackURL: "https://example.com/webhooks/voice/conference",
		AgentStreamURL:        "wss://example.com/agent/stream",
	}, append(base, opts...)...)
	seedLead(store)
	return &testRig{store: store, provider: provider, sched: sched, agent: agent, coord: coord}
}

func (r *testRig) bothInProgress(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, id := range []string{contactID, salesID} {
		if err := r.coord.HandleEvent(ctx, telephony.LegStatusEvent{CallID: id, Status: callstore.StatusInProgress}); err != nil {
			t.Fatalf("status event: %v", err)
		}
	}
}

func (r *testRig) contactTurn(t *testing.T, text string) {
	t.Helper()
	if err := r.coord.HandleTranscriptTurn(context.Background(), contactID, callstore.SpeakerContact, text); err != nil {
		t.Fatalf("turn: %v", err)
	}
}

func TestBridge_ThreeTurnReadiness(t *testing.T) {
	r := newRig(t)
	r.bothInProgress(t)

	r.contactTurn(t, "Hello, yes this is Dana.")
	r.contactTurn(t, "We were looking into options recently.")
	if r.provider.joinCount() != 0 {
		t.Fatalf("bridged before enough turns")
	}
	r.contactTurn(t, "Sure, I have a few minutes.")

	if r.provider.joinCount() != 2 {
		t.Fatalf("expected both legs joined, got %d", r.provider.joinCount())
	}

	salesReq, ok := r.provider.joinFor(salesID)
	if !ok {
		t.Fatalf("sales leg never commanded into room")
	}
	if salesReq.Room != RoomID(salesID) {
		t.Fatalf("room = %q", salesReq.Room)
	}
	for _, want := range []string{"Dana Reyes", "in-home care", "her father"} {
		if !strings.Contains(salesReq.Announcement, want) {
			t.Fatalf("sales announcement missing %q: %q", want, salesReq.Announcement)
		}
	}

	contactReq, ok := r.provider.joinFor(contactID)
	if !ok {
		t.Fatalf("contact leg never commanded into room")
	}
	if contactReq.Room != salesReq.Room {
		t.Fatalf("legs sent to different rooms: %q vs %q", contactReq.Room, salesReq.Room)
	}
}

func TestBridge_PositiveIntentShortCircuitsTurnCount(t *testing.T) {
	r := newRig(t)
	r.bothInProgress(t)

	r.contactTurn(t, "Yes, we need help as soon as possible.")

	if r.provider.joinCount() != 2 {
		t.Fatalf("positive intent should bridge immediately, joins = %d", r.provider.joinCount())
	}
}

func TestBridge_AtMostOnceUnderConcurrency(t *testing.T) {
	r := newRig(t)
	r.bothInProgress(t)
	r.contactTurn(t, "hello")
	r.contactTurn(t, "yes speaking")

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.coord.HandleTranscriptTurn(context.Background(), contactID, callstore.SpeakerContact, "okay")
		}()
	}
	wg.Wait()

	if got := r.provider.joinCount(); got != 2 {
		t.Fatalf("expected exactly one command pair, got %d join commands", got)
	}
	if got := len(r.sched.tasks); got != 1 {
		t.Fatalf("expected exactly one deadline task, got %d", got)
	}
}

func TestBridge_MachineDetectionBlocksBridging(t *testing.T) {
	r := newRig(t)
	r.bothInProgress(t)

	if err := r.coord.HandleEvent(context.Background(), telephony.AMDEvent{
		CallID:         contactID,
		Classification: signals.AMDMachineEndBeep,
	}); err != nil {
		t.Fatalf("amd event: %v", err)
	}

	r.contactTurn(t, "one")
	r.contactTurn(t, "two")
	r.contactTurn(t, "three")
	r.contactTurn(t, "four")

	if r.provider.joinCount() != 0 {
		t.Fatalf("machine-answered lead must never bridge")
	}
	if msg, ok := r.provider.sayHangups[salesID]; !ok || msg == "" {
		t.Fatalf("sales leg should have been released with an explanation")
	}
	if got := r.agent.instructions[contactID]; len(got) == 0 || !strings.Contains(got[0], "voicemail") {
		t.Fatalf("agent should have been told to leave a voicemail, got %v", got)
	}
}

func TestBridge_MachineBeforeSalesAnswers(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	if err := r.coord.HandleEvent(ctx, telephony.LegStatusEvent{CallID: contactID, Status: callstore.StatusInProgress}); err != nil {
		t.Fatalf("status event: %v", err)
	}
	if err := r.coord.HandleEvent(ctx, telephony.AMDEvent{CallID: contactID, Classification: signals.AMDMachineEndBeep}); err != nil {
		t.Fatalf("amd event: %v", err)
	}
	// Sales rep answers only after the machine verdict.
	if err := r.coord.HandleEvent(ctx, telephony.LegStatusEvent{CallID: salesID, Status: callstore.StatusInProgress}); err != nil {
		t.Fatalf("status event: %v", err)
	}

	if r.provider.joinCount() != 0 {
		t.Fatalf("no bridge should be attempted")
	}
	if _, ok := r.provider.sayHangups[salesID]; !ok {
		t.Fatalf("late-answering sales leg should be released")
	}
}

func TestBridge_VoicemailInferredFromSpeech(t *testing.T) {
	r := newRig(t)
	r.bothInProgress(t)

	r.contactTurn(t, "You have reached Dana. Please leave a message after the tone.")
	r.contactTurn(t, "beep")
	r.contactTurn(t, "beep")

	rec, _ := r.store.Get(contactID)
	if !rec.AnsweredByMachineTrue() {
		t.Fatalf("speech path should latch the machine flag")
	}
	if r.provider.joinCount() != 0 {
		t.Fatalf("inferred voicemail must block bridging")
	}
}

func TestBridge_NegativeIntentBlocksAndLatches(t *testing.T) {
	r := newRig(t)
	r.bothInProgress(t)

	r.contactTurn(t, "hello")
	r.contactTurn(t, "No thanks, I'm not interested.")
	r.contactTurn(t, "really, tell me more I guess")
	r.contactTurn(t, "go on")

	if r.provider.joinCount() != 0 {
		t.Fatalf("negative intent must block bridging even past the turn threshold")
	}
	rec, _ := r.store.Get(contactID)
	if rec.DerivedIntent == nil || rec.DerivedIntent.Primary != string(signals.IntentNotInterested) {
		t.Fatalf("negative primary intent must not be overwritten, got %+v", rec.DerivedIntent)
	}
}

func TestBridge_JoinOrderNoise(t *testing.T) {
	r := newRig(t)
	r.bothInProgress(t)
	r.contactTurn(t, "we need someone right away")

	if r.provider.joinCount() != 2 {
		t.Fatalf("setup: expected bridge attempt")
	}
	room := RoomID(salesID)
	ctx := context.Background()

	// Sales joins first, drops, rejoins; then contact joins.
	events := []telephony.ConferenceEvent{
		{RoomID: room, CallID: salesID, Kind: telephony.ConferenceJoin},
		{RoomID: room, CallID: salesID, Kind: telephony.ConferenceLeave},
		{RoomID: room, CallID: salesID, Kind: telephony.ConferenceJoin},
		{RoomID: room, CallID: contactID, Kind: telephony.ConferenceJoin},
	}
	for _, ev := range events {
		if err := r.coord.HandleEvent(ctx, ev); err != nil {
			t.Fatalf("conference event: %v", err)
		}
	}

	contact, _ := r.store.Get(contactID)
	sales, _ := r.store.Get(salesID)
	if !contact.BridgeComplete || !sales.BridgeComplete {
		t.Fatalf("bridge should complete after both joined")
	}
	if contact.BridgeFailed || sales.BridgeFailed {
		t.Fatalf("completed bridge must not be failed")
	}
	if len(r.agent.teardowns) != 1 || r.agent.teardowns[0] != contactID {
		t.Fatalf("agent session should be torn down once, got %v", r.agent.teardowns)
	}

	// Deadline fires after completion: a no-op.
	r.sched.fire()
	contact, _ = r.store.Get(contactID)
	if contact.BridgeFailed {
		t.Fatalf("deadline after completion must not fail the bridge")
	}
}

func TestBridge_DeadlineSalesNeverJoined(t *testing.T) {
	r := newRig(t)
	r.bothInProgress(t)
	r.contactTurn(t, "we need someone right away")

	room := RoomID(salesID)
	ctx := context.Background()
	if err := r.coord.HandleEvent(ctx, telephony.ConferenceEvent{
		RoomID: room, CallID: contactID, Kind: telephony.ConferenceJoin,
	}); err != nil {
		t.Fatalf("conference event: %v", err)
	}

	r.sched.fire()

	contact, _ := r.store.Get(contactID)
	if !contact.BridgeFailed || contact.BridgeComplete {
		t.Fatalf("deadline must fail the bridge, got complete=%v failed=%v",
			contact.BridgeComplete, contact.BridgeFailed)
	}
	if !contact.PostFailureReconnect {
		t.Fatalf("contact should be flagged as post-failure reconnect")
	}
	if !contact.AgentUnavailableNoticeSent {
		t.Fatalf("sales team unavailability should be recorded for the snapshot")
	}
	redirect, ok := r.provider.redirects[contactID]
	if !ok {
		t.Fatalf("contact should be reconnected to the agent stream")
	}
	if redirect.Parameters["reconnect"] != "true" {
		t.Fatalf("reconnect parameter missing: %v", redirect.Parameters)
	}
	if len(r.provider.hangups) != 1 || r.provider.hangups[0] != salesID {
		t.Fatalf("stuck sales leg should be hung up, got %v", r.provider.hangups)
	}
}

func TestBridge_DeadlineContactNeverJoined(t *testing.T) {
	r := newRig(t)
	r.bothInProgress(t)
	r.contactTurn(t, "we need someone right away")

	room := RoomID(salesID)
	if err := r.coord.HandleEvent(context.Background(), telephony.ConferenceEvent{
		RoomID: room, CallID: salesID, Kind: telephony.ConferenceJoin,
	}); err != nil {
		t.Fatalf("conference event: %v", err)
	}

	r.sched.fire()

	contact, _ := r.store.Get(contactID)
	if !contact.BridgeFailed {
		t.Fatalf("deadline must fail the bridge")
	}
	if !contact.NeedsFollowUp {
		t.Fatalf("contact should be flagged for follow-up")
	}
	if _, ok := r.provider.sayHangups[salesID]; !ok {
		t.Fatalf("sales leg should be released with an explanation")
	}
	if _, ok := r.provider.redirects[contactID]; ok {
		t.Fatalf("no reconnect when the contact never joined")
	}
}

func TestBridge_SalesEndsEarlyContactStaysWithAgent(t *testing.T) {
	r := newRig(t)
	r.bothInProgress(t)

	if err := r.coord.HandleEvent(context.Background(), telephony.LegStatusEvent{
		CallID: salesID, Status: callstore.StatusNoAnswer,
	}); err != nil {
		t.Fatalf("status event: %v", err)
	}

	contact, _ := r.store.Get(contactID)
	if !contact.AgentUnavailableNoticeSent {
		t.Fatalf("agent-unavailable notice should be recorded")
	}
	if got := r.agent.instructions[contactID]; len(got) != 1 {
		t.Fatalf("agent should get exactly one unavailable instruction, got %v", got)
	}
	if _, ok := r.provider.sayHangups[contactID]; ok {
		t.Fatalf("contact leg must not be hung up")
	}
}

func TestBridge_ContactEndsEarlySalesReleased(t *testing.T) {
	r := newRig(t)
	r.bothInProgress(t)

	if err := r.coord.HandleEvent(context.Background(), telephony.LegStatusEvent{
		CallID: contactID, Status: callstore.StatusCompleted,
	}); err != nil {
		t.Fatalf("status event: %v", err)
	}

	if _, ok := r.provider.sayHangups[salesID]; !ok {
		t.Fatalf("sales leg should be released when the contact drops")
	}
	sales, _ := r.store.Get(salesID)
	if !sales.NeedsFollowUp {
		t.Fatalf("surviving sales leg should carry the follow-up flag")
	}
}

func TestBridge_UnknownCallWebhooksDropped(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	if err := r.coord.HandleEvent(ctx, telephony.LegStatusEvent{
		CallID: "CAghost", Status: callstore.StatusInProgress,
	}); err != nil {
		t.Fatalf("status event: %v", err)
	}
	if err := r.coord.HandleEvent(ctx, telephony.AMDEvent{
		CallID: "CAghost", Classification: signals.AMDMachineEndBeep,
	}); err != nil {
		t.Fatalf("amd event: %v", err)
	}

	if _, ok := r.store.Get("CAghost"); ok {
		t.Fatalf("webhooks for unlaunched calls must not create records")
	}
	if got := r.store.Len(); got != 2 {
		t.Fatalf("store should still hold only the seeded pair, got %d", got)
	}
}

func TestBridge_StaleStatusIgnored(t *testing.T) {
	r := newRig(t)
	r.bothInProgress(t)

	// A late "ringing" for an in-progress leg must not regress it.
	if err := r.coord.HandleEvent(context.Background(), telephony.LegStatusEvent{
		CallID: contactID, Status: callstore.StatusRinging,
	}); err != nil {
		t.Fatalf("status event: %v", err)
	}
	rec, _ := r.store.Get(contactID)
	if rec.Status != callstore.StatusInProgress {
		t.Fatalf("status regressed to %q", rec.Status)
	}
}

func TestBridge_LeadDoneHookRunsOnce(t *testing.T) {
	var mu sync.Mutex
	var done []callstore.Record
	r := newRig(t, WithLeadDoneHook(func(ctx context.Context, contact, sales callstore.Record) {
		mu.Lock()
		defer mu.Unlock()
		done = append(done, contact)
	}))
	r.bothInProgress(t)
	ctx := context.Background()

	if err := r.coord.HandleEvent(ctx, telephony.LegStatusEvent{CallID: salesID, Status: callstore.StatusCompleted}); err != nil {
		t.Fatalf("status event: %v", err)
	}
	if err := r.coord.HandleEvent(ctx, telephony.LegStatusEvent{CallID: contactID, Status: callstore.StatusCompleted}); err != nil {
		t.Fatalf("status event: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(done) != 1 {
		t.Fatalf("lead-done hook should run exactly once, ran %d times", len(done))
	}
	if done[0].CallID != contactID {
		t.Fatalf("hook should receive the contact record first, got %q", done[0].CallID)
	}
	if r.store.Len() != 0 {
		t.Fatalf("records should be removed after the lead finishes, %d left", r.store.Len())
	}
	guards := 0
	r.coord.finishing.Range(func(_, _ any) bool { guards++; return true })
	if guards != 0 {
		t.Fatalf("finish guard should be released after removal, %d left", guards)
	}
}

func TestBridge_RescheduleCueInstructsAgent(t *testing.T) {
	r := newRig(t)
	r.bothInProgress(t)

	r.contactTurn(t, "Can you call me back tomorrow?")

	got := r.agent.instructions[contactID]
	if len(got) != 1 || !strings.Contains(got[0], "tomorrow") {
		t.Fatalf("agent should be told about the callback time, got %v", got)
	}

	// Same cue again: fires once per call.
	r.contactTurn(t, "like I said, call me back tomorrow")
	if len(r.agent.instructions[contactID]) != 1 {
		t.Fatalf("reschedule cue should fire once per call")
	}
}

func TestEvaluateReadiness_Gates(t *testing.T) {
	cfg := ReadinessConfig{MinContactTurns: 3}
	warm := func() (callstore.Record, callstore.Record) {
		contact := callstore.Record{
			CallID: contactID,
			Role:   callstore.RoleContact,
			Status: callstore.StatusInProgress,
			TranscriptTurns: []callstore.Turn{
				{Speaker: callstore.SpeakerContact, Text: "a"},
				{Speaker: callstore.SpeakerContact, Text: "b"},
				{Speaker: callstore.SpeakerContact, Text: "c"},
			},
		}
		sales := callstore.Record{
			CallID: salesID,
			Role:   callstore.RoleSales,
			Status: callstore.StatusInProgress,
		}
		return contact, sales
	}

	contact, sales := warm()
	if d := EvaluateReadiness(contact, sales, cfg); !d.Ready {
		t.Fatalf("warm lead should be ready, got %q", d.Reason)
	}

	contact, sales = warm()
	sales.Status = callstore.StatusRinging
	if d := EvaluateReadiness(contact, sales, cfg); d.Ready {
		t.Fatalf("sales still ringing must not be ready")
	}

	contact, sales = warm()
	v := true
	contact.AnsweredByMachine = &v
	if d := EvaluateReadiness(contact, sales, cfg); d.Ready {
		t.Fatalf("machine answer must not be ready")
	}

	contact, sales = warm()
	contact.DerivedIntent = &callstore.Intent{Primary: string(signals.IntentWrongPerson)}
	if d := EvaluateReadiness(contact, sales, cfg); d.Ready {
		t.Fatalf("negative intent must not be ready")
	}

	contact, sales = warm()
	contact.BridgeFailed = true
	if d := EvaluateReadiness(contact, sales, cfg); d.Ready {
		t.Fatalf("failed bridge must not re-arm")
	}

	// Positive intent with too few turns.
	contact, sales = warm()
	contact.TranscriptTurns = contact.TranscriptTurns[:1]
	contact.DerivedIntent = &callstore.Intent{Primary: string(signals.IntentUrgentNeed)}
	if d := EvaluateReadiness(contact, sales, cfg); !d.Ready {
		t.Fatalf("positive intent should be ready regardless of turn count, got %q", d.Reason)
	}
}
