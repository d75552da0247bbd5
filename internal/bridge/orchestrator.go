package bridge

import (
	"context"

	"leadbridge/internal/callstore"
	"leadbridge/internal/telephony"
)

// maybeBridge evaluates transfer readiness for callID's lead and, if ready,
// issues the one and only bridge attempt: both legs are commanded into a
// shared conference room and a single join deadline is scheduled.
//
// Every event handler that could tip the lead over the readiness threshold
// calls this; the store's compare-and-set on the attempt timestamp makes
// concurrent invocations collapse to exactly one command pair. There is no
// automatic retry: a failed command or a leg that never joins is settled by
// the deadline, not by re-bridging.
func (c *Coordinator) maybeBridge(ctx context.Context, callID string) error {
	contact, sales, ok := c.pair(callID)
	if !ok {
		return nil
	}

	decision := EvaluateReadiness(contact, sales, ReadinessConfig{
		MinContactTurns: c.cfg.MinContactTurns,
	})
	if !decision.Ready {
		return nil
	}

	if !c.store.BeginBridgeAttempt(contact.CallID, c.clock()) {
		return nil
	}

	room := RoomID(sales.CallID)
	c.store.Merge(contact.CallID, callstore.Patch{ConferenceRoomID: &room})
	c.store.Merge(sales.CallID, callstore.Patch{ConferenceRoomID: &room})

	c.log.InfoContext(ctx, "bridge attempt",
		"lead_id", contact.LeadID, "room", room, "reason", decision.Reason,
		"contact_call_id", contact.CallID, "sales_call_id", sales.CallID)
	c.audit.Note(ctx, contact.LeadID, contact.CallID, "bridge-attempted",
		"both legs commanded into conference", map[string]any{
			"room":   room,
			"reason": decision.Reason,
		})

	// Both commands are issued even if the first fails; the join deadline
	// settles any half-bridged state.
	if err := c.provider.JoinConference(ctx, contact.CallID, joinReq(room, ContactAnnouncement(), c.cfg, false)); err != nil {
		c.log.ErrorContext(ctx, "join contact leg", "call_id", contact.CallID, "error", err)
	}
	if err := c.provider.JoinConference(ctx, sales.CallID, joinReq(room, SalesAnnouncement(contact.Lead), c.cfg, true)); err != nil {
		c.log.ErrorContext(ctx, "join sales leg", "call_id", sales.CallID, "error", err)
	}

	contactID, salesID := contact.CallID, sales.CallID
	c.sched.AfterFunc(c.cfg.JoinDeadline, func() {
		c.checkJoinDeadline(context.Background(), contactID, salesID, room)
	})
	return nil
}

func joinReq(room, announcement string, cfg Config, endOnExit bool) telephony.JoinConferenceRequest {
	return telephony.JoinConferenceRequest{
		Room:                room,
		Announcement:        announcement,
		HoldMusicURL:        cfg.HoldMusicURL,
		EndConferenceOnExit: endOnExit,
		StatusCallbackURL:   cfg.ConferenceCallbackURL,
	}
}
