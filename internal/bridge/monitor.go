package bridge

import (
	"context"

	"leadbridge/internal/callstore"
	"leadbridge/internal/telephony"
)

// handleConference tracks participant joins and leaves for a bridge attempt.
// Joined is a plain flag, not a latch: a participant may drop and re-enter
// the room, and only simultaneous presence of both legs completes the bridge.
func (c *Coordinator) handleConference(ctx context.Context, ev telephony.ConferenceEvent) error {
	rec, ok := c.store.Get(ev.CallID)
	if !ok || rec.ConferenceRoomID != ev.RoomID {
		// Stale room or a call this instance is not tracking.
		c.log.DebugContext(ctx, "conference event for unknown room",
			"call_id", ev.CallID, "room", ev.RoomID)
		return nil
	}

	switch ev.Kind {
	case telephony.ConferenceJoin:
		c.store.Merge(ev.CallID, callstore.JoinedPatch(true))
		return c.maybeCompleteBridge(ctx, ev.CallID)
	case telephony.ConferenceLeave:
		if rec.BridgeComplete {
			// Post-completion leaves are the room winding down; leg
			// status webhooks carry the rest of the story.
			return nil
		}
		c.store.Merge(ev.CallID, callstore.JoinedPatch(false))
		return nil
	default:
		return nil
	}
}

// maybeCompleteBridge marks the bridge complete once both legs are in the
// room. Completion is what disarms the pending join deadline.
func (c *Coordinator) maybeCompleteBridge(ctx context.Context, callID string) error {
	contact, sales, ok := c.pair(callID)
	if !ok {
		return nil
	}
	if !contact.Joined || !sales.Joined {
		return nil
	}
	if contact.BridgeComplete || contact.BridgeFailed {
		return nil
	}

	c.store.Merge(contact.CallID, callstore.Patch{BridgeComplete: boolPtr(true)})
	c.store.Merge(sales.CallID, callstore.Patch{BridgeComplete: boolPtr(true)})

	c.log.InfoContext(ctx, "bridge complete",
		"lead_id", contact.LeadID, "room", contact.ConferenceRoomID)
	c.audit.Note(ctx, contact.LeadID, contact.CallID, "bridge-completed",
		"both legs joined the conference", map[string]any{"room": contact.ConferenceRoomID})

	// The contact's media stream was replaced by the conference; close the
	// agent session cleanly.
	if err := c.agent.Teardown(ctx, contact.CallID); err != nil {
		c.log.WarnContext(ctx, "agent teardown", "call_id", contact.CallID, "error", err)
	}
	return nil
}

// checkJoinDeadline runs once per bridge attempt, JoinDeadline after the
// commands were issued. If the bridge completed in time it does nothing.
// Otherwise it marks the attempt failed and takes one of two fallbacks:
//
//   - sales never joined: the contact is pulled back out of the room and
//     reconnected to the conversational agent, flagged so the session knows
//     not to attempt another transfer;
//   - contact never joined: the sales leg is released with an explanation
//     and the lead is flagged for follow-up.
func (c *Coordinator) checkJoinDeadline(ctx context.Context, contactID, salesID, room string) {
	contact, okC := c.store.Get(contactID)
	sales, okS := c.store.Get(salesID)
	if !okC || !okS {
		return
	}
	if contact.BridgeComplete || contact.BridgeFailed {
		return
	}

	c.store.Merge(contactID, callstore.Patch{BridgeFailed: boolPtr(true), NeedsFollowUp: boolPtr(true)})
	c.store.Merge(salesID, callstore.Patch{BridgeFailed: boolPtr(true)})

	c.log.WarnContext(ctx, "bridge deadline expired",
		"lead_id", contact.LeadID, "room", room,
		"contact_joined", contact.Joined, "sales_joined", sales.Joined)
	c.audit.Note(ctx, contact.LeadID, contactID, "bridge-failed",
		"join deadline expired", map[string]any{
			"room":           room,
			"contact_joined": contact.Joined,
			"sales_joined":   sales.Joined,
		})

	if !contact.Joined {
		// The contact never made it into the room; nothing to salvage on
		// their side of the call.
		if !sales.Status.IsTerminal() {
			if err := c.provider.SayThenHangup(ctx, salesID, ContactLostMessage()); err != nil {
				c.log.WarnContext(ctx, "release sales leg", "call_id", salesID, "error", err)
			}
		}
		return
	}

	// Contact is waiting in the room alone; hand them back to the agent. The
	// unavailable flag is what the end-of-call snapshot reports as
	// sales-team-unavailable downstream.
	c.store.Merge(contactID, callstore.Patch{
		PostFailureReconnect:       boolPtr(true),
		AgentUnavailableNoticeSent: boolPtr(true),
	})
	if err := c.provider.RedirectToStream(ctx, contactID, telephony.RedirectToStreamRequest{
		StreamURL: c.cfg.AgentStreamURL,
		Parameters: map[string]string{
			"reconnect": "true",
			"call_sid":  contactID,
		},
	}); err != nil {
		c.log.ErrorContext(ctx, "reconnect contact to agent", "call_id", contactID, "error", err)
	}
	if !sales.Status.IsTerminal() {
		if err := c.provider.Hangup(ctx, salesID); err != nil {
			c.log.WarnContext(ctx, "hang up sales leg", "call_id", salesID, "error", err)
		}
	}
}
