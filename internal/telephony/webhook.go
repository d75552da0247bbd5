package telephony

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"leadbridge/internal/callstore"
	"leadbridge/internal/signals"
	"leadbridge/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Webhook bodies arrive as application/x-www-form-urlencoded. Parsing
// validates them into the tagged Event variants before any coordinator logic
// runs; unparseable bodies are rejected at the boundary.

var ErrBadWebhook = errors.New("telephony: invalid webhook payload")

// ParseStatusWebhook validates a call-status callback.
func ParseStatusWebhook(r *http.Request) (LegStatusEvent, error) {
	if err := r.ParseForm(); err != nil {
		return LegStatusEvent{}, err
	}
	callID := strings.TrimSpace(r.PostFormValue("CallSid"))
	status := normalizeCallStatus(r.PostFormValue("CallStatus"))
	if callID == "" || !status.Known() {
		return LegStatusEvent{}, ErrBadWebhook
	}
	return LegStatusEvent{CallID: callID, Status: status}, nil
}

// ParseAMDWebhook validates an async answering-machine-detection callback.
func ParseAMDWebhook(r *http.Request) (AMDEvent, error) {
	if err := r.ParseForm(); err != nil {
		return AMDEvent{}, err
	}
	callID := strings.TrimSpace(r.PostFormValue("CallSid"))
	if callID == "" {
		return AMDEvent{}, ErrBadWebhook
	}
	// Unrecognized AnsweredBy values normalize to unknown rather than
	// failing the webhook.
	return AMDEvent{
		CallID:         callID,
		Classification: signals.ClassifyAnsweredBy(r.PostFormValue("AnsweredBy")),
	}, nil
}

// ParseConferenceWebhook validates a conference participant callback.
// Non-participant events (conference-start, conference-end) return
// ErrBadWebhook and should be acknowledged without action.
func ParseConferenceWebhook(r *http.Request) (ConferenceEvent, error) {
	if err := r.ParseForm(); err != nil {
		return ConferenceEvent{}, err
	}
	room := strings.TrimSpace(r.PostFormValue("FriendlyName"))
	callID := strings.TrimSpace(r.PostFormValue("CallSid"))

	var kind ConferenceEventKind
	switch strings.TrimSpace(r.PostFormValue("StatusCallbackEvent")) {
	case "participant-join":
		kind = ConferenceJoin
	case "participant-leave":
		kind = ConferenceLeave
	default:
		return ConferenceEvent{}, ErrBadWebhook
	}

	if room == "" || callID == "" {
		return ConferenceEvent{}, ErrBadWebhook
	}
	return ConferenceEvent{RoomID: room, CallID: callID, Kind: kind}, nil
}

func normalizeCallStatus(raw string) callstore.LegStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "initiated":
		return callstore.StatusInitiated
	case "ringing":
		return callstore.StatusRinging
	case "in-progress", "answered":
		return callstore.StatusInProgress
	case "completed":
		return callstore.StatusCompleted
	case "busy":
		return callstore.StatusBusy
	case "failed":
		return callstore.StatusFailed
	case "no-answer":
		return callstore.StatusNoAnswer
	case "canceled":
		return callstore.StatusCanceled
	default:
		return callstore.LegStatus(strings.ToLower(strings.TrimSpace(raw)))
	}
}

// EventSink consumes validated events; implemented by the bridge coordinator.
type EventSink interface {
	HandleEvent(ctx context.Context, ev Event) error
}

// Deduper suppresses duplicate webhook deliveries. Best-effort: when the
// deduper errors the event is processed anyway, relying on the coordinator's
// idempotent merges.
type Deduper interface {
	ClaimOnce(ctx context.Context, key string) (bool, error)
}

// WebhookHandler terminates provider webhooks: parse, dedup, forward.
type WebhookHandler struct {
	Sink  EventSink
	Dedup Deduper
}

func (h WebhookHandler) HandleStatus(c *gin.Context) {
	ev, err := ParseStatusWebhook(c.Request)
	if err != nil {
		c.String(http.StatusBadRequest, "invalid status webhook")
		return
	}
	h.dispatch(c, ev)
}

func (h WebhookHandler) HandleAMD(c *gin.Context) {
	ev, err := ParseAMDWebhook(c.Request)
	if err != nil {
		c.String(http.StatusBadRequest, "invalid amd webhook")
		return
	}
	h.dispatch(c, ev)
}

func (h WebhookHandler) HandleConference(c *gin.Context) {
	ev, err := ParseConferenceWebhook(c.Request)
	if err != nil {
		// Room-level lifecycle events are acknowledged and ignored.
		c.Status(http.StatusOK)
		return
	}
	// Conference events skip dedup: a leave followed by a re-join carries
	// the same key, and the join monitor's merges are idempotent anyway.
	if err := h.Sink.HandleEvent(c.Request.Context(), ev); err != nil {
		logger.FromGin(c).Warn("conference event rejected", "err", err)
	}
	c.Status(http.StatusOK)
}

func (h WebhookHandler) dispatch(c *gin.Context, ev Event) {
	ctx := c.Request.Context()
	if h.Dedup != nil {
		first, err := h.Dedup.ClaimOnce(ctx, ev.DedupKey())
		if err != nil {
			logger.FromGin(c).Warn("webhook dedup unavailable", "err", err)
		} else if !first {
			logger.FromGin(c).Debug("duplicate webhook dropped", "key", ev.DedupKey())
			c.Status(http.StatusOK)
			return
		}
	}
	// The provider retries on non-2xx; a sink error is ours to handle, so
	// acknowledge regardless.
	if err := h.Sink.HandleEvent(ctx, ev); err != nil {
		logger.FromGin(c).Warn("webhook event rejected", "err", err)
	}
	c.Status(http.StatusOK)
}
