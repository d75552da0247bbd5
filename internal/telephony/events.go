package telephony

import (
	"leadbridge/internal/callstore"
	"leadbridge/internal/signals"
)

// Event is the tagged variant for validated provider webhooks. Payloads are
// normalized at the boundary; coordinator logic never sees raw form bodies.
type Event interface {
	isEvent()
	// DedupKey identifies a delivery for duplicate suppression.
	DedupKey() string
}

// LegStatusEvent is a call-status notification for one leg.
type LegStatusEvent struct {
	CallID string
	Status callstore.LegStatus
}

// AMDEvent is the answering-machine classification for one leg.
type AMDEvent struct {
	CallID         string
	Classification signals.AMDResult
}

// ConferenceEventKind is join or leave.
type ConferenceEventKind string

const (
	ConferenceJoin  ConferenceEventKind = "join"
	ConferenceLeave ConferenceEventKind = "leave"
)

// ConferenceEvent is a participant join/leave scoped to a conference room.
type ConferenceEvent struct {
	RoomID string
	CallID string
	Kind   ConferenceEventKind
}

func (LegStatusEvent) isEvent()  {}
func (AMDEvent) isEvent()        {}
func (ConferenceEvent) isEvent() {}

func (e LegStatusEvent) DedupKey() string {
	return "status:" + e.CallID + ":" + string(e.Status)
}

func (e AMDEvent) DedupKey() string {
	return "amd:" + e.CallID + ":" + string(e.Classification)
}

func (e ConferenceEvent) DedupKey() string {
	return "conf:" + e.RoomID + ":" + e.CallID + ":" + string(e.Kind)
}
