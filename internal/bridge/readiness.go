package bridge

import (
	"leadbridge/internal/callstore"
	"leadbridge/internal/signals"
)

// ReadinessConfig tunes when a conversation is considered warm enough to
// hand off.
type ReadinessConfig struct {
	// MinContactTurns is the number of contact transcript turns required
	// before a transfer is attempted without an explicit positive intent.
	MinContactTurns int
}

// Decision is the outcome of one readiness evaluation. Reason is a short
// machine-readable label for logs and audit, not user-facing text.
type Decision struct {
	Ready  bool
	Reason string
}

func ready(reason string) Decision    { return Decision{Ready: true, Reason: reason} }
func notReady(reason string) Decision { return Decision{Ready: false, Reason: reason} }

// EvaluateReadiness decides whether the two legs of a lead should be bridged
// right now. It is a pure function over record snapshots; the caller holds no
// locks and the at-most-once guarantee comes from the store's CAS, not from
// this check.
//
// A lead is ready only when every gate passes:
//   - both legs are in progress,
//   - the contact leg was not answered by a machine,
//   - the derived primary intent is not negative,
//   - no bridge outcome is already settled,
//   - the conversation is warm: a positive intent, or enough contact turns.
func EvaluateReadiness(contact, sales callstore.Record, cfg ReadinessConfig) Decision {
	if contact.Status != callstore.StatusInProgress {
		return notReady("contact-not-in-progress")
	}
	if sales.Status != callstore.StatusInProgress {
		return notReady("sales-not-in-progress")
	}
	if contact.AnsweredByMachineTrue() {
		return notReady("contact-answered-by-machine")
	}
	if contact.BridgeComplete || sales.BridgeComplete {
		return notReady("bridge-already-complete")
	}
	if contact.BridgeFailed || sales.BridgeFailed {
		return notReady("bridge-already-failed")
	}
	if intent := contact.DerivedIntent; intent != nil {
		if signals.Intent(intent.Primary).Negative() {
			return notReady("negative-intent")
		}
		if signals.Intent(intent.Primary).Positive() {
			return ready("positive-intent")
		}
	}
	if contact.ContactTurnCount() >= cfg.MinContactTurns {
		return ready("enough-turns")
	}
	return notReady("conversation-not-warm")
}
