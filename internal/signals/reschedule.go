package signals

import (
	"regexp"
	"strings"
)

// RescheduleKind separates "needs to pause" from "wants a different callback
// time".
type RescheduleKind string

const (
	KindPause      RescheduleKind = "pause"
	KindReschedule RescheduleKind = "reschedule"
)

// RescheduleSignal is an interruption or reschedule cue extracted from a
// contact turn. CallbackTime is best-effort and may be empty for a pause.
type RescheduleSignal struct {
	Kind         RescheduleKind
	CallbackTime string
}

var pausePhrases = []string{
	"hold on",
	"hang on",
	"one moment",
	"one second",
	"one sec",
	"just a minute",
	"give me a minute",
	"someone's at the door",
	"wait a moment",
}

var reschedulePhrases = []string{
	"call me back",
	"call back",
	"call me later",
	"call me tomorrow",
	"reach me",
	"try me",
	"better time",
	"another time",
	"not a good time",
}

var (
	clockTimeRe = regexp.MustCompile(`\b\d{1,2}(:\d{2})?\s?(am|pm|a\.m\.|p\.m\.|o'clock)\b`)
	weekdayRe   = regexp.MustCompile(`\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	relativeRe  = regexp.MustCompile(`\b(tomorrow|tonight|this afternoon|this evening|this morning|next week|in (a|an|\d+) (minute|minutes|hour|hours|day|days|week|weeks))\b`)
)

// RescheduleDetector watches contact turns for pause/reschedule cues. Each
// detected category fires at most once per call so the agent is not told the
// same thing twice; construct one detector per contact leg.
type RescheduleDetector struct {
	fired map[RescheduleKind]bool
}

func NewRescheduleDetector() *RescheduleDetector {
	return &RescheduleDetector{fired: make(map[RescheduleKind]bool)}
}

// Detect inspects one transcript turn. Reschedule cues take precedence over
// pause cues when both appear in the same turn ("hold on, call me back
// tomorrow" is a reschedule).
func (d *RescheduleDetector) Detect(text string) (RescheduleSignal, bool) {
	lower := strings.ToLower(text)

	if matchesAny(lower, reschedulePhrases) {
		if d.fired[KindReschedule] {
			return RescheduleSignal{}, false
		}
		d.fired[KindReschedule] = true
		return RescheduleSignal{
			Kind:         KindReschedule,
			CallbackTime: ExtractCallbackTime(lower),
		}, true
	}

	if matchesAny(lower, pausePhrases) {
		if d.fired[KindPause] {
			return RescheduleSignal{}, false
		}
		d.fired[KindPause] = true
		return RescheduleSignal{Kind: KindPause}, true
	}

	return RescheduleSignal{}, false
}

// ExtractCallbackTime pulls a best-effort time expression out of a turn:
// an explicit clock time, a named weekday, or a relative period. Returns ""
// when nothing matches.
func ExtractCallbackTime(text string) string {
	lower := strings.ToLower(text)
	if m := clockTimeRe.FindString(lower); m != "" {
		return m
	}
	if m := weekdayRe.FindString(lower); m != "" {
		return m
	}
	if m := relativeRe.FindString(lower); m != "" {
		return m
	}
	return ""
}

func matchesAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
