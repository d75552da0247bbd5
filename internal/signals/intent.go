package signals

import "strings"

// Intent labels classified from contact speech.
type Intent string

const (
	IntentUrgentNeed        Intent = "urgent-need"
	IntentNotInterested     Intent = "not-interested"
	IntentWrongPerson       Intent = "wrong-person"
	IntentAlreadyHasService Intent = "already-has-service"
	IntentCannotTalkNow     Intent = "cannot-talk-now"
	IntentWantsCallback     Intent = "wants-callback"
	IntentWantsMoreInfo     Intent = "wants-more-info"
	IntentConfused          Intent = "confused"
)

// Negative intents block a transfer outright.
func (i Intent) Negative() bool {
	return i == IntentNotInterested || i == IntentWrongPerson
}

// Positive intents make a transfer ready regardless of turn count.
func (i Intent) Positive() bool {
	return i == IntentUrgentNeed || i == IntentWantsMoreInfo
}

// DefaultPriority decides which label becomes primary when several fire in
// the same turn. Wrong-number-class negatives and urgency outrank the
// informational labels. This ordering is a policy table, not a law; override
// it with WithPriority if business behavior needs a different precedence.
var DefaultPriority = []Intent{
	IntentWrongPerson,
	IntentNotInterested,
	IntentUrgentNeed,
	IntentAlreadyHasService,
	IntentCannotTalkNow,
	IntentWantsCallback,
	IntentWantsMoreInfo,
	IntentConfused,
}

var defaultIntentPhrases = map[Intent][]string{
	IntentUrgentNeed: {
		"as soon as possible",
		"right away",
		"urgent",
		"emergency",
		"immediately",
		"can't wait",
		"need help now",
		"need someone today",
	},
	IntentNotInterested: {
		"not interested",
		"no thank you",
		"no thanks",
		"stop calling",
		"don't call",
		"take me off",
		"remove me from",
		"not looking for",
	},
	IntentWrongPerson: {
		"wrong number",
		"wrong person",
		"never heard of",
		"don't know what you're talking about",
		"didn't request",
		"no one here asked",
	},
	IntentAlreadyHasService: {
		"already have",
		"already found",
		"already working with",
		"already signed up",
		"we're all set",
	},
	IntentCannotTalkNow: {
		"can't talk",
		"cannot talk",
		"busy right now",
		"in a meeting",
		"driving right now",
		"bad time",
	},
	IntentWantsCallback: {
		"call me back",
		"call back later",
		"call me later",
		"another time",
		"try me tomorrow",
	},
	IntentWantsMoreInfo: {
		"tell me more",
		"more information",
		"how much does it cost",
		"what does it cost",
		"how does it work",
		"what are the options",
		"interested in learning",
	},
	IntentConfused: {
		"who is this",
		"what is this about",
		"what company",
		"why are you calling",
		"i don't understand",
	},
}

// Classifier matches contact transcript turns against curated phrase sets and
// picks a single primary intent by priority.
type Classifier struct {
	priority []Intent
	phrases  map[Intent][]string
}

type ClassifierOption func(*Classifier)

// WithPriority overrides the primary-intent precedence.
func WithPriority(order []Intent) ClassifierOption {
	return func(c *Classifier) {
		if len(order) > 0 {
			c.priority = order
		}
	}
}

// WithPhrases replaces the phrase set for one intent.
func WithPhrases(intent Intent, phrases []string) ClassifierOption {
	return func(c *Classifier) { c.phrases[intent] = phrases }
}

func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		priority: DefaultPriority,
		phrases:  make(map[Intent][]string, len(defaultIntentPhrases)),
	}
	for k, v := range defaultIntentPhrases {
		c.phrases[k] = v
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the primary intent for a turn plus any other labels that
// fired, in priority order. ok is false when nothing matched.
func (c *Classifier) Classify(text string) (primary Intent, supporting []Intent, ok bool) {
	lower := strings.ToLower(text)

	var fired []Intent
	for _, intent := range c.priority {
		for _, p := range c.phrases[intent] {
			if strings.Contains(lower, p) {
				fired = append(fired, intent)
				break
			}
		}
	}
	if len(fired) == 0 {
		return "", nil, false
	}
	return fired[0], fired[1:], true
}
