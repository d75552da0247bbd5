package signals

import "strings"

// AMDResult is the answering-machine classification delivered by the
// telephony provider for an outbound call.
type AMDResult string

const (
	AMDHuman             AMDResult = "human"
	AMDMachineEndBeep    AMDResult = "machine_end_beep"
	AMDMachineEndSilence AMDResult = "machine_end_silence"
	AMDMachineEndOther   AMDResult = "machine_end_other"
	AMDFax               AMDResult = "fax"
	AMDUnknown           AMDResult = "unknown"
)

// ClassifyAnsweredBy normalizes the provider's AnsweredBy value.
// Anything unrecognized maps to unknown rather than failing the webhook.
func ClassifyAnsweredBy(raw string) AMDResult {
	switch AMDResult(strings.ToLower(strings.TrimSpace(raw))) {
	case AMDHuman:
		return AMDHuman
	case AMDMachineEndBeep:
		return AMDMachineEndBeep
	case AMDMachineEndSilence:
		return AMDMachineEndSilence
	case AMDMachineEndOther:
		return AMDMachineEndOther
	case AMDFax:
		return AMDFax
	default:
		return AMDUnknown
	}
}

// Machine reports whether the classification means a non-human answered.
func (r AMDResult) Machine() bool {
	switch r {
	case AMDMachineEndBeep, AMDMachineEndSilence, AMDMachineEndOther, AMDFax:
		return true
	default:
		return false
	}
}

// voicemailPhrases are contact-speech cues that the call hit a voicemail
// greeting even when no machine-detection event arrived. This is a second,
// independent path to the answeredByMachine latch.
var voicemailPhrases = []string{
	"leave a message",
	"leave your message",
	"leave me a message",
	"after the beep",
	"after the tone",
	"record your message",
	"voicemail",
	"voice mail",
	"is not available right now",
	"unable to take your call",
	"mailbox",
}

// LooksLikeVoicemail reports whether a transcript turn reads like a voicemail
// greeting.
func LooksLikeVoicemail(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range voicemailPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
