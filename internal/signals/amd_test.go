package signals

import "testing"

func TestClassifyAnsweredBy(t *testing.T) {
	cases := []struct {
		raw  string
		want AMDResult
	}{
		{"human", AMDHuman},
		{"machine_end_beep", AMDMachineEndBeep},
		{"machine_end_silence", AMDMachineEndSilence},
		{"machine_end_other", AMDMachineEndOther},
		{"fax", AMDFax},
		{"unknown", AMDUnknown},
		{"", AMDUnknown},
		{"  Machine_End_Beep ", AMDMachineEndBeep},
		{"something-else", AMDUnknown},
	}
	for _, tc := range cases {
		if got := ClassifyAnsweredBy(tc.raw); got != tc.want {
			t.Fatalf("ClassifyAnsweredBy(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestAMDResult_Machine(t *testing.T) {
	for _, r := range []AMDResult{AMDMachineEndBeep, AMDMachineEndSilence, AMDMachineEndOther, AMDFax} {
		if !r.Machine() {
			t.Fatalf("%q should be machine", r)
		}
	}
	for _, r := range []AMDResult{AMDHuman, AMDUnknown} {
		if r.Machine() {
			t.Fatalf("%q should not be machine", r)
		}
	}
}

func TestLooksLikeVoicemail(t *testing.T) {
	positives := []string{
		"Hi, you've reached Dana. Please leave a message after the beep.",
		"We are unable to take your call right now.",
		"Record your message when you're ready.",
	}
	for _, s := range positives {
		if !LooksLikeVoicemail(s) {
			t.Fatalf("expected voicemail cue in %q", s)
		}
	}

	negatives := []string{
		"Hello? Who's calling?",
		"Yes, this is Dana speaking.",
	}
	for _, s := range negatives {
		if LooksLikeVoicemail(s) {
			t.Fatalf("did not expect voicemail cue in %q", s)
		}
	}
}
