package signals

import "testing"

func TestDetect_Pause(t *testing.T) {
	d := NewRescheduleDetector()
	sig, ok := d.Detect("Hold on, someone's at the door")
	if !ok {
		t.Fatalf("expected pause signal")
	}
	if sig.Kind != KindPause {
		t.Fatalf("expected pause, got %q", sig.Kind)
	}
}

func TestDetect_RescheduleWithTime(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"Can you call me back at 3pm?", "3pm"},
		{"Call back on Tuesday please", "tuesday"},
		{"Try me tomorrow", "tomorrow"},
		{"Call me back in 20 minutes", "in 20 minutes"},
	}
	for _, tc := range cases {
		d := NewRescheduleDetector()
		sig, ok := d.Detect(tc.text)
		if !ok {
			t.Fatalf("expected reschedule signal for %q", tc.text)
		}
		if sig.Kind != KindReschedule {
			t.Fatalf("expected reschedule for %q, got %q", tc.text, sig.Kind)
		}
		if sig.CallbackTime != tc.want {
			t.Fatalf("callback time for %q = %q, want %q", tc.text, sig.CallbackTime, tc.want)
		}
	}
}

func TestDetect_RescheduleOutranksPauseInSameTurn(t *testing.T) {
	d := NewRescheduleDetector()
	sig, ok := d.Detect("hold on... actually just call me back tomorrow")
	if !ok {
		t.Fatalf("expected a signal")
	}
	if sig.Kind != KindReschedule {
		t.Fatalf("expected reschedule, got %q", sig.Kind)
	}
}

func TestDetect_FiresOncePerCategory(t *testing.T) {
	d := NewRescheduleDetector()

	if _, ok := d.Detect("hold on a second"); !ok {
		t.Fatalf("first pause should fire")
	}
	if _, ok := d.Detect("hang on again"); ok {
		t.Fatalf("second pause must not fire")
	}

	if _, ok := d.Detect("call me back tomorrow"); !ok {
		t.Fatalf("reschedule is a separate category and should fire")
	}
	if _, ok := d.Detect("call me back friday"); ok {
		t.Fatalf("second reschedule must not fire")
	}
}

func TestExtractCallbackTime_NoMatch(t *testing.T) {
	if got := ExtractCallbackTime("just whenever works"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
