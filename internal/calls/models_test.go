package calls

import "testing"

func TestOutcome_Converted(t *testing.T) {
	converted := map[Outcome]bool{
		OutcomeCompleted:       false,
		OutcomeFailed:          false,
		OutcomeBooked:          true,
		OutcomeBookingRejected: false,
		OutcomeDemoBooked:      true,
	}
	for o, want := range converted {
		if o == "" {
			t.Fatalf("expected non-empty outcome")
		}
		if o.Converted() != want {
			t.Fatalf("%s: expected converted=%v", o, want)
		}
	}
}
