package domain

import "testing"

func TestStatusForOutcome(t *testing.T) {
	cases := []struct {
		name     string
		answered bool
		outcome  string
		want     string
	}{
		{"unanswered", false, "", StatusNoAnswer},
		{"unanswered ignores outcome", false, OutcomeBooked, StatusNoAnswer},
		{"booked", true, OutcomeBooked, StatusAppointmentBooked},
		{"not interested", true, OutcomeNotInterested, StatusNotInterested},
		{"callback", true, OutcomeCallback, StatusCallbackLater},
		{"live transfer stays dialing", true, OutcomeLiveTransfer, StatusDialing},
		{"answered without outcome", true, "", StatusDialing},
		{"unknown outcome", true, "mystery", StatusDialing},
	}

	for _, tc := range cases {
		if got := StatusForOutcome(tc.answered, tc.outcome); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestIsSticky(t *testing.T) {
	if !IsSticky(StatusAppointmentBooked) {
		t.Fatal("appointment_booked must be sticky")
	}
	for _, status := range []string{StatusNew, StatusDialing, StatusNotInterested, StatusCallbackLater, StatusNoAnswer} {
		if IsSticky(status) {
			t.Fatalf("%s should not be sticky", status)
		}
	}
}

func TestIsKnownOutcome(t *testing.T) {
	for _, outcome := range []string{OutcomeBooked, OutcomeNotInterested, OutcomeCallback, OutcomeLiveTransfer} {
		if !IsKnownOutcome(outcome) {
			t.Fatalf("%s should be known", outcome)
		}
	}
	if IsKnownOutcome("voicemail") {
		t.Fatal("voicemail should not be a known outcome")
	}
}
