package domain

import (
	"strings"
	"testing"
	"time"
)

func TestConversionStatusCanAdvanceTo(t *testing.T) {
	cases := []struct {
		from, to ConversionStatus
		want     bool
	}{
		{StatusNew, StatusOTPOnly, true},
		{StatusOTPOnly, StatusConversionCandidate, true},
		{StatusOTPOnly, StatusConverted, true},
		{StatusConversionCandidate, StatusProposalSent, true},
		{StatusProposalSent, StatusConverted, true},
		{StatusProposalSent, StatusConversionCandidate, false},
		{StatusConverted, StatusOTPOnly, false},
		{StatusOTPOnly, StatusOTPOnly, false},
		{StatusOTPOnly, StatusError, false},
		{StatusError, StatusOTPOnly, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanAdvanceTo(tc.to); got != tc.want {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestParseConversionStatus(t *testing.T) {
	s, err := ParseConversionStatus(" proposal_sent ")
	if err != nil || s != StatusProposalSent {
		t.Fatalf("expected proposal_sent, got %q (%v)", s, err)
	}
	if _, err := ParseConversionStatus("error"); err == nil {
		t.Fatalf("expected error status to be rejected as a stored value")
	}
	if _, err := ParseConversionStatus("bogus"); err == nil {
		t.Fatalf("expected unknown status to be rejected")
	}
}

func TestEmailTrackingDaysSinceFirstSeen(t *testing.T) {
	first := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := EmailTracking{FirstSeenAt: first}

	if d := tr.DaysSinceFirstSeen(first.Add(23 * time.Hour)); d != 0 {
		t.Fatalf("expected 0 days, got %d", d)
	}
	if d := tr.DaysSinceFirstSeen(first.Add(7*24*time.Hour + time.Minute)); d != 7 {
		t.Fatalf("expected 7 days, got %d", d)
	}
	if d := tr.DaysSinceFirstSeen(first.Add(-time.Hour)); d != 0 {
		t.Fatalf("expected clock skew to clamp to 0, got %d", d)
	}
}

func TestAppendNote(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	notes := AppendNote("", "first seen via login", at)
	notes = AppendNote(notes, " promoted ", at)
	lines := strings.Split(notes, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), notes)
	}
	if lines[1] != "[2024-03-01T12:00:00Z] promoted" {
		t.Fatalf("unexpected note line %q", lines[1])
	}
}

func TestOTPCodeIsExpired(t *testing.T) {
	now := time.Now().UTC()
	c := OTPCode{ExpiresAt: now}
	if !c.IsExpired(now) {
		t.Fatalf("expected code expiring at now to be expired")
	}
	if c.IsExpired(now.Add(-time.Second)) {
		t.Fatalf("expected code to be valid before expiry")
	}
}
