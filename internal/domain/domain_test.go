package domain

import (
	"testing"
	"time"
)

func TestMatchTransitions(t *testing.T) {
	cases := []struct {
		from, to MatchStatus
		allowed  bool
	}{
		{MatchPendingOwner, MatchAccepted, true},
		{MatchPendingOwner, MatchDeclined, true},
		{MatchPendingOwner, MatchExpired, true},
		{MatchPendingOwner, MatchRematched, false},
		{MatchExpired, MatchRematched, true},
		{MatchExpired, MatchAccepted, false},
		{MatchAccepted, MatchDeclined, false},
		{MatchDeclined, MatchPendingOwner, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.allowed {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.allowed)
		}
	}
}

func TestBookingTransitions(t *testing.T) {
	if !BookingMatched.CanTransitionTo(BookingPendingMatch) {
		t.Error("a matched booking must return to pending_match when its offer dies")
	}
	if BookingCancelled.CanTransitionTo(BookingMatched) {
		t.Error("cancelled is terminal")
	}
	if !BookingCancelled.IsTerminal() || !BookingExpired.IsTerminal() || !BookingCompleted.IsTerminal() {
		t.Error("completed/cancelled/expired are terminal")
	}
	if BookingMatched.IsTerminal() {
		t.Error("matched is not terminal")
	}
}

func TestMembershipWindows(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	m := OwnerMembership{
		HomeResort:   "BLT",
		UseYearEnd:   now.AddDate(1, 0, 0),
		MatchingMode: MatchPremiumThenStandard,
	}

	nineOut := now.AddDate(0, 9, 0)
	fiveOut := now.AddDate(0, 5, 0)
	twelveOut := now.AddDate(0, 12, 0)

	if !m.InPremiumWindow(nineOut, now) {
		t.Error("nine months out is inside the 11-month premium window")
	}
	if m.InPremiumWindow(twelveOut, now) {
		t.Error("twelve months out is outside the premium window")
	}
	if m.InStandardWindow(nineOut, now) {
		t.Error("nine months out is outside the 7-month standard window")
	}
	if !m.InStandardWindow(fiveOut, now) {
		t.Error("five months out is inside the standard window")
	}
}

func TestParsePayoutStagePlan(t *testing.T) {
	stages, err := ParsePayoutStagePlan("5000:payment_verified,owner_booking_confirmed;5000:transfer_completed")
	if err != nil {
		t.Fatalf("valid plan rejected: %v", err)
	}
	if len(stages) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(stages))
	}
	if stages[0].Stage != 1 || stages[1].Stage != 2 {
		t.Fatal("stages must be numbered in order")
	}
	if len(stages[0].Gates) != 2 || stages[0].Gates[0] != MilestonePaymentVerified {
		t.Fatalf("unexpected gates: %+v", stages[0].Gates)
	}

	for _, bad := range []string{
		"",
		"5000:payment_verified",            // shares don't sum to 10000
		"10000:",                           // no gates
		"abc:payment_verified;de:transfer", // not numeric
		"5000 payment_verified;5000:x",     // malformed stage
	} {
		if _, err := ParsePayoutStagePlan(bad); err == nil {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}

func TestTaxRateInForceAt(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	bounded := TaxRate{EffectiveFrom: from, EffectiveTo: &to}
	open := TaxRate{EffectiveFrom: from}

	if bounded.InForceAt(from.AddDate(0, -1, 0)) {
		t.Error("not in force before effective_from")
	}
	if !bounded.InForceAt(from) || !bounded.InForceAt(to) {
		t.Error("bounds are inclusive")
	}
	if bounded.InForceAt(to.AddDate(0, 1, 0)) {
		t.Error("not in force after effective_to")
	}
	if !open.InForceAt(to.AddDate(5, 0, 0)) {
		t.Error("open-ended rates stay in force")
	}
}

func TestMilestonesCompleted(t *testing.T) {
	ms := []RentalMilestone{
		{Code: MilestonePaymentVerified, Status: MilestoneCompleted},
		{Code: MilestoneOwnerBooked, Status: MilestonePending},
	}
	if !MilestonesCompleted(ms, []MilestoneCode{MilestonePaymentVerified}) {
		t.Error("completed milestone should satisfy its gate")
	}
	if MilestonesCompleted(ms, []MilestoneCode{MilestonePaymentVerified, MilestoneOwnerBooked}) {
		t.Error("pending milestone must block")
	}
	if MilestonesCompleted(ms, []MilestoneCode{"unknown_code"}) {
		t.Error("unknown codes count as not completed")
	}
}

func TestBookingTotalDueCents(t *testing.T) {
	b := BookingRequest{GuestTotalCents: 220000, EstimatedCashCents: 180000}
	if total, fallback := b.TotalDueCents(); total != 220000 || fallback {
		t.Fatalf("primary total must win, got %d fallback=%v", total, fallback)
	}
	b.GuestTotalCents = 0
	if total, fallback := b.TotalDueCents(); total != 180000 || !fallback {
		t.Fatalf("expected legacy fallback, got %d fallback=%v", total, fallback)
	}
}
