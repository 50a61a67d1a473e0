package app

import (
	"context"
	"testing"
	"time"

	"github.com/Startups-dev/Pixiedvc-sub000/internal/domain"
)

func TestListMatches_ComputesAdvisoryFlags(t *testing.T) {
	repo := newStubRepo()
	booking := repo.addBooking(testBooking("BLT", 100, 5))
	repo.addMembership(testMembership("BLT", 300))
	svc := newTestService(repo)
	match := matchFixture(t, repo, svc)

	// Offer expiring within the configured soon-window.
	repo.matches[match.ID].ExpiresAt = time.Now().UTC().Add(6 * time.Hour)

	rows, err := svc.ListMatches(context.Background(), domain.MatchListFilter{})
	if err != nil {
		t.Fatalf("ListMatches returned error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if !rows[0].IsExpiringSoon {
		t.Fatal("offer inside the soon-window should be flagged")
	}
	if rows[0].InvalidMatch || rows[0].HasRental {
		t.Fatalf("unexpected flags on a healthy pending match: %+v", rows[0])
	}

	// Cancel the booking underneath the pending offer.
	repo.bookings[booking.ID].Status = domain.BookingCancelled
	rows, err = svc.ListMatches(context.Background(), domain.MatchListFilter{})
	if err != nil {
		t.Fatalf("ListMatches returned error: %v", err)
	}
	if !rows[0].BookingCancelled || !rows[0].InvalidMatch {
		t.Fatal("a pending match on a cancelled booking must be flagged invalid")
	}
}

func TestGetMatchDetail_AggregatesSettlementView(t *testing.T) {
	repo := newStubRepo()
	repo.addBooking(testBooking("BLT", 100, 5))
	repo.addMembership(testMembership("BLT", 300))
	svc := newTestService(repo)
	match := matchFixture(t, repo, svc)

	// Pending match: no rental section yet.
	detail, err := svc.GetMatchDetail(context.Background(), match.ID)
	if err != nil {
		t.Fatalf("GetMatchDetail returned error: %v", err)
	}
	if detail.Rental != nil || detail.PaymentSchedule != nil {
		t.Fatal("pending match must not carry rental sections")
	}
	if len(detail.ExpectedSplits) != 3 {
		t.Fatalf("expected platform/tax/owner splits, got %d", len(detail.ExpectedSplits))
	}
	var splitSum int64
	for _, s := range detail.ExpectedSplits {
		splitSum += s.AmountCents
	}
	if splitSum != detail.Booking.GuestTotalCents {
		t.Fatalf("expected splits to sum to the guest total, got %d vs %d", splitSum, detail.Booking.GuestTotalCents)
	}

	rental, err := svc.AcceptMatch(context.Background(), match.ID)
	if err != nil {
		t.Fatalf("AcceptMatch returned error: %v", err)
	}
	repo.txns[match.ID] = []domain.Transaction{paidIn(55000)}

	detail, err = svc.GetMatchDetail(context.Background(), match.ID)
	if err != nil {
		t.Fatalf("GetMatchDetail returned error: %v", err)
	}
	if detail.Rental == nil || detail.Rental.ID != rental.ID {
		t.Fatal("accepted match must include its rental")
	}
	if len(detail.Milestones) != len(domain.DefaultMilestoneSet) {
		t.Fatalf("expected full milestone set, got %d", len(detail.Milestones))
	}
	if detail.PaymentSchedule == nil {
		t.Fatal("accepted match must include the payment schedule")
	}
	if detail.PaymentSchedule.Milestones[0].Status != PaymentPaid {
		t.Fatalf("deposit payment recorded, expected paid, got %s", detail.PaymentSchedule.Milestones[0].Status)
	}
	if len(detail.PayoutEntries) != 2 {
		t.Fatalf("expected seeded payout entries, got %d", len(detail.PayoutEntries))
	}
}
