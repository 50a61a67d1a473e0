package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Startups-dev/Pixiedvc-sub000/internal/domain"
	"github.com/Startups-dev/Pixiedvc-sub000/internal/store"
)

// matchFixture runs the allocator once and returns the created match.
func matchFixture(t *testing.T, repo *stubRepo, svc *Service) *domain.Match {
	t.Helper()
	summary, err := svc.RunMatcher(context.Background(), RunOptions{Now: testNow})
	if err != nil {
		t.Fatalf("fixture matcher run failed: %v", err)
	}
	if summary.MatchesCreated != 1 {
		t.Fatalf("fixture expected 1 match, got %d", summary.MatchesCreated)
	}
	for _, m := range repo.matches {
		copied := *m
		return &copied
	}
	t.Fatal("no match persisted")
	return nil
}

func TestAcceptMatch_MovesPointsAndSeedsRental(t *testing.T) {
	repo := newStubRepo()
	repo.addBooking(testBooking("BLT", 100, 5))
	m := repo.addMembership(testMembership("BLT", 300))
	svc := newTestService(repo)
	match := matchFixture(t, repo, svc)

	rental, err := svc.AcceptMatch(context.Background(), match.ID)
	if err != nil {
		t.Fatalf("AcceptMatch returned error: %v", err)
	}
	if rental.Status != domain.RentalNeedsDVCBooking {
		t.Fatalf("expected new rental in needs_dvc_booking, got %s", rental.Status)
	}

	got := repo.memberships[m.ID]
	if got.PointsReserved != 0 || got.PointsRented != 100 || got.PointsAvailable != 200 {
		t.Fatalf("expected reserved points moved to rented, got available=%d reserved=%d rented=%d",
			got.PointsAvailable, got.PointsReserved, got.PointsRented)
	}
	if repo.matches[match.ID].Status != domain.MatchAccepted {
		t.Fatalf("expected match accepted, got %s", repo.matches[match.ID].Status)
	}

	milestones, _ := repo.ListMilestonesByRentalID(context.Background(), rental.ID)
	if len(milestones) != len(domain.DefaultMilestoneSet) {
		t.Fatalf("expected %d seeded milestones, got %d", len(domain.DefaultMilestoneSet), len(milestones))
	}
	for _, ms := range milestones {
		if ms.Status != domain.MilestonePending {
			t.Fatalf("milestone %s should start pending", ms.Code)
		}
	}

	// Acceptance seeds the payout ledger with all stages pending.
	entries, _ := repo.ListPayoutEntriesByRentalID(context.Background(), rental.ID)
	if len(entries) != 2 {
		t.Fatalf("expected 2 payout stages seeded, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Status != domain.PayoutPending {
			t.Fatalf("stage %d should start pending, got %s", e.Stage, e.Status)
		}
	}
}

func TestAcceptMatch_ExpiredOfferIsReleasedInstead(t *testing.T) {
	repo := newStubRepo()
	repo.addBooking(testBooking("BLT", 100, 5))
	m := repo.addMembership(testMembership("BLT", 300))
	svc := newTestService(repo)
	match := matchFixture(t, repo, svc)

	// Push the offer past its window.
	repo.matches[match.ID].ExpiresAt = time.Now().UTC().Add(-time.Hour)

	_, err := svc.AcceptMatch(context.Background(), match.ID)
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition on expired offer, got %v", err)
	}
	if repo.matches[match.ID].Status != domain.MatchExpired {
		t.Fatalf("expected lazy expiry to mark the match expired, got %s", repo.matches[match.ID].Status)
	}
	if got := repo.memberships[m.ID]; got.PointsAvailable != 300 || got.PointsReserved != 0 {
		t.Fatal("expected reserved points returned on lazy expiry")
	}
}

func TestDeclineMatch_ReleasesOnceAndOnlyOnce(t *testing.T) {
	repo := newStubRepo()
	booking := repo.addBooking(testBooking("BLT", 100, 5))
	m := repo.addMembership(testMembership("BLT", 300))
	svc := newTestService(repo)
	match := matchFixture(t, repo, svc)

	if err := svc.DeclineMatch(context.Background(), match.ID); err != nil {
		t.Fatalf("DeclineMatch returned error: %v", err)
	}
	got := repo.memberships[m.ID]
	if got.PointsAvailable != 300 || got.PointsReserved != 0 {
		t.Fatalf("expected full release, got available=%d reserved=%d", got.PointsAvailable, got.PointsReserved)
	}
	if repo.bookings[booking.ID].Status != domain.BookingPendingMatch {
		t.Fatalf("expected booking back in pending_match, got %s", repo.bookings[booking.ID].Status)
	}

	// Replaying the decline must not double-credit.
	err := svc.DeclineMatch(context.Background(), match.ID)
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition on replay, got %v", err)
	}
	if got := repo.memberships[m.ID]; got.PointsAvailable != 300 {
		t.Fatal("replayed decline must not credit points again")
	}
}

func TestExpireDueMatches_ReleasesAndAllowsRematch(t *testing.T) {
	repo := newStubRepo()
	booking := repo.addBooking(testBooking("BLT", 100, 5))
	m := repo.addMembership(testMembership("BLT", 300))
	svc := newTestService(repo)
	match := matchFixture(t, repo, svc)

	after := testNow.Add(73 * time.Hour)
	expired, err := svc.ExpireDueMatches(context.Background(), after, 0)
	if err != nil {
		t.Fatalf("ExpireDueMatches returned error: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expiry, got %d", expired)
	}
	if repo.matches[match.ID].Status != domain.MatchExpired {
		t.Fatalf("expected match expired, got %s", repo.matches[match.ID].Status)
	}
	if got := repo.memberships[m.ID]; got.PointsAvailable != 300 || got.PointsReserved != 0 {
		t.Fatal("expected reserved points released on expiry")
	}

	// A second sweep over the same instant is a no-op.
	expired, err = svc.ExpireDueMatches(context.Background(), after, 0)
	if err != nil || expired != 0 {
		t.Fatalf("expected idempotent second sweep, got expired=%d err=%v", expired, err)
	}

	// The booking is matchable again and the old match flips to rematched.
	summary, err := svc.RunMatcher(context.Background(), RunOptions{Now: after})
	if err != nil {
		t.Fatalf("rematch run failed: %v", err)
	}
	if summary.MatchesCreated != 1 {
		t.Fatalf("expected a rematch, got %+v", summary)
	}
	if repo.matches[match.ID].Status != domain.MatchRematched {
		t.Fatalf("expected prior match marked rematched, got %s", repo.matches[match.ID].Status)
	}
	if repo.bookings[booking.ID].Status != domain.BookingMatched {
		t.Fatalf("expected booking matched again, got %s", repo.bookings[booking.ID].Status)
	}
}

func TestExpireMatch_RejectsWhenRentalExists(t *testing.T) {
	repo := newStubRepo()
	repo.addBooking(testBooking("BLT", 100, 5))
	repo.addMembership(testMembership("BLT", 300))
	svc := newTestService(repo)
	match := matchFixture(t, repo, svc)

	if _, err := svc.AcceptMatch(context.Background(), match.ID); err != nil {
		t.Fatalf("AcceptMatch returned error: %v", err)
	}

	err := svc.ExpireMatch(context.Background(), match.ID)
	if !errors.Is(err, store.ErrRentalExists) {
		t.Fatalf("expected ErrRentalExists, got %v", err)
	}
}

func TestDeleteMatch_GuardsRentalAndReleasesPending(t *testing.T) {
	repo := newStubRepo()
	repo.addBooking(testBooking("BLT", 100, 5))
	m := repo.addMembership(testMembership("BLT", 300))
	svc := newTestService(repo)
	match := matchFixture(t, repo, svc)

	if err := svc.DeleteMatch(context.Background(), match.ID); err != nil {
		t.Fatalf("DeleteMatch returned error: %v", err)
	}
	if _, ok := repo.matches[match.ID]; ok {
		t.Fatal("expected match removed")
	}
	if got := repo.memberships[m.ID]; got.PointsAvailable != 300 || got.PointsReserved != 0 {
		t.Fatal("deleting a pending match must release its points")
	}

	if err := svc.DeleteMatch(context.Background(), uuid.New()); !errors.Is(err, store.ErrMatchNotFound) {
		t.Fatalf("expected ErrMatchNotFound, got %v", err)
	}
}
