/**
 * @description
 * The match allocator: for each eligible pending booking request it searches
 * owner memberships for a feasible point allocation and reserves it. The
 * allocator is split into a pure planning phase (no writes, reused verbatim by
 * dry-run) and a small apply phase that commits each planned match through the
 * row-locked reservation in the store.
 *
 * Absence of inventory is a normal outcome recorded in the run summary, never
 * an error. Races lost at commit are retried once against a fresh read; a
 * booking that still conflicts is left unmatched for this run.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Startups-dev/Pixiedvc-sub000/internal/domain"
	"github.com/Startups-dev/Pixiedvc-sub000/internal/store"
)

// Skip reasons recorded in the run summary.
const (
	SkipNoCapacity      = "no_membership_can_satisfy"
	SkipActiveMatch     = "active_match_exists"
	SkipNotMatchable    = "booking_not_matchable"
	SkipConflict        = "concurrency_conflict"
	SkipPlanApplyFailed = "reservation_failed"
)

// RunOptions controls one allocator invocation.
type RunOptions struct {
	DryRun    bool
	BookingID *uuid.UUID // targeted single-booking run
	Limit     int
	Now       time.Time // zero means time.Now().UTC()
}

// MatchPlan is one planned reservation: what RunMatcher would commit.
type MatchPlan struct {
	BookingID    uuid.UUID        `json:"booking_id"`
	MembershipID uuid.UUID        `json:"membership_id"`
	Points       int              `json:"points"`
	Tier         domain.MatchTier `json:"tier"`
	ExpiresAt    time.Time        `json:"expires_at"`
}

// SkippedBooking records why a considered booking was not matched.
type SkippedBooking struct {
	BookingID uuid.UUID `json:"booking_id"`
	Reason    string    `json:"reason"`
}

// RunSummary is the result of one allocator run.
type RunSummary struct {
	DryRun             bool             `json:"dry_run"`
	BookingsConsidered int              `json:"bookings_considered"`
	MatchesCreated     int              `json:"matches_created"`
	Planned            []MatchPlan      `json:"planned,omitempty"`
	Skipped            []SkippedBooking `json:"skipped,omitempty"`
}

// candidate is a membership paired with the tier it would satisfy a booking at.
type candidate struct {
	membership domain.OwnerMembership
	tier       domain.MatchTier
}

// PlanMatches performs the allocator's search without any writes and returns
// the plan. Dry-run and the real run share this path so both are testable in
// isolation.
func (s *Service) PlanMatches(ctx context.Context, opts RunOptions) (*RunSummary, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	bookings, err := s.candidateBookings(ctx, opts)
	if err != nil {
		return nil, err
	}

	memberships, err := s.repo.ListOpenMemberships(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}

	summary := &RunSummary{DryRun: opts.DryRun, BookingsConsidered: len(bookings)}

	// Points tentatively claimed earlier in this plan; without this, two
	// bookings in one sweep could both be planned against the same points.
	inflight := make(map[uuid.UUID]int)

	for i := range bookings {
		booking := &bookings[i]
		plan, reason := planForBooking(booking, memberships, inflight, now, s.settings.OfferWindow)
		if plan == nil {
			summary.Skipped = append(summary.Skipped, SkippedBooking{BookingID: booking.ID, Reason: reason})
			continue
		}
		inflight[plan.MembershipID] += plan.Points
		summary.Planned = append(summary.Planned, *plan)
	}

	return summary, nil
}

// RunMatcher plans and, unless dry-run, applies the plan. Safe to re-run:
// bookings matched by an earlier run fail the commit-time active-match
// re-check and are skipped, so a second immediate run is a no-op.
func (s *Service) RunMatcher(ctx context.Context, opts RunOptions) (*RunSummary, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
		opts.Now = now
	}

	if !opts.DryRun && opts.BookingID == nil && s.sweepLock != nil {
		release, ok, err := s.sweepLock.Acquire(ctx)
		if err != nil {
			log.Printf("level=warn component=allocator msg=\"sweep lock unavailable; proceeding unlocked\" err=%v", err)
		} else if !ok {
			log.Println("level=info component=allocator msg=\"sweep already in progress elsewhere; skipping\"")
			return &RunSummary{DryRun: false}, nil
		} else {
			defer release()
		}
	}

	summary, err := s.PlanMatches(ctx, opts)
	if err != nil {
		return nil, err
	}
	if opts.DryRun {
		return summary, nil
	}

	applied := summary.Planned[:0]
	for _, plan := range summary.Planned {
		created, skip := s.applyPlan(ctx, plan, now)
		if created != nil {
			applied = append(applied, plan)
			summary.MatchesCreated++
			s.publishMatchEvent(ctx, "match.created", created)
			continue
		}
		if skip != nil {
			summary.Skipped = append(summary.Skipped, *skip)
		}
	}
	summary.Planned = applied

	return summary, nil
}

// applyPlan commits one planned reservation. A lost race is retried once with
// a fresh single-booking plan; per-booking failures never abort the batch.
func (s *Service) applyPlan(ctx context.Context, plan MatchPlan, now time.Time) (*domain.Match, *SkippedBooking) {
	match := &domain.Match{
		ID:             uuid.New(),
		BookingID:      plan.BookingID,
		MembershipID:   plan.MembershipID,
		PointsReserved: plan.Points,
		Tier:           plan.Tier,
		Status:         domain.MatchPendingOwner,
		CreatedAt:      now,
		ExpiresAt:      plan.ExpiresAt,
	}

	err := s.repo.CreateMatchWithReservation(ctx, match)
	if err == nil {
		return match, nil
	}

	if errors.Is(err, store.ErrActiveMatchExists) {
		// Another run (targeted or sweep) got there first. Expected, not a failure.
		return nil, &SkippedBooking{BookingID: plan.BookingID, Reason: SkipActiveMatch}
	}
	if !errors.Is(err, store.ErrInsufficientPoints) && !errors.Is(err, store.ErrConcurrencyConflict) {
		log.Printf("level=error component=allocator msg=\"reservation failed\" booking_id=%s membership_id=%s err=%v",
			plan.BookingID, plan.MembershipID, err)
		return nil, &SkippedBooking{BookingID: plan.BookingID, Reason: SkipPlanApplyFailed}
	}

	// Lost a race for the membership's points: replan this one booking
	// against fresh reads and try once more.
	retry, retryErr := s.replanBooking(ctx, plan.BookingID, now)
	if retryErr != nil || retry == nil {
		return nil, &SkippedBooking{BookingID: plan.BookingID, Reason: SkipConflict}
	}
	match.ID = uuid.New()
	match.MembershipID = retry.MembershipID
	match.PointsReserved = retry.Points
	match.Tier = retry.Tier
	if err := s.repo.CreateMatchWithReservation(ctx, match); err != nil {
		if errors.Is(err, store.ErrActiveMatchExists) {
			return nil, &SkippedBooking{BookingID: plan.BookingID, Reason: SkipActiveMatch}
		}
		log.Printf("level=warn component=allocator msg=\"retry reservation failed; leaving booking for next run\" booking_id=%s err=%v",
			plan.BookingID, err)
		return nil, &SkippedBooking{BookingID: plan.BookingID, Reason: SkipConflict}
	}
	return match, nil
}

func (s *Service) replanBooking(ctx context.Context, bookingID uuid.UUID, now time.Time) (*MatchPlan, error) {
	booking, err := s.repo.FindBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	memberships, err := s.repo.ListOpenMemberships(ctx)
	if err != nil {
		return nil, err
	}
	plan, _ := planForBooking(booking, memberships, nil, now, s.settings.OfferWindow)
	return plan, nil
}

func (s *Service) candidateBookings(ctx context.Context, opts RunOptions) ([]domain.BookingRequest, error) {
	if opts.BookingID != nil {
		booking, err := s.repo.FindBookingByID(ctx, *opts.BookingID)
		if err != nil {
			return nil, err
		}
		if booking.Status != domain.BookingSubmitted && booking.Status != domain.BookingPendingMatch {
			return nil, fmt.Errorf("booking %s is %s, not matchable", booking.ID, booking.Status)
		}
		if _, err := s.repo.FindActiveMatchByBookingID(ctx, booking.ID); err == nil {
			return nil, store.ErrActiveMatchExists
		} else if !errors.Is(err, store.ErrMatchNotFound) {
			return nil, err
		}
		return []domain.BookingRequest{*booking}, nil
	}

	limit := opts.Limit
	if limit <= 0 || limit > s.settings.BatchLimit {
		limit = s.settings.BatchLimit
	}
	return s.repo.ListMatchableBookings(ctx, limit)
}

// planForBooking scans candidate memberships in tie-break order and picks the
// first that can satisfy the full point requirement. inflight may be nil.
func planForBooking(
	booking *domain.BookingRequest,
	memberships []domain.OwnerMembership,
	inflight map[uuid.UUID]int,
	now time.Time,
	offerWindow time.Duration,
) (*MatchPlan, string) {
	if booking.TotalPoints <= 0 {
		return nil, SkipNotMatchable
	}

	candidates := eligibleMemberships(booking, memberships, now)
	if len(candidates) == 0 {
		return nil, SkipNoCapacity
	}
	sortCandidates(candidates)

	for _, c := range candidates {
		available := c.membership.PointsAvailable - inflight[c.membership.ID]
		if available >= booking.TotalPoints {
			return &MatchPlan{
				BookingID:    booking.ID,
				MembershipID: c.membership.ID,
				Points:       booking.TotalPoints,
				Tier:         c.tier,
				ExpiresAt:    now.Add(offerWindow),
			}, ""
		}
	}
	return nil, SkipNoCapacity
}

// eligibleMemberships applies the resort, window, resale-restriction, and
// use-year filters, returning each feasible membership at its best tier.
func eligibleMemberships(booking *domain.BookingRequest, memberships []domain.OwnerMembership, now time.Time) []candidate {
	stayResorts := append([]string{booking.ResortCode}, booking.AlternateResorts...)

	var out []candidate
	for i := range memberships {
		m := &memberships[i]
		if !m.CoversStay(booking.CheckOut) {
			continue
		}

		best := domain.MatchTier("")
		for _, stay := range stayResorts {
			// Resale-restricted memberships are skipped entirely for that resort.
			if m.IsRestrictedFrom(stay) {
				continue
			}

			var eligible bool
			if m.HomeResort == stay {
				// Home-resort booking: the premium 11-month window applies.
				eligible = m.InPremiumWindow(booking.CheckIn, now)
			} else {
				// Cross-resort booking: needs the standard-fallback mode and
				// the 7-month window to have opened.
				eligible = m.MatchingMode == domain.MatchPremiumThenStandard &&
					m.InStandardWindow(booking.CheckIn, now)
			}
			if !eligible {
				continue
			}

			tier := domain.TierAlternate
			if stay == booking.ResortCode {
				tier = domain.TierPrimary
			}
			if best == "" || (best == domain.TierAlternate && tier == domain.TierPrimary) {
				best = tier
			}
		}
		if best != "" {
			out = append(out, candidate{membership: *m, tier: best})
		}
	}
	return out
}

// sortCandidates orders candidates by the preserved tie-break: primary-resort
// matches first, then soonest-expiring points, then earliest-created
// membership.
func sortCandidates(candidates []candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.tier != b.tier {
			return a.tier == domain.TierPrimary
		}
		if !a.membership.UseYearEnd.Equal(b.membership.UseYearEnd) {
			return a.membership.UseYearEnd.Before(b.membership.UseYearEnd)
		}
		return a.membership.CreatedAt.Before(b.membership.CreatedAt)
	})
}

func (s *Service) publishMatchEvent(ctx context.Context, routingKey string, match *domain.Match) {
	if s.producer == nil {
		return
	}
	event := rabbitmqMatchEvent{
		MatchID:      match.ID,
		BookingID:    match.BookingID,
		MembershipID: match.MembershipID,
		Points:       match.PointsReserved,
		Status:       string(match.Status),
		ExpiresAt:    match.ExpiresAt,
	}
	// Best-effort: a failed notification never rolls back the reservation.
	if err := s.producer.Publish(ctx, "pixiedvc.events", routingKey, event); err != nil {
		log.Printf("level=warn component=allocator msg=\"event publish failed\" routing_key=%s match_id=%s err=%v",
			routingKey, match.ID, err)
	}
}

type rabbitmqMatchEvent struct {
	MatchID      uuid.UUID `json:"match_id"`
	BookingID    uuid.UUID `json:"booking_id"`
	MembershipID uuid.UUID `json:"membership_id"`
	Points       int       `json:"points"`
	Status       string    `json:"status"`
	ExpiresAt    time.Time `json:"expires_at"`
}
