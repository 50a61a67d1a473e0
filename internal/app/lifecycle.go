/**
 * @description
 * The match lifecycle state machine: owner accept/decline, time-based expiry,
 * and the admin overrides. Every exit from pending_owner other than accepted
 * releases exactly the points that were reserved, exactly once; the store's
 * status guard makes replays no-ops even when several scheduler ticks detect
 * the same expiry.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Startups-dev/Pixiedvc-sub000/internal/domain"
	"github.com/Startups-dev/Pixiedvc-sub000/internal/store"
)

// AcceptMatch records the owner's acceptance: reserved points move to rented
// and the rental is created with its pending milestone set. An offer past its
// expiry cannot be accepted; the detecting path expires it instead.
func (s *Service) AcceptMatch(ctx context.Context, matchID uuid.UUID) (*domain.Rental, error) {
	now := time.Now().UTC()

	match, err := s.repo.FindMatchByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.IsExpiredAt(now) {
		// Lazy expiry: we observed it, so we own the release.
		if _, expErr := s.repo.ReleaseMatchPoints(ctx, matchID, domain.MatchExpired, now); expErr != nil {
			log.Printf("level=error component=lifecycle msg=\"failed to expire overdue match on accept path\" match_id=%s err=%v", matchID, expErr)
		} else {
			match.Status = domain.MatchExpired
			s.publishMatchEvent(ctx, "match.expired", match)
		}
		return nil, fmt.Errorf("offer expired at %s: %w", match.ExpiresAt.Format(time.RFC3339), store.ErrInvalidTransition)
	}

	rental, err := s.repo.AcceptMatch(ctx, matchID, now)
	if err != nil {
		return nil, err
	}
	match.Status = domain.MatchAccepted
	s.publishMatchEvent(ctx, "match.accepted", match)

	// Seed the payout ledger for the new rental. A failure here is logged and
	// repaired by the next payout refresh, not propagated to the owner action.
	if _, err := s.RefreshPayouts(ctx, rental.ID); err != nil {
		log.Printf("level=warn component=lifecycle msg=\"initial payout projection failed\" rental_id=%s err=%v", rental.ID, err)
	}

	return rental, nil
}

// DeclineMatch records the owner's decline and releases the reserved points;
// the booking returns to the matcher's queue.
func (s *Service) DeclineMatch(ctx context.Context, matchID uuid.UUID) error {
	now := time.Now().UTC()

	match, err := s.repo.FindMatchByID(ctx, matchID)
	if err != nil {
		return err
	}

	released, err := s.repo.ReleaseMatchPoints(ctx, matchID, domain.MatchDeclined, now)
	if err != nil {
		return err
	}
	if !released {
		return fmt.Errorf("match %s is %s: %w", matchID, match.Status, store.ErrInvalidTransition)
	}
	match.Status = domain.MatchDeclined
	s.publishMatchEvent(ctx, "match.declined", match)
	return nil
}

// ExpireMatch is the admin override: it performs the same release as natural
// expiry but rejects outright when the match has produced a rental.
func (s *Service) ExpireMatch(ctx context.Context, matchID uuid.UUID) error {
	match, err := s.repo.FindMatchByID(ctx, matchID)
	if err != nil {
		return err
	}
	if _, err := s.repo.FindRentalByMatchID(ctx, matchID); err == nil {
		return store.ErrRentalExists
	} else if !errors.Is(err, store.ErrRentalNotFound) {
		return err
	}

	released, err := s.repo.ReleaseMatchPoints(ctx, matchID, domain.MatchExpired, time.Now().UTC())
	if err != nil {
		return err
	}
	if !released {
		return fmt.Errorf("match %s is %s: %w", matchID, match.Status, store.ErrInvalidTransition)
	}
	match.Status = domain.MatchExpired
	s.publishMatchEvent(ctx, "match.expired", match)
	return nil
}

// DeleteMatch removes a match invalidated by a booking cancellation. Rejects
// when a rental exists; irreversible otherwise.
func (s *Service) DeleteMatch(ctx context.Context, matchID uuid.UUID) error {
	return s.repo.DeleteMatch(ctx, matchID)
}

// ExpireDueMatches realizes the expired transition for every pending match
// whose offer window has elapsed. Per-record failures are logged and isolated;
// one bad match never stops the sweep. Returns the number of matches expired.
func (s *Service) ExpireDueMatches(ctx context.Context, now time.Time, limit int) (int, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if limit <= 0 {
		limit = s.settings.BatchLimit
	}

	due, err := s.repo.ListDueExpiryMatches(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list due matches: %w", err)
	}

	expired := 0
	for i := range due {
		match := &due[i]
		released, err := s.repo.ReleaseMatchPoints(ctx, match.ID, domain.MatchExpired, now)
		if err != nil {
			log.Printf("level=error component=lifecycle msg=\"expiry release failed\" match_id=%s err=%v", match.ID, err)
			continue
		}
		if !released {
			// Another tick got there first; the release is idempotent.
			continue
		}
		expired++
		match.Status = domain.MatchExpired
		s.publishMatchEvent(ctx, "match.expired", match)
	}
	return expired, nil
}
