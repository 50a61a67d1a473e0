/**
 * @description
 * This file defines the `Repository` interface: the contract for all data
 * access the matching and settlement engine needs. The interface decouples the
 * engine's business logic from PostgreSQL and is what the tests stub out.
 *
 * The point-moving operations (CreateMatchWithReservation, AcceptMatch,
 * ReleaseMatchPoints) are the only mutation paths for membership point
 * balances; each is a single database transaction serialized per membership
 * via a row lock.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the engine's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Startups-dev/Pixiedvc-sub000/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Booking requests
	FindBookingByID(ctx context.Context, bookingID uuid.UUID) (*domain.BookingRequest, error)
	// ListMatchableBookings returns bookings in submitted/pending_match with no
	// non-terminal match, oldest first. The absence of an active match is
	// re-checked under the membership row lock at reservation commit.
	ListMatchableBookings(ctx context.Context, limit int) ([]domain.BookingRequest, error)

	// Owner memberships
	FindMembershipByID(ctx context.Context, membershipID uuid.UUID) (*domain.OwnerMembership, error)
	ListOpenMemberships(ctx context.Context) ([]domain.OwnerMembership, error)
	AvailablePoints(ctx context.Context, membershipID uuid.UUID) (int, error)

	// Matches and point inventory. All three mutate point balances atomically.
	CreateMatchWithReservation(ctx context.Context, match *domain.Match) error
	AcceptMatch(ctx context.Context, matchID uuid.UUID, now time.Time) (*domain.Rental, error)
	// ReleaseMatchPoints moves a pending match to declined/expired and credits
	// the reserved points back. Returns false when the match was already
	// terminal, making replays no-ops rather than double-credits.
	ReleaseMatchPoints(ctx context.Context, matchID uuid.UUID, to domain.MatchStatus, now time.Time) (bool, error)
	DeleteMatch(ctx context.Context, matchID uuid.UUID) error

	FindMatchByID(ctx context.Context, matchID uuid.UUID) (*domain.Match, error)
	FindActiveMatchByBookingID(ctx context.Context, bookingID uuid.UUID) (*domain.Match, error)
	ListMatches(ctx context.Context, filter domain.MatchListFilter) ([]domain.MatchListRow, error)
	// ListDueExpiryMatches returns pending matches whose offer window has
	// elapsed as of now, oldest expiry first.
	ListDueExpiryMatches(ctx context.Context, now time.Time, limit int) ([]domain.Match, error)

	// Rentals and milestones
	FindRentalByID(ctx context.Context, rentalID uuid.UUID) (*domain.Rental, error)
	FindRentalByMatchID(ctx context.Context, matchID uuid.UUID) (*domain.Rental, error)
	ListMilestonesByRentalID(ctx context.Context, rentalID uuid.UUID) ([]domain.RentalMilestone, error)

	// Transactions (read-only: the processor webhook pipeline writes them)
	ListTransactionsByMatchID(ctx context.Context, matchID uuid.UUID) ([]domain.Transaction, error)

	// Payout ledger
	ListPayoutEntriesByRentalID(ctx context.Context, rentalID uuid.UUID) ([]domain.PayoutLedgerEntry, error)
	// SyncPayoutEntries upserts projected pending/eligible entries. Rows
	// already released are never touched; attempting to change one is an
	// invariant violation reported via ErrStageReleased.
	SyncPayoutEntries(ctx context.Context, rentalID uuid.UUID, entries []domain.PayoutLedgerEntry) error

	// Tax
	FindJurisdictionByID(ctx context.Context, jurisdictionID uuid.UUID) (*domain.TaxJurisdiction, error)
	ListTaxRatesByJurisdiction(ctx context.Context, jurisdictionID uuid.UUID) ([]domain.TaxRate, error)
}
