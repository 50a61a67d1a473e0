/**
 * @description
 * This file defines the Match model: a reservation binding one booking request
 * to one owner membership, plus the closed transition table that the lifecycle
 * state machine enforces. Exactly one non-terminal match may exist per booking
 * request at any time; the store re-checks that under the row lock at commit.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// MatchStatus is the closed set of match states.
type MatchStatus string

const (
	MatchPendingOwner MatchStatus = "pending_owner"
	MatchAccepted     MatchStatus = "accepted"
	MatchDeclined     MatchStatus = "declined"
	MatchExpired      MatchStatus = "expired"
	MatchRematched    MatchStatus = "rematched"
)

var matchTransitions = map[MatchStatus][]MatchStatus{
	MatchPendingOwner: {MatchAccepted, MatchDeclined, MatchExpired},
	MatchExpired:      {MatchRematched},
}

// CanTransitionTo reports whether the match status transition is allowed.
func (s MatchStatus) CanTransitionTo(next MatchStatus) bool {
	for _, allowed := range matchTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the match has left the pending state for good.
// Every terminal-but-not-accepted exit must have released its reserved points.
func (s MatchStatus) IsTerminal() bool {
	return s != MatchPendingOwner
}

// MatchTier records how the membership satisfied the booking's resort choice.
type MatchTier string

const (
	TierPrimary   MatchTier = "primary"   // membership home resort is the booking's primary resort
	TierAlternate MatchTier = "alternate" // membership home resort is an accepted alternate
)

// Match is a reservation binding one BookingRequest to one OwnerMembership.
type Match struct {
	ID             uuid.UUID   `json:"id"`
	BookingID      uuid.UUID   `json:"booking_id"`
	MembershipID   uuid.UUID   `json:"membership_id"`
	PointsReserved int         `json:"points_reserved"`
	Tier           MatchTier   `json:"tier"`
	Status         MatchStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	ExpiresAt      time.Time   `json:"expires_at"`
	RespondedAt    *time.Time  `json:"responded_at,omitempty"`
}

// IsExpiredAt reports whether a still-pending offer has run out of time.
// Expiry is detected lazily: the caller that observes it owns the atomic
// release-and-mark operation.
func (m *Match) IsExpiredAt(now time.Time) bool {
	return m.Status == MatchPendingOwner && now.After(m.ExpiresAt)
}

// MatchListFilter controls the admin match listing.
type MatchListFilter struct {
	Status       MatchStatus
	PayoutStatus PayoutStatus
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	CheckInFrom  *time.Time
	CheckInTo    *time.Time
	Text         string
	Sort         string // "created_at", "-created_at", "expires_at", "check_in"
	Limit        int
	Offset       int
}

// MatchListRow is one row of the admin match listing: the match joined with
// the summary fields the list screen needs, plus computed advisory flags.
type MatchListRow struct {
	Match            Match         `json:"match"`
	BookingStatus    BookingStatus `json:"booking_status"`
	ResortCode       string        `json:"resort_code"`
	CheckIn          time.Time     `json:"check_in"`
	CheckOut         time.Time     `json:"check_out"`
	GuestTotalCents  int64         `json:"guest_total_cents"`
	RentalID         *uuid.UUID    `json:"rental_id,omitempty"`
	PayoutStatus     PayoutStatus  `json:"payout_status,omitempty"`
	BookingCancelled bool          `json:"booking_cancelled"`
	InvalidMatch     bool          `json:"invalid_match"`
	HasRental        bool          `json:"has_rental"`
	IsExpiringSoon   bool          `json:"is_expiring_soon"`
}
