/**
 * @description
 * This file defines the Rental created when a match is accepted, and the
 * operational milestones whose completion gates staged owner payouts.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// RentalStatus is the closed set of rental states.
type RentalStatus string

const (
	RentalNeedsDVCBooking        RentalStatus = "needs_dvc_booking"
	RentalBookedPendingAgreement RentalStatus = "booked_pending_agreement"
	RentalBooked                 RentalStatus = "booked"
	RentalCompleted              RentalStatus = "completed"
	RentalCancelled              RentalStatus = "cancelled"
)

var rentalTransitions = map[RentalStatus][]RentalStatus{
	RentalNeedsDVCBooking:        {RentalBookedPendingAgreement, RentalCancelled},
	RentalBookedPendingAgreement: {RentalBooked, RentalCancelled},
	RentalBooked:                 {RentalCompleted, RentalCancelled},
}

// CanTransitionTo reports whether the rental status transition is allowed.
func (s RentalStatus) CanTransitionTo(next RentalStatus) bool {
	for _, allowed := range rentalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// MilestoneCode identifies one operational milestone on a rental.
type MilestoneCode string

const (
	MilestoneGuestVerified      MilestoneCode = "guest_verified"
	MilestonePaymentVerified    MilestoneCode = "payment_verified"
	MilestoneBookingPackageSent MilestoneCode = "booking_package_sent"
	MilestoneOwnerBooked        MilestoneCode = "owner_booking_confirmed"
	MilestoneTransferCompleted  MilestoneCode = "transfer_completed"
)

// DefaultMilestoneSet is the ordered milestone sequence seeded onto every new
// rental when a match is accepted.
var DefaultMilestoneSet = []MilestoneCode{
	MilestoneGuestVerified,
	MilestonePaymentVerified,
	MilestoneBookingPackageSent,
	MilestoneOwnerBooked,
	MilestoneTransferCompleted,
}

// MilestoneStatus is pending or completed; milestones never regress.
type MilestoneStatus string

const (
	MilestonePending   MilestoneStatus = "pending"
	MilestoneCompleted MilestoneStatus = "completed"
)

// Rental is the in-progress stay created from an accepted match.
type Rental struct {
	ID              uuid.UUID    `json:"id"`
	MatchID         uuid.UUID    `json:"match_id"`
	Status          RentalStatus `json:"status"`
	DVCConfirmation *string      `json:"dvc_confirmation,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// RentalMilestone is one operational step on a rental.
type RentalMilestone struct {
	ID         uuid.UUID       `json:"id"`
	RentalID   uuid.UUID       `json:"rental_id"`
	Code       MilestoneCode   `json:"code"`
	Status     MilestoneStatus `json:"status"`
	OccurredAt *time.Time      `json:"occurred_at,omitempty"`
}

// MilestonesCompleted reports whether every listed code is completed in the
// given milestone set. Unknown codes count as not completed.
func MilestonesCompleted(milestones []RentalMilestone, codes []MilestoneCode) bool {
	done := make(map[MilestoneCode]bool, len(milestones))
	for _, m := range milestones {
		if m.Status == MilestoneCompleted {
			done[m.Code] = true
		}
	}
	for _, c := range codes {
		if !done[c] {
			return false
		}
	}
	return true
}
