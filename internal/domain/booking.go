/**
 * @description
 * This file defines the guest-facing booking request model and its status
 * lifecycle. A booking request captures the desired stay and the computed
 * totals the matching engine allocates owner points against.
 *
 * @notes
 * - Amounts are stored as `int64` cents to avoid floating-point inaccuracies
 *   with financial data.
 * - Statuses are a closed enum with an explicit transition table; writes that
 *   are not in the table are rejected rather than persisted as arbitrary
 *   strings.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus is the closed set of booking request states.
type BookingStatus string

const (
	BookingDraft            BookingStatus = "draft"
	BookingSubmitted        BookingStatus = "submitted"
	BookingPendingMatch     BookingStatus = "pending_match"
	BookingMatched          BookingStatus = "matched"
	BookingContractSent     BookingStatus = "contract_sent"
	BookingContractSigned   BookingStatus = "contract_signed"
	BookingPaidWaitingOwner BookingStatus = "paid_waiting_owner_transfer"
	BookingTransferred      BookingStatus = "transferred"
	BookingCompleted        BookingStatus = "completed"
	BookingCancelled        BookingStatus = "cancelled"
	BookingExpired          BookingStatus = "expired"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingDraft:            {BookingSubmitted, BookingCancelled, BookingExpired},
	BookingSubmitted:        {BookingPendingMatch, BookingMatched, BookingCancelled, BookingExpired},
	BookingPendingMatch:     {BookingMatched, BookingCancelled, BookingExpired},
	BookingMatched:          {BookingPendingMatch, BookingContractSent, BookingCancelled},
	BookingContractSent:     {BookingContractSigned, BookingCancelled},
	BookingContractSigned:   {BookingPaidWaitingOwner, BookingCancelled},
	BookingPaidWaitingOwner: {BookingTransferred, BookingCancelled},
	BookingTransferred:      {BookingCompleted, BookingCancelled},
}

// CanTransitionTo reports whether the booking status transition is allowed.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the booking can no longer advance.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingCompleted || s == BookingCancelled || s == BookingExpired
}

// BookingRequest represents a guest's desired stay. The engine only reads the
// fields it needs for matching and settlement; the booking wizard owns the rest.
type BookingRequest struct {
	ID                 uuid.UUID     `json:"id"`
	GuestID            uuid.UUID     `json:"guest_id"`
	ResortCode         string        `json:"resort_code"`
	AlternateResorts   []string      `json:"alternate_resorts,omitempty"`
	RoomType           string        `json:"room_type"`
	ViewType           string        `json:"view_type,omitempty"`
	CheckIn            time.Time     `json:"check_in"`
	CheckOut           time.Time     `json:"check_out"`
	PartySize          int           `json:"party_size"`
	TotalPoints        int           `json:"total_points"`
	GuestTotalCents    int64         `json:"guest_total_cents"`
	EstimatedCashCents int64         `json:"estimated_cash_cents,omitempty"` // legacy estimate, fallback only
	JurisdictionID     *uuid.UUID    `json:"jurisdiction_id,omitempty"`
	Status             BookingStatus `json:"status"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// TotalDueCents returns the amount the guest owes, falling back to the legacy
// estimated-cash field when the primary total was never computed. The second
// return reports whether the fallback was used.
func (b *BookingRequest) TotalDueCents() (int64, bool) {
	if b.GuestTotalCents > 0 {
		return b.GuestTotalCents, false
	}
	return b.EstimatedCashCents, true
}

// AcceptsResort reports whether the booking can be fulfilled at the given
// resort, either as its primary choice or as an accepted alternate.
func (b *BookingRequest) AcceptsResort(resortCode string) bool {
	if b.ResortCode == resortCode {
		return true
	}
	for _, alt := range b.AlternateResorts {
		if alt == resortCode {
			return true
		}
	}
	return false
}
