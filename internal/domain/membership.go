/**
 * @description
 * This file defines the owner membership model: one owner's point contract at
 * one home resort for one use-year. The four point counters are the resource
 * the allocator competes for; they are only ever mutated by the store layer,
 * which moves points between the counters inside a single row-locked update.
 *
 * @notes
 * - Invariant: points_available + points_reserved + points_rented never
 *   exceeds points_owned. The store enforces it by construction.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// MatchingMode governs which booking windows a membership participates in.
type MatchingMode string

const (
	// MatchPremiumOnly restricts the membership to home-resort bookings inside
	// the 11-month premium window.
	MatchPremiumOnly MatchingMode = "premium_only"
	// MatchPremiumThenStandard additionally allows cross-resort bookings once
	// the 7-month standard window has opened.
	MatchPremiumThenStandard MatchingMode = "premium_then_standard"
)

// Booking windows relative to check-in. Only the home-resort owner may book
// inside the premium window; cross-resort booking opens at the standard window.
const (
	PremiumWindowMonths  = 11
	StandardWindowMonths = 7
)

// OwnerMembership is one owner's point contract at one resort for one use-year.
type OwnerMembership struct {
	ID                uuid.UUID    `json:"id"`
	OwnerID           uuid.UUID    `json:"owner_id"`
	HomeResort        string       `json:"home_resort"`
	UseYearStart      time.Time    `json:"use_year_start"`
	UseYearEnd        time.Time    `json:"use_year_end"`
	PointsOwned       int          `json:"points_owned"`
	PointsAvailable   int          `json:"points_available"`
	PointsReserved    int          `json:"points_reserved"`
	PointsRented      int          `json:"points_rented"`
	MatchingMode      MatchingMode `json:"matching_mode"`
	RestrictedResorts []string     `json:"restricted_resorts,omitempty"` // resale restriction exclusions
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// IsRestrictedFrom reports whether a resale restriction bars this membership
// from booking the given resort.
func (m *OwnerMembership) IsRestrictedFrom(resortCode string) bool {
	for _, r := range m.RestrictedResorts {
		if r == resortCode {
			return true
		}
	}
	return false
}

// InPremiumWindow reports whether check-in falls inside the home-resort
// 11-month window as of now.
func (m *OwnerMembership) InPremiumWindow(checkIn, now time.Time) bool {
	return !checkIn.After(now.AddDate(0, PremiumWindowMonths, 0))
}

// InStandardWindow reports whether check-in falls inside the cross-resort
// 7-month window as of now.
func (m *OwnerMembership) InStandardWindow(checkIn, now time.Time) bool {
	return !checkIn.After(now.AddDate(0, StandardWindowMonths, 0))
}

// CoversStay reports whether the membership's points remain usable through the
// end of the stay; points expiring mid-use-year cannot back a later check-out.
func (m *OwnerMembership) CoversStay(checkOut time.Time) bool {
	return !m.UseYearEnd.Before(checkOut)
}
