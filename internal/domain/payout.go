/**
 * @description
 * This file defines the staged owner payout model and the configurable stage
 * plan. Stage shares and their gating milestones are product configuration,
 * not code: the plan is parsed from a compact env string at startup.
 */

package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PayoutStatus is the closed set of payout stage states. `released` is a
// one-way terminal state set by the external payout-execution step.
type PayoutStatus string

const (
	PayoutPending  PayoutStatus = "pending"
	PayoutEligible PayoutStatus = "eligible"
	PayoutReleased PayoutStatus = "released"
)

// PayoutLedgerEntry is one staged payout to the owner for a rental.
type PayoutLedgerEntry struct {
	ID          uuid.UUID    `json:"id"`
	RentalID    uuid.UUID    `json:"rental_id"`
	Stage       int          `json:"stage"` // ordinal, 1-based
	AmountCents int64        `json:"amount_cents"`
	Status      PayoutStatus `json:"status"`
	EligibleAt  *time.Time   `json:"eligible_at,omitempty"`
	ReleasedAt  *time.Time   `json:"released_at,omitempty"`
}

// PayoutStageDef is one configured payout stage: its share of the owner
// receivable in basis points and the milestones gating its eligibility.
type PayoutStageDef struct {
	Stage    int
	ShareBps int64
	Gates    []MilestoneCode
}

// ParsePayoutStagePlan parses the compact stage-plan syntax used in config:
// semicolon-separated stages of "<share_bps>:<gate>,<gate>", e.g.
// "5000:payment_verified,owner_booking_confirmed;5000:transfer_completed".
// Shares must sum to 10000 bps.
func ParsePayoutStagePlan(plan string) ([]PayoutStageDef, error) {
	trimmed := strings.TrimSpace(plan)
	if trimmed == "" {
		return nil, fmt.Errorf("payout stage plan is empty")
	}

	var defs []PayoutStageDef
	var totalBps int64
	for i, part := range strings.Split(trimmed, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, ":", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("stage %d: expected \"<share_bps>:<gates>\", got %q", i+1, part)
		}
		bps, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
		if err != nil || bps <= 0 {
			return nil, fmt.Errorf("stage %d: invalid share bps %q", i+1, fields[0])
		}
		var gates []MilestoneCode
		for _, g := range strings.Split(fields[1], ",") {
			g = strings.TrimSpace(g)
			if g == "" {
				continue
			}
			gates = append(gates, MilestoneCode(g))
		}
		if len(gates) == 0 {
			return nil, fmt.Errorf("stage %d: at least one gating milestone is required", i+1)
		}
		totalBps += bps
		defs = append(defs, PayoutStageDef{Stage: len(defs) + 1, ShareBps: bps, Gates: gates})
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("payout stage plan has no stages")
	}
	if totalBps != 10000 {
		return nil, fmt.Errorf("payout stage shares must sum to 10000 bps, got %d", totalBps)
	}
	return defs, nil
}
