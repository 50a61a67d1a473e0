/**
 * @description
 * This file defines effective-dated jurisdictional tax rates and the computed
 * tax breakdown. Rates are expressed in basis points and applied with integer
 * cents arithmetic; missing data downgrades to warnings, never to errors,
 * so financial summaries can always render.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaxBase identifies which charge base a rate applies to.
type TaxBase string

const (
	TaxOnLodging    TaxBase = "lodging"
	TaxOnServiceFee TaxBase = "service_fee"
	TaxOnBoth       TaxBase = "both"
)

// TaxJurisdiction is the taxing authority for a resort location.
type TaxJurisdiction struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Region string    `json:"region,omitempty"`
}

// TaxRate is one effective-dated rate row for a jurisdiction.
type TaxRate struct {
	ID             uuid.UUID  `json:"id"`
	JurisdictionID uuid.UUID  `json:"jurisdiction_id"`
	TaxType        string     `json:"tax_type"` // e.g. 'occupancy', 'sales'
	RateBps        int64      `json:"rate_bps"`
	AppliesTo      TaxBase    `json:"applies_to"`
	EffectiveFrom  time.Time  `json:"effective_from"`
	EffectiveTo    *time.Time `json:"effective_to,omitempty"` // nil = open-ended
}

// InForceAt reports whether the rate row is effective at the reference date.
func (r *TaxRate) InForceAt(ref time.Time) bool {
	if ref.Before(r.EffectiveFrom) {
		return false
	}
	return r.EffectiveTo == nil || !ref.After(*r.EffectiveTo)
}

// TaxLine is one computed tax line item.
type TaxLine struct {
	TaxType     string  `json:"tax_type"`
	AppliesTo   TaxBase `json:"applies_to"`
	RateBps     int64   `json:"rate_bps"`
	BaseCents   int64   `json:"base_cents"`
	AmountCents int64   `json:"amount_cents"`
}

// TaxBreakdown is the full computed tax liability plus any data-quality
// warnings accumulated while computing it.
type TaxBreakdown struct {
	Lines      []TaxLine `json:"lines"`
	TotalCents int64     `json:"total_cents"`
	Warnings   []string  `json:"warnings,omitempty"`
}
