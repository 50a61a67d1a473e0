/**
 * @description
 * Tax resolution and calculation for rentals. Rate lookup and line math are
 * pure functions over the jurisdiction's rate table so the same inputs always
 * produce the same breakdown; anything unresolvable degrades to a warning on
 * the breakdown rather than an error, because a missing tax table must never
 * block a settlement view.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Startups-dev/Pixiedvc-sub000/internal/domain"
	"github.com/Startups-dev/Pixiedvc-sub000/internal/store"
)

// ResolveRates filters a jurisdiction's rate table down to the rates in force
// at the reference instant.
func ResolveRates(rates []domain.TaxRate, ref time.Time) []domain.TaxRate {
	inForce := make([]domain.TaxRate, 0, len(rates))
	for _, r := range rates {
		if r.InForceAt(ref) {
			inForce = append(inForce, r)
		}
	}
	return inForce
}

// ComputeTaxes applies each rate to its base and rounds half-up per line.
// Totals are the sum of rounded lines, never a rounding of the sum.
func ComputeTaxes(lodgingCents, serviceFeeCents int64, rates []domain.TaxRate) domain.TaxBreakdown {
	breakdown := domain.TaxBreakdown{Lines: make([]domain.TaxLine, 0, len(rates))}
	for _, r := range rates {
		var base int64
		switch r.AppliesTo {
		case domain.TaxOnLodging:
			base = lodgingCents
		case domain.TaxOnServiceFee:
			base = serviceFeeCents
		case domain.TaxOnBoth:
			base = lodgingCents + serviceFeeCents
		default:
			breakdown.Warnings = append(breakdown.Warnings,
				fmt.Sprintf("rate %q has unknown base %q and was skipped", r.TaxType, r.AppliesTo))
			continue
		}
		amount := roundHalfUpBps(base, r.RateBps)
		breakdown.Lines = append(breakdown.Lines, domain.TaxLine{
			TaxType:     r.TaxType,
			RateBps:     r.RateBps,
			AppliesTo:   r.AppliesTo,
			BaseCents:   base,
			AmountCents: amount,
		})
		breakdown.TotalCents += amount
	}
	return breakdown
}

// roundHalfUpBps computes base * bps / 10000 rounded half-up in cents.
func roundHalfUpBps(baseCents, bps int64) int64 {
	return (baseCents*bps + 5000) / 10000
}

// TaxBreakdownForBooking resolves the booking's jurisdiction and computes the
// breakdown against its current rate table. A booking with no jurisdiction, or
// a jurisdiction with no rate in force, yields an empty breakdown carrying a
// warning.
func (s *Service) TaxBreakdownForBooking(ctx context.Context, booking *domain.BookingRequest, lodgingCents, serviceFeeCents int64, ref time.Time) (domain.TaxBreakdown, error) {
	if booking.JurisdictionID == nil {
		return domain.TaxBreakdown{Warnings: []string{"booking has no tax jurisdiction"}}, nil
	}

	if _, err := s.repo.FindJurisdictionByID(ctx, *booking.JurisdictionID); err != nil {
		if errors.Is(err, store.ErrJurisdictionNotFound) {
			return domain.TaxBreakdown{Warnings: []string{
				fmt.Sprintf("tax jurisdiction %s not found", *booking.JurisdictionID),
			}}, nil
		}
		return domain.TaxBreakdown{}, err
	}

	rates, err := s.repo.ListTaxRatesByJurisdiction(ctx, *booking.JurisdictionID)
	if err != nil {
		return domain.TaxBreakdown{}, err
	}

	inForce := ResolveRates(rates, ref)
	if len(inForce) == 0 {
		return domain.TaxBreakdown{Warnings: []string{
			fmt.Sprintf("no tax rate in force for jurisdiction %s at %s", *booking.JurisdictionID, ref.Format(time.RFC3339)),
		}}, nil
	}
	return ComputeTaxes(lodgingCents, serviceFeeCents, inForce), nil
}
