/**
 * @description
 * The admin query facade: the match listing with its advisory flags and the
 * single-match detail aggregate the operations screen renders. Everything
 * here is read-only composition over the repository plus the settlement
 * projectors; the flags are computed, never stored.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Startups-dev/Pixiedvc-sub000/internal/domain"
	"github.com/Startups-dev/Pixiedvc-sub000/internal/store"
)

// ExpectedSplit is the computed split of the guest total for a match.
type ExpectedSplit struct {
	Recipient   domain.SplitRecipient `json:"recipient"`
	AmountCents int64                 `json:"amount_cents"`
}

// MatchDetail is the full settlement view of one match.
type MatchDetail struct {
	Match           *domain.Match              `json:"match"`
	Booking         *domain.BookingRequest     `json:"booking"`
	Membership      *domain.OwnerMembership    `json:"membership"`
	Rental          *domain.Rental             `json:"rental,omitempty"`
	Milestones      []domain.RentalMilestone   `json:"milestones,omitempty"`
	Transactions    []domain.Transaction       `json:"transactions,omitempty"`
	PaymentSchedule *PaymentSchedule           `json:"payment_schedule,omitempty"`
	TaxBreakdown    domain.TaxBreakdown        `json:"tax_breakdown"`
	ExpectedSplits  []ExpectedSplit            `json:"expected_splits"`
	PayoutEntries   []domain.PayoutLedgerEntry `json:"payout_entries,omitempty"`
	Warnings        []string                   `json:"warnings,omitempty"`
}

// ListMatches returns the filtered admin match listing with its computed
// advisory flags filled in.
func (s *Service) ListMatches(ctx context.Context, filter domain.MatchListFilter) ([]domain.MatchListRow, error) {
	rows, err := s.repo.ListMatches(ctx, filter)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for i := range rows {
		row := &rows[i]
		row.BookingCancelled = row.BookingStatus == domain.BookingCancelled
		row.HasRental = row.RentalID != nil
		// A pending offer against a cancelled booking is stale and should be deleted.
		row.InvalidMatch = row.BookingCancelled && row.Match.Status == domain.MatchPendingOwner
		row.IsExpiringSoon = row.Match.Status == domain.MatchPendingOwner &&
			!now.After(row.Match.ExpiresAt) &&
			!row.Match.ExpiresAt.After(now.Add(s.settings.ExpiringSoonWindow))
	}
	return rows, nil
}

// GetMatchDetail aggregates everything the operations detail screen needs for
// one match. Missing settlement data (no rental yet, no tax table) degrades to
// warnings on the aggregate rather than an error.
func (s *Service) GetMatchDetail(ctx context.Context, matchID uuid.UUID) (*MatchDetail, error) {
	match, err := s.repo.FindMatchByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	booking, err := s.repo.FindBookingByID(ctx, match.BookingID)
	if err != nil {
		return nil, err
	}
	membership, err := s.repo.FindMembershipByID(ctx, match.MembershipID)
	if err != nil {
		return nil, err
	}

	detail := &MatchDetail{
		Match:      match,
		Booking:    booking,
		Membership: membership,
	}

	txns, err := s.repo.ListTransactionsByMatchID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	detail.Transactions = txns
	for _, t := range txns {
		if !t.SplitsBalanced() {
			detail.Warnings = append(detail.Warnings,
				fmt.Sprintf("transaction %s splits do not sum to its amount", t.ID))
		}
	}

	now := time.Now().UTC()
	total, usedFallback := booking.TotalDueCents()
	if usedFallback {
		detail.Warnings = append(detail.Warnings, "guest total not computed, using legacy cash estimate")
		// A live quote beats the stale estimate when the pricing service answers.
		if s.pricing != nil {
			quote, qErr := s.pricing.GetQuote(ctx, booking.ResortCode, booking.RoomType, booking.CheckIn, booking.CheckOut)
			if qErr != nil {
				detail.Warnings = append(detail.Warnings, fmt.Sprintf("point chart quote unavailable: %v", qErr))
			} else if quote.GuestTotalCents > 0 {
				total = quote.GuestTotalCents
			}
		}
	}

	// Rates resolve against the booking creation date so a later rate-table
	// rollover never re-prices an existing booking.
	taxes, err := s.TaxBreakdownForBooking(ctx, booking, total, 0, booking.CreatedAt)
	if err != nil {
		return nil, err
	}
	detail.TaxBreakdown = taxes
	detail.Warnings = append(detail.Warnings, taxes.Warnings...)

	platformFee := int64(match.PointsReserved) * s.settings.PlatformFeeCentsPerPoint
	detail.ExpectedSplits = []ExpectedSplit{
		{Recipient: domain.RecipientPlatform, AmountCents: platformFee},
		{Recipient: domain.RecipientTaxAuthority, AmountCents: taxes.TotalCents},
		{Recipient: domain.RecipientOwner, AmountCents: OwnerReceivableCents(total, match.PointsReserved, s.settings.PlatformFeeCentsPerPoint, taxes.TotalCents)},
	}

	rental, err := s.repo.FindRentalByMatchID(ctx, matchID)
	switch {
	case err == nil:
		detail.Rental = rental
		milestones, err := s.repo.ListMilestonesByRentalID(ctx, rental.ID)
		if err != nil {
			return nil, err
		}
		detail.Milestones = milestones
		entries, err := s.repo.ListPayoutEntriesByRentalID(ctx, rental.ID)
		if err != nil {
			return nil, err
		}
		detail.PayoutEntries = entries

		acceptedAt := rental.CreatedAt
		schedule := ProjectPaymentSchedule(booking, txns, acceptedAt, now, s.settings.DepositBps, s.settings.BalanceDueLead)
		detail.PaymentSchedule = &schedule
		detail.Warnings = append(detail.Warnings, schedule.Warnings...)
	case errors.Is(err, store.ErrRentalNotFound):
		// No rental yet; the offer is still pending or exited without acceptance.
	default:
		return nil, err
	}

	return detail, nil
}

// loadRentalChainByRentalID resolves a rental back through its match to the
// originating booking.
func (s *Service) loadRentalChainByRentalID(ctx context.Context, rentalID uuid.UUID) (*domain.Rental, *domain.Match, *domain.BookingRequest, error) {
	rental, err := s.repo.FindRentalByID(ctx, rentalID)
	if err != nil {
		return nil, nil, nil, err
	}
	match, err := s.repo.FindMatchByID(ctx, rental.MatchID)
	if err != nil {
		return nil, nil, nil, err
	}
	booking, err := s.repo.FindBookingByID(ctx, match.BookingID)
	if err != nil {
		return nil, nil, nil, err
	}
	return rental, match, booking, nil
}
