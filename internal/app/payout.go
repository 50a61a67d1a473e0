/**
 * @description
 * The staged owner payout projector. The owner receivable is the guest total
 * minus the platform fee and tax liability; the configured stage plan splits
 * it across milestone-gated stages. Projections are synced into the payout
 * ledger, where released rows are immutable.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Startups-dev/Pixiedvc-sub000/internal/domain"
)

// OwnerReceivableCents computes what the owner is owed for a match: the guest
// total less the per-point platform fee and the computed tax liability. Never
// negative; a fee schedule that exceeds the total clamps to zero.
func OwnerReceivableCents(totalCents int64, points int, feeCentsPerPoint, taxCents int64) int64 {
	receivable := totalCents - int64(points)*feeCentsPerPoint - taxCents
	if receivable < 0 {
		return 0
	}
	return receivable
}

// ExpectedStageAmounts splits the receivable across the stage plan by share.
// The last stage absorbs the rounding remainder so the stages always sum to
// the receivable exactly.
func ExpectedStageAmounts(receivableCents int64, stages []domain.PayoutStageDef) []int64 {
	amounts := make([]int64, len(stages))
	var allocated int64
	for i, st := range stages {
		if i == len(stages)-1 {
			amounts[i] = receivableCents - allocated
			break
		}
		amounts[i] = roundHalfUpBps(receivableCents, st.ShareBps)
		allocated += amounts[i]
	}
	return amounts
}

// ProjectPayouts computes the desired ledger state for a rental: one entry per
// configured stage, eligible when its gating milestones are all completed.
// Entries already released in the existing ledger are carried through
// unchanged regardless of what the projection would say.
func ProjectPayouts(rentalID uuid.UUID, receivableCents int64, stages []domain.PayoutStageDef, milestones []domain.RentalMilestone, existing []domain.PayoutLedgerEntry, now time.Time) []domain.PayoutLedgerEntry {
	released := make(map[int]domain.PayoutLedgerEntry, len(existing))
	for _, e := range existing {
		if e.Status == domain.PayoutReleased {
			released[e.Stage] = e
		}
	}

	amounts := ExpectedStageAmounts(receivableCents, stages)
	entries := make([]domain.PayoutLedgerEntry, 0, len(stages))
	for i, st := range stages {
		if prior, ok := released[st.Stage]; ok {
			entries = append(entries, prior)
			continue
		}
		entry := domain.PayoutLedgerEntry{
			RentalID:    rentalID,
			Stage:       st.Stage,
			AmountCents: amounts[i],
			Status:      domain.PayoutPending,
		}
		if domain.MilestonesCompleted(milestones, st.Gates) {
			entry.Status = domain.PayoutEligible
			at := now
			entry.EligibleAt = &at
		}
		entries = append(entries, entry)
	}
	return entries
}

// RefreshPayouts recomputes the staged payout projection for a rental and
// syncs it into the ledger. Safe to call from any lifecycle step; released
// stages are never modified.
func (s *Service) RefreshPayouts(ctx context.Context, rentalID uuid.UUID) ([]domain.PayoutLedgerEntry, error) {
	rental, match, booking, err := s.loadRentalChainByRentalID(ctx, rentalID)
	if err != nil {
		return nil, err
	}

	milestones, err := s.repo.ListMilestonesByRentalID(ctx, rental.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load milestones: %w", err)
	}
	existing, err := s.repo.ListPayoutEntriesByRentalID(ctx, rental.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payout ledger: %w", err)
	}

	total, _ := booking.TotalDueCents()
	taxes, err := s.TaxBreakdownForBooking(ctx, booking, total, 0, booking.CreatedAt)
	if err != nil {
		return nil, err
	}

	receivable := OwnerReceivableCents(total, match.PointsReserved, s.settings.PlatformFeeCentsPerPoint, taxes.TotalCents)
	entries := ProjectPayouts(rental.ID, receivable, s.settings.PayoutStages, milestones, existing, time.Now().UTC())

	if err := s.repo.SyncPayoutEntries(ctx, rental.ID, entries); err != nil {
		return nil, err
	}

	s.publishNewlyEligible(ctx, rental.ID, existing, entries)
	return entries, nil
}

// publishNewlyEligible announces stages that became eligible in this refresh.
// Best-effort, like every other event the engine emits.
func (s *Service) publishNewlyEligible(ctx context.Context, rentalID uuid.UUID, before, after []domain.PayoutLedgerEntry) {
	if s.producer == nil {
		return
	}
	wasEligible := make(map[int]bool, len(before))
	for _, e := range before {
		if e.Status != domain.PayoutPending {
			wasEligible[e.Stage] = true
		}
	}
	for _, e := range after {
		if e.Status != domain.PayoutEligible || wasEligible[e.Stage] {
			continue
		}
		event := payoutStageEvent{
			RentalID:    rentalID,
			Stage:       e.Stage,
			AmountCents: e.AmountCents,
		}
		if err := s.producer.Publish(ctx, "pixiedvc.events", "payout.stage.eligible", event); err != nil {
			log.Printf("level=warn component=payouts msg=\"event publish failed\" rental_id=%s stage=%d err=%v",
				rentalID, e.Stage, err)
		}
	}
}

type payoutStageEvent struct {
	RentalID    uuid.UUID `json:"rental_id"`
	Stage       int       `json:"stage"`
	AmountCents int64     `json:"amount_cents"`
}
