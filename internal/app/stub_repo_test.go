package app

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Startups-dev/Pixiedvc-sub000/internal/domain"
	"github.com/Startups-dev/Pixiedvc-sub000/internal/store"
)

// stubRepo is an in-memory Repository that mirrors the store's transactional
// semantics closely enough for the engine's invariants to be testable: the
// commit-time active-match re-check, the point-counter moves, and the
// idempotent release.
type stubRepo struct {
	bookings      map[uuid.UUID]*domain.BookingRequest
	memberships   map[uuid.UUID]*domain.OwnerMembership
	matches       map[uuid.UUID]*domain.Match
	rentals       map[uuid.UUID]*domain.Rental
	milestones    map[uuid.UUID][]domain.RentalMilestone
	txns          map[uuid.UUID][]domain.Transaction
	payouts       map[uuid.UUID][]domain.PayoutLedgerEntry
	jurisdictions map[uuid.UUID]*domain.TaxJurisdiction
	taxRates      map[uuid.UUID][]domain.TaxRate

	// createErrs is consumed one error per CreateMatchWithReservation call,
	// simulating lost races; nil entries mean success.
	createErrs  []error
	createCalls int
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		bookings:      make(map[uuid.UUID]*domain.BookingRequest),
		memberships:   make(map[uuid.UUID]*domain.OwnerMembership),
		matches:       make(map[uuid.UUID]*domain.Match),
		rentals:       make(map[uuid.UUID]*domain.Rental),
		milestones:    make(map[uuid.UUID][]domain.RentalMilestone),
		txns:          make(map[uuid.UUID][]domain.Transaction),
		payouts:       make(map[uuid.UUID][]domain.PayoutLedgerEntry),
		jurisdictions: make(map[uuid.UUID]*domain.TaxJurisdiction),
		taxRates:      make(map[uuid.UUID][]domain.TaxRate),
	}
}

func (r *stubRepo) addBooking(b domain.BookingRequest) *domain.BookingRequest {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Status == "" {
		b.Status = domain.BookingPendingMatch
	}
	r.bookings[b.ID] = &b
	return &b
}

func (r *stubRepo) addMembership(m domain.OwnerMembership) *domain.OwnerMembership {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.PointsAvailable == 0 && m.PointsReserved == 0 && m.PointsRented == 0 {
		m.PointsAvailable = m.PointsOwned
	}
	if m.MatchingMode == "" {
		m.MatchingMode = domain.MatchPremiumThenStandard
	}
	r.memberships[m.ID] = &m
	return &m
}

func (r *stubRepo) activeMatchFor(bookingID uuid.UUID) *domain.Match {
	for _, m := range r.matches {
		if m.BookingID == bookingID && m.Status == domain.MatchPendingOwner {
			return m
		}
	}
	return nil
}

func (r *stubRepo) FindBookingByID(ctx context.Context, bookingID uuid.UUID) (*domain.BookingRequest, error) {
	b, ok := r.bookings[bookingID]
	if !ok {
		return nil, store.ErrBookingNotFound
	}
	copied := *b
	return &copied, nil
}

func (r *stubRepo) ListMatchableBookings(ctx context.Context, limit int) ([]domain.BookingRequest, error) {
	var out []domain.BookingRequest
	for _, b := range r.bookings {
		if b.Status != domain.BookingSubmitted && b.Status != domain.BookingPendingMatch {
			continue
		}
		if r.activeMatchFor(b.ID) != nil {
			continue
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *stubRepo) FindMembershipByID(ctx context.Context, membershipID uuid.UUID) (*domain.OwnerMembership, error) {
	m, ok := r.memberships[membershipID]
	if !ok {
		return nil, store.ErrMembershipNotFound
	}
	copied := *m
	return &copied, nil
}

func (r *stubRepo) ListOpenMemberships(ctx context.Context) ([]domain.OwnerMembership, error) {
	var out []domain.OwnerMembership
	for _, m := range r.memberships {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *stubRepo) AvailablePoints(ctx context.Context, membershipID uuid.UUID) (int, error) {
	m, ok := r.memberships[membershipID]
	if !ok {
		return 0, store.ErrMembershipNotFound
	}
	return m.PointsAvailable, nil
}

func (r *stubRepo) CreateMatchWithReservation(ctx context.Context, match *domain.Match) error {
	r.createCalls++
	if len(r.createErrs) > 0 {
		err := r.createErrs[0]
		r.createErrs = r.createErrs[1:]
		if err != nil {
			return err
		}
	}

	m, ok := r.memberships[match.MembershipID]
	if !ok {
		return store.ErrMembershipNotFound
	}
	b, ok := r.bookings[match.BookingID]
	if !ok {
		return store.ErrBookingNotFound
	}
	if b.Status != domain.BookingSubmitted && b.Status != domain.BookingPendingMatch {
		return store.ErrInvalidTransition
	}
	if r.activeMatchFor(match.BookingID) != nil {
		return store.ErrActiveMatchExists
	}
	if m.PointsAvailable < match.PointsReserved {
		return store.ErrInsufficientPoints
	}

	for _, prior := range r.matches {
		if prior.BookingID == match.BookingID && prior.Status == domain.MatchExpired {
			prior.Status = domain.MatchRematched
		}
	}

	m.PointsAvailable -= match.PointsReserved
	m.PointsReserved += match.PointsReserved
	copied := *match
	r.matches[match.ID] = &copied
	b.Status = domain.BookingMatched
	return nil
}

func (r *stubRepo) AcceptMatch(ctx context.Context, matchID uuid.UUID, now time.Time) (*domain.Rental, error) {
	match, ok := r.matches[matchID]
	if !ok {
		return nil, store.ErrMatchNotFound
	}
	if match.Status != domain.MatchPendingOwner {
		return nil, store.ErrInvalidTransition
	}
	m := r.memberships[match.MembershipID]
	if m.PointsReserved < match.PointsReserved {
		return nil, store.ErrConcurrencyConflict
	}

	m.PointsReserved -= match.PointsReserved
	m.PointsRented += match.PointsReserved
	match.Status = domain.MatchAccepted
	match.RespondedAt = &now

	rental := &domain.Rental{
		ID:        uuid.New(),
		MatchID:   matchID,
		Status:    domain.RentalNeedsDVCBooking,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.rentals[rental.ID] = rental
	for _, code := range domain.DefaultMilestoneSet {
		r.milestones[rental.ID] = append(r.milestones[rental.ID], domain.RentalMilestone{
			ID:       uuid.New(),
			RentalID: rental.ID,
			Code:     code,
			Status:   domain.MilestonePending,
		})
	}
	copied := *rental
	return &copied, nil
}

func (r *stubRepo) ReleaseMatchPoints(ctx context.Context, matchID uuid.UUID, to domain.MatchStatus, now time.Time) (bool, error) {
	match, ok := r.matches[matchID]
	if !ok {
		return false, store.ErrMatchNotFound
	}
	if match.Status != domain.MatchPendingOwner {
		return false, nil
	}
	if !match.Status.CanTransitionTo(to) {
		return false, store.ErrInvalidTransition
	}
	m := r.memberships[match.MembershipID]
	if m.PointsReserved < match.PointsReserved {
		return false, store.ErrConcurrencyConflict
	}

	m.PointsReserved -= match.PointsReserved
	m.PointsAvailable += match.PointsReserved
	match.Status = to
	match.RespondedAt = &now

	if b, ok := r.bookings[match.BookingID]; ok && b.Status == domain.BookingMatched {
		b.Status = domain.BookingPendingMatch
	}
	return true, nil
}

func (r *stubRepo) DeleteMatch(ctx context.Context, matchID uuid.UUID) error {
	match, ok := r.matches[matchID]
	if !ok {
		return store.ErrMatchNotFound
	}
	for _, rental := range r.rentals {
		if rental.MatchID == matchID {
			return store.ErrRentalExists
		}
	}
	if match.Status == domain.MatchPendingOwner {
		if _, err := r.ReleaseMatchPoints(ctx, matchID, domain.MatchExpired, time.Now().UTC()); err != nil {
			return err
		}
	}
	delete(r.matches, matchID)
	return nil
}

func (r *stubRepo) FindMatchByID(ctx context.Context, matchID uuid.UUID) (*domain.Match, error) {
	m, ok := r.matches[matchID]
	if !ok {
		return nil, store.ErrMatchNotFound
	}
	copied := *m
	return &copied, nil
}

func (r *stubRepo) FindActiveMatchByBookingID(ctx context.Context, bookingID uuid.UUID) (*domain.Match, error) {
	if m := r.activeMatchFor(bookingID); m != nil {
		copied := *m
		return &copied, nil
	}
	return nil, store.ErrMatchNotFound
}

func (r *stubRepo) ListMatches(ctx context.Context, filter domain.MatchListFilter) ([]domain.MatchListRow, error) {
	var out []domain.MatchListRow
	for _, m := range r.matches {
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		b := r.bookings[m.BookingID]
		row := domain.MatchListRow{
			Match:           *m,
			BookingStatus:   b.Status,
			ResortCode:      b.ResortCode,
			CheckIn:         b.CheckIn,
			CheckOut:        b.CheckOut,
			GuestTotalCents: b.GuestTotalCents,
		}
		for _, rental := range r.rentals {
			if rental.MatchID == m.ID {
				id := rental.ID
				row.RentalID = &id
			}
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Match.CreatedAt.Before(out[j].Match.CreatedAt) })
	return out, nil
}

func (r *stubRepo) ListDueExpiryMatches(ctx context.Context, now time.Time, limit int) ([]domain.Match, error) {
	var out []domain.Match
	for _, m := range r.matches {
		if m.IsExpiredAt(now) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *stubRepo) FindRentalByID(ctx context.Context, rentalID uuid.UUID) (*domain.Rental, error) {
	rental, ok := r.rentals[rentalID]
	if !ok {
		return nil, store.ErrRentalNotFound
	}
	copied := *rental
	return &copied, nil
}

func (r *stubRepo) FindRentalByMatchID(ctx context.Context, matchID uuid.UUID) (*domain.Rental, error) {
	for _, rental := range r.rentals {
		if rental.MatchID == matchID {
			copied := *rental
			return &copied, nil
		}
	}
	return nil, store.ErrRentalNotFound
}

func (r *stubRepo) ListMilestonesByRentalID(ctx context.Context, rentalID uuid.UUID) ([]domain.RentalMilestone, error) {
	return append([]domain.RentalMilestone(nil), r.milestones[rentalID]...), nil
}

func (r *stubRepo) completeMilestone(rentalID uuid.UUID, code domain.MilestoneCode) {
	for i := range r.milestones[rentalID] {
		if r.milestones[rentalID][i].Code == code {
			now := time.Now().UTC()
			r.milestones[rentalID][i].Status = domain.MilestoneCompleted
			r.milestones[rentalID][i].OccurredAt = &now
		}
	}
}

func (r *stubRepo) ListTransactionsByMatchID(ctx context.Context, matchID uuid.UUID) ([]domain.Transaction, error) {
	return append([]domain.Transaction(nil), r.txns[matchID]...), nil
}

func (r *stubRepo) ListPayoutEntriesByRentalID(ctx context.Context, rentalID uuid.UUID) ([]domain.PayoutLedgerEntry, error) {
	return append([]domain.PayoutLedgerEntry(nil), r.payouts[rentalID]...), nil
}

func (r *stubRepo) SyncPayoutEntries(ctx context.Context, rentalID uuid.UUID, entries []domain.PayoutLedgerEntry) error {
	existing := r.payouts[rentalID]
	released := make(map[int]domain.PayoutLedgerEntry)
	for _, e := range existing {
		if e.Status == domain.PayoutReleased {
			released[e.Stage] = e
		}
	}
	for _, e := range entries {
		if prior, ok := released[e.Stage]; ok {
			if e.Status != domain.PayoutReleased || e.AmountCents != prior.AmountCents {
				return store.ErrStageReleased
			}
		}
	}
	r.payouts[rentalID] = append([]domain.PayoutLedgerEntry(nil), entries...)
	return nil
}

func (r *stubRepo) FindJurisdictionByID(ctx context.Context, jurisdictionID uuid.UUID) (*domain.TaxJurisdiction, error) {
	j, ok := r.jurisdictions[jurisdictionID]
	if !ok {
		return nil, store.ErrJurisdictionNotFound
	}
	copied := *j
	return &copied, nil
}

func (r *stubRepo) ListTaxRatesByJurisdiction(ctx context.Context, jurisdictionID uuid.UUID) ([]domain.TaxRate, error) {
	return append([]domain.TaxRate(nil), r.taxRates[jurisdictionID]...), nil
}
