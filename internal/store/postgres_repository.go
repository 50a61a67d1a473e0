/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all SQL for the matching and settlement engine,
 * including the row-locked point-inventory operations.
 *
 * Concurrency discipline: every operation that moves points locks the
 * owner_memberships row with SELECT ... FOR UPDATE, so two allocation attempts
 * against the same membership serialize while attempts against different
 * memberships proceed in parallel. The match row is created or transitioned in
 * the same database transaction as the balance update, so a reservation with
 * no match (or the reverse) cannot be observed.
 *
 * @dependencies
 * - context, errors, fmt, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver.
 * - internal/domain: Domain models.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Startups-dev/Pixiedvc-sub000/internal/domain"
)

var (
	ErrBookingNotFound      = errors.New("booking request not found")
	ErrMembershipNotFound   = errors.New("owner membership not found")
	ErrMatchNotFound        = errors.New("match not found")
	ErrRentalNotFound       = errors.New("rental not found")
	ErrJurisdictionNotFound = errors.New("tax jurisdiction not found")

	// ErrInsufficientPoints means the membership cannot cover the requested
	// reservation. A normal allocator outcome, not a failure.
	ErrInsufficientPoints = errors.New("insufficient available points")
	// ErrActiveMatchExists means the booking already has a non-terminal match.
	ErrActiveMatchExists = errors.New("booking already has an active match")
	// ErrRentalExists guards expire/delete against matches that already
	// produced a rental.
	ErrRentalExists = errors.New("match has a linked rental")
	// ErrInvalidTransition is returned when a status write is not in the
	// transition table.
	ErrInvalidTransition = errors.New("status transition not allowed")
	// ErrStageReleased is returned on any attempt to mutate a released payout
	// stage. Released entries are immutable.
	ErrStageReleased = errors.New("payout stage already released")
	// ErrConcurrencyConflict means we lost a race for the same row; callers
	// retry once with a fresh read.
	ErrConcurrencyConflict = errors.New("concurrent update conflict")
)

// PostgresRepository is the concrete pgx-backed Repository.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const bookingColumns = `
	id, guest_id, resort_code, alternate_resorts, room_type, view_type,
	check_in, check_out, party_size, total_points, guest_total_cents,
	estimated_cash_cents, jurisdiction_id, status, created_at, updated_at`

func scanBooking(row pgx.Row) (*domain.BookingRequest, error) {
	var b domain.BookingRequest
	err := row.Scan(
		&b.ID, &b.GuestID, &b.ResortCode, &b.AlternateResorts, &b.RoomType, &b.ViewType,
		&b.CheckIn, &b.CheckOut, &b.PartySize, &b.TotalPoints, &b.GuestTotalCents,
		&b.EstimatedCashCents, &b.JurisdictionID, &b.Status, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// FindBookingByID retrieves a booking request by id.
func (r *PostgresRepository) FindBookingByID(ctx context.Context, bookingID uuid.UUID) (*domain.BookingRequest, error) {
	query := `SELECT` + bookingColumns + ` FROM booking_requests WHERE id = $1`
	b, err := scanBooking(r.db.QueryRow(ctx, query, bookingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return b, nil
}

// ListMatchableBookings returns bookings eligible for matching, oldest first.
func (r *PostgresRepository) ListMatchableBookings(ctx context.Context, limit int) ([]domain.BookingRequest, error) {
	query := `
		SELECT` + bookingColumns + `
		FROM booking_requests b
		WHERE b.status IN ('submitted', 'pending_match')
		  AND NOT EXISTS (
			SELECT 1 FROM matches m
			WHERE m.booking_id = b.id AND m.status = 'pending_owner'
		  )
		ORDER BY b.created_at ASC
		LIMIT $1`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []domain.BookingRequest
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

const membershipColumns = `
	id, owner_id, home_resort, use_year_start, use_year_end,
	points_owned, points_available, points_reserved, points_rented,
	matching_mode, restricted_resorts, created_at, updated_at`

func scanMembership(row pgx.Row) (*domain.OwnerMembership, error) {
	var m domain.OwnerMembership
	err := row.Scan(
		&m.ID, &m.OwnerID, &m.HomeResort, &m.UseYearStart, &m.UseYearEnd,
		&m.PointsOwned, &m.PointsAvailable, &m.PointsReserved, &m.PointsRented,
		&m.MatchingMode, &m.RestrictedResorts, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// FindMembershipByID retrieves an owner membership by id.
func (r *PostgresRepository) FindMembershipByID(ctx context.Context, membershipID uuid.UUID) (*domain.OwnerMembership, error) {
	query := `SELECT` + membershipColumns + ` FROM owner_memberships WHERE id = $1`
	m, err := scanMembership(r.db.QueryRow(ctx, query, membershipID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMembershipNotFound
		}
		return nil, err
	}
	return m, nil
}

// ListOpenMemberships returns memberships with any available points. The
// allocator filters further in memory; this keeps the candidate query cheap.
func (r *PostgresRepository) ListOpenMemberships(ctx context.Context) ([]domain.OwnerMembership, error) {
	query := `
		SELECT` + membershipColumns + `
		FROM owner_memberships
		WHERE points_available > 0
		ORDER BY use_year_end ASC, created_at ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberships []domain.OwnerMembership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		memberships = append(memberships, *m)
	}
	return memberships, rows.Err()
}

// AvailablePoints returns the current available balance for a membership.
func (r *PostgresRepository) AvailablePoints(ctx context.Context, membershipID uuid.UUID) (int, error) {
	var available int
	err := r.db.QueryRow(ctx,
		`SELECT points_available FROM owner_memberships WHERE id = $1`, membershipID,
	).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrMembershipNotFound
		}
		return 0, err
	}
	return available, nil
}

// CreateMatchWithReservation atomically reserves points and creates the match
// row. Under the membership row lock it re-checks both the available balance
// and the absence of an active match for the booking, closing the race between
// scan and reserve. Prior expired matches for the booking are flipped to
// rematched in the same transaction.
func (r *PostgresRepository) CreateMatchWithReservation(ctx context.Context, match *domain.Match) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the membership row. Two reserve attempts against the same
	// membership serialize here.
	var available int
	err = tx.QueryRow(ctx,
		`SELECT points_available FROM owner_memberships WHERE id = $1 FOR UPDATE`,
		match.MembershipID,
	).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrMembershipNotFound
		}
		return fmt.Errorf("failed to lock membership: %w", err)
	}
	if available < match.PointsReserved {
		return ErrInsufficientPoints
	}

	// Commit-time re-check: the booking must still be matchable and must not
	// have grown an active match since the planning scan.
	var bookingStatus domain.BookingStatus
	err = tx.QueryRow(ctx,
		`SELECT status FROM booking_requests WHERE id = $1 FOR UPDATE`,
		match.BookingID,
	).Scan(&bookingStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrBookingNotFound
		}
		return fmt.Errorf("failed to lock booking: %w", err)
	}
	if bookingStatus != domain.BookingSubmitted && bookingStatus != domain.BookingPendingMatch {
		return ErrActiveMatchExists
	}
	var activeCount int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM matches WHERE booking_id = $1 AND status = 'pending_owner'`,
		match.BookingID,
	).Scan(&activeCount)
	if err != nil {
		return fmt.Errorf("failed to check active matches: %w", err)
	}
	if activeCount > 0 {
		return ErrActiveMatchExists
	}

	// Move points from available to reserved in one statement; the two columns
	// change together so conservation holds at every instant.
	_, err = tx.Exec(ctx, `
		UPDATE owner_memberships
		SET points_available = points_available - $1,
		    points_reserved  = points_reserved + $1,
		    updated_at       = NOW()
		WHERE id = $2`,
		match.PointsReserved, match.MembershipID,
	)
	if err != nil {
		return fmt.Errorf("failed to reserve points: %w", err)
	}

	// A fresh offer supersedes any expired predecessors for this booking.
	_, err = tx.Exec(ctx,
		`UPDATE matches SET status = 'rematched' WHERE booking_id = $1 AND status = 'expired'`,
		match.BookingID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark prior matches rematched: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO matches (id, booking_id, membership_id, points_reserved, tier, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, 'pending_owner', $6, $7)`,
		match.ID, match.BookingID, match.MembershipID, match.PointsReserved,
		match.Tier, match.CreatedAt, match.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Partial unique index on (booking_id) WHERE status = 'pending_owner'.
			return ErrActiveMatchExists
		}
		return fmt.Errorf("failed to insert match: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE booking_requests SET status = 'matched', updated_at = NOW() WHERE id = $1`,
		match.BookingID,
	)
	if err != nil {
		return fmt.Errorf("failed to advance booking status: %w", err)
	}

	return tx.Commit(ctx)
}

// AcceptMatch transitions a pending match to accepted, commits the reserved
// points to rented, and creates the rental with its pending milestone set, all
// in one transaction.
func (r *PostgresRepository) AcceptMatch(ctx context.Context, matchID uuid.UUID, now time.Time) (*domain.Rental, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	match, err := lockMatch(ctx, tx, matchID)
	if err != nil {
		return nil, err
	}
	if match.Status != domain.MatchPendingOwner {
		return nil, fmt.Errorf("match %s is %s: %w", matchID, match.Status, ErrInvalidTransition)
	}

	// Lock the membership and move reserved points to rented.
	var reserved int
	err = tx.QueryRow(ctx,
		`SELECT points_reserved FROM owner_memberships WHERE id = $1 FOR UPDATE`,
		match.MembershipID,
	).Scan(&reserved)
	if err != nil {
		return nil, fmt.Errorf("failed to lock membership: %w", err)
	}
	if reserved < match.PointsReserved {
		// More points would move than this match ever reserved. Fatal for this
		// record; surfaced loudly, never silently corrected.
		return nil, fmt.Errorf("membership %s reserved=%d < match reservation %d: inventory invariant violated",
			match.MembershipID, reserved, match.PointsReserved)
	}
	_, err = tx.Exec(ctx, `
		UPDATE owner_memberships
		SET points_reserved = points_reserved - $1,
		    points_rented   = points_rented + $1,
		    updated_at      = NOW()
		WHERE id = $2`,
		match.PointsReserved, match.MembershipID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to commit points to rented: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE matches SET status = 'accepted', responded_at = $1 WHERE id = $2`,
		now, matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to accept match: %w", err)
	}

	rental := &domain.Rental{
		ID:        uuid.New(),
		MatchID:   matchID,
		Status:    domain.RentalNeedsDVCBooking,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO rentals (id, match_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)`,
		rental.ID, rental.MatchID, rental.Status, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rental: %w", err)
	}
	for _, code := range domain.DefaultMilestoneSet {
		_, err = tx.Exec(ctx, `
			INSERT INTO rental_milestones (id, rental_id, code, status)
			VALUES ($1, $2, $3, 'pending')`,
			uuid.New(), rental.ID, code,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to seed milestone %s: %w", code, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return rental, nil
}

// ReleaseMatchPoints moves a pending match to declined or expired and returns
// the reserved points to available. The status guard makes replays no-ops:
// a match already terminal releases nothing and returns false.
func (r *PostgresRepository) ReleaseMatchPoints(ctx context.Context, matchID uuid.UUID, to domain.MatchStatus, now time.Time) (bool, error) {
	if to != domain.MatchDeclined && to != domain.MatchExpired {
		return false, fmt.Errorf("release to %s: %w", to, ErrInvalidTransition)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	match, err := lockMatch(ctx, tx, matchID)
	if err != nil {
		return false, err
	}
	if match.Status != domain.MatchPendingOwner {
		// Already terminal; replaying the release must not double-credit.
		return false, nil
	}

	var available, reserved, owned, rented int
	err = tx.QueryRow(ctx, `
		SELECT points_available, points_reserved, points_owned, points_rented
		FROM owner_memberships WHERE id = $1 FOR UPDATE`,
		match.MembershipID,
	).Scan(&available, &reserved, &owned, &rented)
	if err != nil {
		return false, fmt.Errorf("failed to lock membership: %w", err)
	}
	if reserved < match.PointsReserved || available+match.PointsReserved+rented > owned {
		return false, fmt.Errorf("membership %s release of %d points would break conservation (owned=%d available=%d reserved=%d rented=%d)",
			match.MembershipID, match.PointsReserved, owned, available, reserved, rented)
	}

	_, err = tx.Exec(ctx, `
		UPDATE owner_memberships
		SET points_available = points_available + $1,
		    points_reserved  = points_reserved - $1,
		    updated_at       = NOW()
		WHERE id = $2`,
		match.PointsReserved, match.MembershipID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to release points: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE matches SET status = $1, responded_at = $2 WHERE id = $3`,
		to, now, matchID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark match %s: %w", to, err)
	}

	// Put the booking back in the matcher's queue unless it was cancelled
	// underneath the match.
	_, err = tx.Exec(ctx, `
		UPDATE booking_requests SET status = 'pending_match', updated_at = NOW()
		WHERE id = $1 AND status = 'matched'`,
		match.BookingID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to requeue booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteMatch removes a match that never produced a rental. Admin-only,
// irreversible, used to clean up matches invalidated by a booking
// cancellation.
func (r *PostgresRepository) DeleteMatch(ctx context.Context, matchID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	match, err := lockMatch(ctx, tx, matchID)
	if err != nil {
		return err
	}

	var rentalCount int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM rentals WHERE match_id = $1`, matchID,
	).Scan(&rentalCount); err != nil {
		return fmt.Errorf("failed to check rentals: %w", err)
	}
	if rentalCount > 0 {
		return ErrRentalExists
	}

	// A still-pending match holds reserved points; give them back before the
	// row disappears.
	if match.Status == domain.MatchPendingOwner {
		_, err = tx.Exec(ctx, `
			UPDATE owner_memberships
			SET points_available = points_available + $1,
			    points_reserved  = points_reserved - $1,
			    updated_at       = NOW()
			WHERE id = $2`,
			match.PointsReserved, match.MembershipID,
		)
		if err != nil {
			return fmt.Errorf("failed to release points before delete: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM matches WHERE id = $1`, matchID); err != nil {
		return fmt.Errorf("failed to delete match: %w", err)
	}
	return tx.Commit(ctx)
}

func lockMatch(ctx context.Context, tx pgx.Tx, matchID uuid.UUID) (*domain.Match, error) {
	var m domain.Match
	err := tx.QueryRow(ctx, `
		SELECT id, booking_id, membership_id, points_reserved, tier, status, created_at, expires_at, responded_at
		FROM matches WHERE id = $1 FOR UPDATE`,
		matchID,
	).Scan(&m.ID, &m.BookingID, &m.MembershipID, &m.PointsReserved, &m.Tier, &m.Status, &m.CreatedAt, &m.ExpiresAt, &m.RespondedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to lock match: %w", err)
	}
	return &m, nil
}

const matchColumns = `
	id, booking_id, membership_id, points_reserved, tier, status, created_at, expires_at, responded_at`

func scanMatch(row pgx.Row) (*domain.Match, error) {
	var m domain.Match
	err := row.Scan(&m.ID, &m.BookingID, &m.MembershipID, &m.PointsReserved, &m.Tier, &m.Status, &m.CreatedAt, &m.ExpiresAt, &m.RespondedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// FindMatchByID retrieves a match by id.
func (r *PostgresRepository) FindMatchByID(ctx context.Context, matchID uuid.UUID) (*domain.Match, error) {
	query := `SELECT` + matchColumns + ` FROM matches WHERE id = $1`
	m, err := scanMatch(r.db.QueryRow(ctx, query, matchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return m, nil
}

// FindActiveMatchByBookingID returns the booking's single non-terminal match,
// or ErrMatchNotFound when none exists.
func (r *PostgresRepository) FindActiveMatchByBookingID(ctx context.Context, bookingID uuid.UUID) (*domain.Match, error) {
	query := `SELECT` + matchColumns + ` FROM matches WHERE booking_id = $1 AND status = 'pending_owner'`
	m, err := scanMatch(r.db.QueryRow(ctx, query, bookingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return m, nil
}

// ListDueExpiryMatches returns pending matches whose offer window has elapsed.
func (r *PostgresRepository) ListDueExpiryMatches(ctx context.Context, now time.Time, limit int) ([]domain.Match, error) {
	query := `
		SELECT` + matchColumns + `
		FROM matches
		WHERE status = 'pending_owner' AND expires_at < $1
		ORDER BY expires_at ASC
		LIMIT $2`
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []domain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

// ListMatches returns the admin match listing with joined booking summary
// fields and a payout status rollup per linked rental.
func (r *PostgresRepository) ListMatches(ctx context.Context, filter domain.MatchListFilter) ([]domain.MatchListRow, error) {
	query, args := buildMatchListQuery(filter)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.MatchListRow
	for rows.Next() {
		var row domain.MatchListRow
		var stageCount, releasedCount, eligibleCount *int
		err := rows.Scan(
			&row.Match.ID, &row.Match.BookingID, &row.Match.MembershipID, &row.Match.PointsReserved,
			&row.Match.Tier, &row.Match.Status, &row.Match.CreatedAt, &row.Match.ExpiresAt, &row.Match.RespondedAt,
			&row.BookingStatus, &row.ResortCode, &row.CheckIn, &row.CheckOut, &row.GuestTotalCents,
			&row.RentalID, &stageCount, &releasedCount, &eligibleCount,
		)
		if err != nil {
			return nil, err
		}
		row.HasRental = row.RentalID != nil
		if row.HasRental && stageCount != nil && *stageCount > 0 {
			switch {
			case releasedCount != nil && *releasedCount == *stageCount:
				row.PayoutStatus = domain.PayoutReleased
			case eligibleCount != nil && *eligibleCount > 0:
				row.PayoutStatus = domain.PayoutEligible
			default:
				row.PayoutStatus = domain.PayoutPending
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// buildMatchListQuery assembles the listing SQL. Every filter, the payout
// rollup included, lands in the WHERE clause so pagination always runs over
// the filtered set.
func buildMatchListQuery(filter domain.MatchListFilter) (string, []interface{}) {
	var where []string
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		where = append(where, "m.status = "+arg(filter.Status))
	}
	if filter.CreatedFrom != nil {
		where = append(where, "m.created_at >= "+arg(*filter.CreatedFrom))
	}
	if filter.CreatedTo != nil {
		where = append(where, "m.created_at <= "+arg(*filter.CreatedTo))
	}
	if filter.CheckInFrom != nil {
		where = append(where, "b.check_in >= "+arg(*filter.CheckInFrom))
	}
	if filter.CheckInTo != nil {
		where = append(where, "b.check_in <= "+arg(*filter.CheckInTo))
	}
	if text := strings.TrimSpace(filter.Text); text != "" {
		p := arg("%" + text + "%")
		where = append(where, "(b.resort_code ILIKE "+p+" OR b.room_type ILIKE "+p+" OR m.id::text ILIKE "+p+")")
	}
	if filter.PayoutStatus != "" {
		where = append(where, payoutRollupCondition(filter.PayoutStatus))
	}

	query := `
		SELECT m.id, m.booking_id, m.membership_id, m.points_reserved, m.tier, m.status,
		       m.created_at, m.expires_at, m.responded_at,
		       b.status, b.resort_code, b.check_in, b.check_out, b.guest_total_cents,
		       r.id, pl.stage_count, pl.released_count, pl.eligible_count
		FROM matches m
		JOIN booking_requests b ON b.id = m.booking_id
		LEFT JOIN rentals r ON r.match_id = m.id
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS stage_count,
			       COUNT(*) FILTER (WHERE p.status = 'released') AS released_count,
			       COUNT(*) FILTER (WHERE p.status = 'eligible') AS eligible_count
			FROM payout_ledger_entries p
			WHERE p.rental_id = r.id
		) pl ON true`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	switch filter.Sort {
	case "expires_at":
		query += " ORDER BY m.expires_at ASC"
	case "check_in":
		query += " ORDER BY b.check_in ASC"
	case "created_at":
		query += " ORDER BY m.created_at ASC"
	default:
		query += " ORDER BY m.created_at DESC"
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query += " LIMIT " + arg(limit)
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}
	return query, args
}

// payoutRollupCondition is the SQL form of the per-row rollup ListMatches
// computes while scanning: released when every stage is released, eligible
// when any unreleased stage is eligible, pending otherwise. An unrecognized
// status matches nothing.
func payoutRollupCondition(status domain.PayoutStatus) string {
	switch status {
	case domain.PayoutReleased:
		return "(r.id IS NOT NULL AND pl.stage_count > 0 AND pl.released_count = pl.stage_count)"
	case domain.PayoutEligible:
		return "(r.id IS NOT NULL AND pl.stage_count > 0 AND pl.released_count < pl.stage_count AND pl.eligible_count > 0)"
	case domain.PayoutPending:
		return "(r.id IS NOT NULL AND pl.stage_count > 0 AND pl.released_count < pl.stage_count AND pl.eligible_count = 0)"
	default:
		return "FALSE"
	}
}

func (r *PostgresRepository) FindRentalByID(ctx context.Context, rentalID uuid.UUID) (*domain.Rental, error) {
	var rental domain.Rental
	err := r.db.QueryRow(ctx, `
		SELECT id, match_id, status, dvc_confirmation, created_at, updated_at
		FROM rentals WHERE id = $1`,
		rentalID,
	).Scan(&rental.ID, &rental.MatchID, &rental.Status, &rental.DVCConfirmation, &rental.CreatedAt, &rental.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRentalNotFound
		}
		return nil, err
	}
	return &rental, nil
}

// FindRentalByMatchID retrieves the rental linked to a match, if any.
func (r *PostgresRepository) FindRentalByMatchID(ctx context.Context, matchID uuid.UUID) (*domain.Rental, error) {
	var rental domain.Rental
	err := r.db.QueryRow(ctx, `
		SELECT id, match_id, status, dvc_confirmation, created_at, updated_at
		FROM rentals WHERE match_id = $1`,
		matchID,
	).Scan(&rental.ID, &rental.MatchID, &rental.Status, &rental.DVCConfirmation, &rental.CreatedAt, &rental.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRentalNotFound
		}
		return nil, err
	}
	return &rental, nil
}

// ListMilestonesByRentalID returns the rental's milestones in seed order.
func (r *PostgresRepository) ListMilestonesByRentalID(ctx context.Context, rentalID uuid.UUID) ([]domain.RentalMilestone, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, rental_id, code, status, occurred_at
		FROM rental_milestones WHERE rental_id = $1
		ORDER BY id`,
		rentalID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var milestones []domain.RentalMilestone
	for rows.Next() {
		var m domain.RentalMilestone
		if err := rows.Scan(&m.ID, &m.RentalID, &m.Code, &m.Status, &m.OccurredAt); err != nil {
			return nil, err
		}
		milestones = append(milestones, m)
	}
	return milestones, rows.Err()
}

// ListTransactionsByMatchID returns the match's transactions with their splits,
// oldest first.
func (r *PostgresRepository) ListTransactionsByMatchID(ctx context.Context, matchID uuid.UUID) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, match_id, txn_type, direction, amount_cents, status, processor, processor_ref, paid_at, created_at
		FROM transactions WHERE match_id = $1
		ORDER BY created_at ASC`,
		matchID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.MatchID, &t.TxnType, &t.Direction, &t.AmountCents, &t.Status, &t.Processor, &t.ProcessorRef, &t.PaidAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range txns {
		splitRows, err := r.db.Query(ctx, `
			SELECT id, transaction_id, recipient_type, amount_cents
			FROM transaction_splits WHERE transaction_id = $1`,
			txns[i].ID,
		)
		if err != nil {
			return nil, err
		}
		for splitRows.Next() {
			var s domain.TransactionSplit
			if err := splitRows.Scan(&s.ID, &s.TransactionID, &s.RecipientType, &s.AmountCents); err != nil {
				splitRows.Close()
				return nil, err
			}
			txns[i].Splits = append(txns[i].Splits, s)
		}
		splitRows.Close()
		if err := splitRows.Err(); err != nil {
			return nil, err
		}
	}
	return txns, nil
}

// ListPayoutEntriesByRentalID returns persisted payout stages in stage order.
func (r *PostgresRepository) ListPayoutEntriesByRentalID(ctx context.Context, rentalID uuid.UUID) ([]domain.PayoutLedgerEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, rental_id, stage, amount_cents, status, eligible_at, released_at
		FROM payout_ledger_entries WHERE rental_id = $1
		ORDER BY stage ASC`,
		rentalID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.PayoutLedgerEntry
	for rows.Next() {
		var e domain.PayoutLedgerEntry
		if err := rows.Scan(&e.ID, &e.RentalID, &e.Stage, &e.AmountCents, &e.Status, &e.EligibleAt, &e.ReleasedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SyncPayoutEntries upserts the projected stage entries for a rental.
// Released rows are immutable: they are locked, compared, and left untouched;
// any projected change against one is rejected as ErrStageReleased.
func (r *PostgresRepository) SyncPayoutEntries(ctx context.Context, rentalID uuid.UUID, entries []domain.PayoutLedgerEntry) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	existing := make(map[int]domain.PayoutLedgerEntry)
	rows, err := tx.Query(ctx, `
		SELECT id, rental_id, stage, amount_cents, status, eligible_at, released_at
		FROM payout_ledger_entries WHERE rental_id = $1
		FOR UPDATE`,
		rentalID,
	)
	if err != nil {
		return fmt.Errorf("failed to lock payout entries: %w", err)
	}
	for rows.Next() {
		var e domain.PayoutLedgerEntry
		if err := rows.Scan(&e.ID, &e.RentalID, &e.Stage, &e.AmountCents, &e.Status, &e.EligibleAt, &e.ReleasedAt); err != nil {
			rows.Close()
			return err
		}
		existing[e.Stage] = e
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, entry := range entries {
		current, ok := existing[entry.Stage]
		if !ok {
			_, err = tx.Exec(ctx, `
				INSERT INTO payout_ledger_entries (id, rental_id, stage, amount_cents, status, eligible_at)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				uuid.New(), rentalID, entry.Stage, entry.AmountCents, entry.Status, entry.EligibleAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert payout stage %d: %w", entry.Stage, err)
			}
			continue
		}
		if current.Status == domain.PayoutReleased {
			if entry.Status != domain.PayoutReleased || entry.AmountCents != current.AmountCents {
				return fmt.Errorf("rental %s stage %d: %w", rentalID, entry.Stage, ErrStageReleased)
			}
			continue
		}
		_, err = tx.Exec(ctx, `
			UPDATE payout_ledger_entries
			SET amount_cents = $1, status = $2, eligible_at = $3
			WHERE id = $4 AND status <> 'released'`,
			entry.AmountCents, entry.Status, entry.EligibleAt, current.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update payout stage %d: %w", entry.Stage, err)
		}
	}

	return tx.Commit(ctx)
}

// FindJurisdictionByID retrieves a tax jurisdiction by id.
func (r *PostgresRepository) FindJurisdictionByID(ctx context.Context, jurisdictionID uuid.UUID) (*domain.TaxJurisdiction, error) {
	var j domain.TaxJurisdiction
	err := r.db.QueryRow(ctx,
		`SELECT id, name, region FROM tax_jurisdictions WHERE id = $1`, jurisdictionID,
	).Scan(&j.ID, &j.Name, &j.Region)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJurisdictionNotFound
		}
		return nil, err
	}
	return &j, nil
}

// ListTaxRatesByJurisdiction returns all rate rows for a jurisdiction;
// effective-date filtering happens in the resolver.
func (r *PostgresRepository) ListTaxRatesByJurisdiction(ctx context.Context, jurisdictionID uuid.UUID) ([]domain.TaxRate, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, jurisdiction_id, tax_type, rate_bps, applies_to, effective_from, effective_to
		FROM tax_rates WHERE jurisdiction_id = $1
		ORDER BY effective_from ASC, tax_type ASC`,
		jurisdictionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rates []domain.TaxRate
	for rows.Next() {
		var rate domain.TaxRate
		if err := rows.Scan(&rate.ID, &rate.JurisdictionID, &rate.TaxType, &rate.RateBps, &rate.AppliesTo, &rate.EffectiveFrom, &rate.EffectiveTo); err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}
