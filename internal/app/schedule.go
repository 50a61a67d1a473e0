/**
 * @description
 * The payment schedule projector. The schedule is a pure projection over the
 * booking's totals, the acceptance instant, and the succeeded inbound
 * transactions; it holds no state of its own and recomputes identically from
 * the same inputs.
 */

package app

import (
	"fmt"
	"time"

	"github.com/Startups-dev/Pixiedvc-sub000/internal/domain"
)

// PaymentMilestoneStatus is the computed state of one schedule line.
type PaymentMilestoneStatus string

const (
	PaymentNotDue        PaymentMilestoneStatus = "not_due"
	PaymentDue           PaymentMilestoneStatus = "due"
	PaymentPartiallyPaid PaymentMilestoneStatus = "partially_paid"
	PaymentPaid          PaymentMilestoneStatus = "paid"
	PaymentOverdue       PaymentMilestoneStatus = "overdue"
)

// PaymentMilestone is one line of the projected guest payment schedule.
type PaymentMilestone struct {
	Code          string                 `json:"code"` // 'deposit' or 'balance'
	DueAt         time.Time              `json:"due_at"`
	ExpectedCents int64                  `json:"expected_cents"`
	ReceivedCents int64                  `json:"received_cents"`
	Status        PaymentMilestoneStatus `json:"status"`
}

// PaymentSchedule is the projected guest payment plan for a matched booking.
type PaymentSchedule struct {
	Milestones    []PaymentMilestone `json:"milestones"`
	TotalCents    int64              `json:"total_cents"`
	ReceivedCents int64              `json:"received_cents"`
	Warnings      []string           `json:"warnings,omitempty"`
}

// ProjectPaymentSchedule computes the deposit/balance schedule for a booking
// matched at acceptedAt. The deposit share of the total is due at acceptance;
// the remainder is due balanceLead before check-in. Succeeded inbound payments
// are applied to milestones in schedule order, so a single oversized deposit
// payment also pays down the balance.
func ProjectPaymentSchedule(booking *domain.BookingRequest, txns []domain.Transaction, acceptedAt, now time.Time, depositBps int64, balanceLead time.Duration) PaymentSchedule {
	total, fallback := booking.TotalDueCents()

	schedule := PaymentSchedule{TotalCents: total}
	if fallback {
		schedule.Warnings = append(schedule.Warnings,
			"guest total not computed, using legacy cash estimate")
	}
	if total <= 0 {
		schedule.Warnings = append(schedule.Warnings, "booking has no payable total")
		return schedule
	}

	deposit := roundHalfUpBps(total, depositBps)
	if deposit > total {
		deposit = total
	}
	balanceDueAt := booking.CheckIn.Add(-balanceLead)
	if balanceDueAt.Before(acceptedAt) {
		// Late booking inside the balance window: everything is due at once.
		balanceDueAt = acceptedAt
	}

	schedule.Milestones = []PaymentMilestone{
		{Code: "deposit", DueAt: acceptedAt, ExpectedCents: deposit},
		{Code: "balance", DueAt: balanceDueAt, ExpectedCents: total - deposit},
	}

	var received int64
	for _, t := range txns {
		if t.Direction != domain.DirectionIn || t.Status != domain.TxnSucceeded {
			continue
		}
		if t.AmountCents <= 0 {
			// Contributes nothing; the amount is missing or malformed.
			schedule.Warnings = append(schedule.Warnings,
				fmt.Sprintf("transaction %s succeeded with non-positive amount %d and was ignored", t.ID, t.AmountCents))
			continue
		}
		received += t.AmountCents
	}
	schedule.ReceivedCents = received

	remaining := received
	for i := range schedule.Milestones {
		m := &schedule.Milestones[i]
		applied := remaining
		if applied > m.ExpectedCents {
			applied = m.ExpectedCents
		}
		m.ReceivedCents = applied
		remaining -= applied
		m.Status = milestoneStatus(m, now)
	}
	return schedule
}

func milestoneStatus(m *PaymentMilestone, now time.Time) PaymentMilestoneStatus {
	switch {
	case m.ExpectedCents == 0 || m.ReceivedCents >= m.ExpectedCents:
		return PaymentPaid
	case now.Before(m.DueAt):
		if m.ReceivedCents > 0 {
			return PaymentPartiallyPaid
		}
		return PaymentNotDue
	case now.After(m.DueAt.Add(overdueGrace)):
		return PaymentOverdue
	default:
		if m.ReceivedCents > 0 {
			return PaymentPartiallyPaid
		}
		return PaymentDue
	}
}

// overdueGrace keeps a payment from flipping to overdue the instant its due
// time passes; operations gets a day to reconcile processor lag.
const overdueGrace = 24 * time.Hour
