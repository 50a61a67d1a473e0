/**
 * @description
 * This file defines the immutable financial events tied to a match and the
 * per-recipient splits a transaction may carry. Transactions are append-only:
 * the settlement components only ever read them.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// TxnDirection records whether money moved into or out of the platform.
type TxnDirection string

const (
	DirectionIn  TxnDirection = "in"
	DirectionOut TxnDirection = "out"
)

// TxnStatus mirrors the payment processor's settlement state.
type TxnStatus string

const (
	TxnPending   TxnStatus = "pending"
	TxnSucceeded TxnStatus = "succeeded"
	TxnFailed    TxnStatus = "failed"
	TxnRefunded  TxnStatus = "refunded"
)

// SplitRecipient identifies who a transaction split is owed to.
type SplitRecipient string

const (
	RecipientPlatform     SplitRecipient = "platform"
	RecipientOwner        SplitRecipient = "owner"
	RecipientTaxAuthority SplitRecipient = "tax_authority"
)

// Transaction is an immutable financial event tied to a match.
type Transaction struct {
	ID           uuid.UUID    `json:"id"`
	MatchID      uuid.UUID    `json:"match_id"`
	TxnType      string       `json:"txn_type"` // e.g. 'deposit', 'balance', 'refund'
	Direction    TxnDirection `json:"direction"`
	AmountCents  int64        `json:"amount_cents"`
	Status       TxnStatus    `json:"status"`
	Processor    string       `json:"processor,omitempty"`
	ProcessorRef string       `json:"processor_ref,omitempty"`
	PaidAt       *time.Time   `json:"paid_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`

	Splits []TransactionSplit `json:"splits,omitempty"`
}

// TransactionSplit allocates part of a transaction to one recipient.
type TransactionSplit struct {
	ID            uuid.UUID      `json:"id"`
	TransactionID uuid.UUID      `json:"transaction_id"`
	RecipientType SplitRecipient `json:"recipient_type"`
	AmountCents   int64          `json:"amount_cents"`
}

// SplitsBalanced reports whether the splits sum to the transaction amount.
// A transaction with no splits is trivially balanced.
func (t *Transaction) SplitsBalanced() bool {
	if len(t.Splits) == 0 {
		return true
	}
	var sum int64
	for _, s := range t.Splits {
		sum += s.AmountCents
	}
	return sum == t.AmountCents
}
