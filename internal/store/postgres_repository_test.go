package store

import (
	"strings"
	"testing"

	"github.com/Startups-dev/Pixiedvc-sub000/internal/domain"
)

func TestMatchListQuery_PayoutFilterAppliesBeforePagination(t *testing.T) {
	query, args := buildMatchListQuery(domain.MatchListFilter{
		PayoutStatus: domain.PayoutEligible,
		Limit:        50,
		Offset:       100,
	})

	cond := payoutRollupCondition(domain.PayoutEligible)
	condAt := strings.Index(query, cond)
	limitAt := strings.Index(query, " LIMIT ")
	if condAt == -1 {
		t.Fatalf("payout rollup condition missing from query:\n%s", query)
	}
	if limitAt == -1 || condAt > limitAt {
		t.Fatalf("payout filter must be applied before LIMIT, got:\n%s", query)
	}

	// The rollup condition binds no placeholders, so only limit and offset
	// remain as arguments.
	if len(args) != 2 || args[0] != 50 || args[1] != 100 {
		t.Fatalf("expected [limit offset] args, got %v", args)
	}
}

func TestMatchListQuery_CombinesFiltersIntoWhere(t *testing.T) {
	query, args := buildMatchListQuery(domain.MatchListFilter{
		Status:       domain.MatchAccepted,
		PayoutStatus: domain.PayoutReleased,
		Text:         "BLT",
	})

	if !strings.Contains(query, "m.status = $1") {
		t.Fatalf("match status filter missing:\n%s", query)
	}
	if !strings.Contains(query, payoutRollupCondition(domain.PayoutReleased)) {
		t.Fatalf("payout rollup condition missing:\n%s", query)
	}
	// status, text pattern, limit
	if len(args) != 3 {
		t.Fatalf("expected 3 args, got %v", args)
	}
}

func TestPayoutRollupCondition_CoversEveryStatus(t *testing.T) {
	seen := map[string]bool{}
	for _, status := range []domain.PayoutStatus{domain.PayoutPending, domain.PayoutEligible, domain.PayoutReleased} {
		cond := payoutRollupCondition(status)
		if cond == "FALSE" {
			t.Fatalf("status %s must map to a real predicate", status)
		}
		if seen[cond] {
			t.Fatalf("status %s shares a predicate with another status", status)
		}
		seen[cond] = true
	}
	if payoutRollupCondition("bogus") != "FALSE" {
		t.Fatal("unknown status must match nothing")
	}
}
