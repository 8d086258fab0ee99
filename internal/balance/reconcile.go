// Package balance computes the account balance adjustments implied by a
// commitment's state transition. It only computes; applying the
// adjustments inside the storage transaction is the orchestrator's job.
package balance

import "github.com/duebook-dev/duebook/internal/model"

// State is the balance-relevant slice of a commitment at one side of a
// transition. A nil *State means the commitment does not exist on that
// side (creation or deletion).
type State struct {
	AccountID   string
	Status      model.Status
	AmountCents int64
}

// Adjustment is one balance change to apply to an account. Negative delta
// is a debit (the balance decreases), positive a credit.
type Adjustment struct {
	AccountID  string
	DeltaCents int64
}

// Store is the external account balance collaborator. Both operations must
// execute within the caller's transaction scope.
type Store interface {
	// Debit reduces an account's balance. Fails with
	// model.ErrAccountUnavailable when the account is missing or the
	// balance would go negative.
	Debit(accountID string, cents int64) error
	// Credit increases an account's balance. Fails with
	// model.ErrAccountUnavailable when the account is missing.
	Credit(accountID string, cents int64) error
}

// Reconcile returns the minimal set of adjustments that makes the ledger
// match a before→after transition. Only a paid occurrence has ledger
// impact; its magnitude is the amount.
func Reconcile(before, after *State) []Adjustment {
	beforeImpact := impact(before)
	afterImpact := impact(after)

	// Reassignment targets two different accounts, so the old account is
	// credited back in full and the new one debited in full; a single net
	// adjustment would land on the wrong account.
	if before != nil && after != nil && before.AccountID != after.AccountID {
		var adjustments []Adjustment
		if beforeImpact != 0 {
			adjustments = append(adjustments, Adjustment{AccountID: before.AccountID, DeltaCents: beforeImpact})
		}
		if afterImpact != 0 {
			adjustments = append(adjustments, Adjustment{AccountID: after.AccountID, DeltaCents: -afterImpact})
		}
		return adjustments
	}

	net := afterImpact - beforeImpact
	if net == 0 {
		return nil
	}
	accountID := ""
	if after != nil {
		accountID = after.AccountID
	} else if before != nil {
		accountID = before.AccountID
	}
	return []Adjustment{{AccountID: accountID, DeltaCents: -net}}
}

// Apply issues the debit/credit calls for a set of adjustments.
func Apply(store Store, adjustments []Adjustment) error {
	for _, adj := range adjustments {
		var err error
		switch {
		case adj.DeltaCents < 0:
			err = store.Debit(adj.AccountID, -adj.DeltaCents)
		case adj.DeltaCents > 0:
			err = store.Credit(adj.AccountID, adj.DeltaCents)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// impact is the signed ledger weight of a state: the amount while paid,
// zero otherwise or when the state is absent.
func impact(s *State) int64 {
	if s == nil || s.Status != model.StatusPaid {
		return 0
	}
	return s.AmountCents
}
