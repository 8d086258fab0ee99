package commitments

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/duebook-dev/duebook/internal/metrics"
	"github.com/duebook-dev/duebook/internal/model"
	"github.com/duebook-dev/duebook/internal/recurrence"
	"github.com/duebook-dev/duebook/internal/store"
)

// spawnSuccessor runs when a recurring occurrence has just been settled
// (marked paid). It computes the next due date, prunes stale pending
// siblings, inserts at most one pending successor, and consumes one unit
// of the settled occurrence's own remaining counter. All writes happen in
// the caller's transaction.
//
// An unspawnable series — absent or malformed rule, expired end date,
// exhausted remaining bound — is a legitimate end-of-series state, not an
// error, so those paths return nil without touching storage beyond the
// counter consumption.
func (s *Service) spawnSuccessor(tx *store.Tx, settled model.Commitment) error {
	nextDue, ok := recurrence.NextDueDate(settled.Rule, settled.DueDate)
	if !ok {
		return nil
	}

	successorRule, spawnable := successorRuleFor(settled, nextDue)
	if spawnable {
		pruned, err := tx.DeleteStaleSiblings(store.Series(settled), nextDue, settled.ID)
		if err != nil {
			return err
		}
		metrics.StaleSiblingsPruned.Add(float64(pruned))

		successor := settled
		successor.ID = uuid.NewString()
		successor.Status = model.StatusPending
		successor.PaidAt = nil
		successor.DueDate = nextDue
		successor.Rule = successorRule
		now := s.now().UTC()
		successor.CreatedAt = now
		successor.UpdatedAt = now
		if err := tx.InsertCommitment(successor); err != nil {
			return fmt.Errorf("inserting successor: %w", err)
		}
		metrics.OccurrencesSpawned.Inc()
	}

	return consumeRemaining(tx, settled)
}

// successorRuleFor clones the settled occurrence's rule for its successor
// and decides whether a successor may exist at all. The end date and the
// remaining bound both end the series silently.
func successorRuleFor(settled model.Commitment, nextDue time.Time) (*model.Rule, bool) {
	rule := settled.Rule.Clone()
	if rule.EndDate != nil && nextDue.After(*rule.EndDate) {
		return nil, false
	}
	if rule.Remaining != nil {
		if *rule.Remaining <= 1 {
			return nil, false
		}
		next := *rule.Remaining - 1
		rule.Remaining = &next
	}
	return &rule, true
}

// consumeRemaining takes one unit off the settled occurrence's own
// counter, removing the field instead of storing zero. This is distinct
// from the successor's counter: it keeps the settled record's history
// accurate, and the delete path later restores exactly this unit.
func consumeRemaining(tx *store.Tx, settled model.Commitment) error {
	if settled.Rule == nil || settled.Rule.Remaining == nil {
		return nil
	}
	consumed := *settled.Rule.Remaining - 1
	if consumed < 1 {
		return tx.SetRemaining(settled.ID, nil)
	}
	return tx.SetRemaining(settled.ID, &consumed)
}
