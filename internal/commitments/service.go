// Package commitments implements the lifecycle of recurring obligation
// occurrences: creating, updating and deleting them while keeping account
// balances consistent and spawning successor occurrences as recurring
// commitments are paid. Every entry point runs as one storage
// transaction; either all of an operation's writes commit or none do.
package commitments

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/duebook-dev/duebook/internal/balance"
	"github.com/duebook-dev/duebook/internal/metrics"
	"github.com/duebook-dev/duebook/internal/model"
	"github.com/duebook-dev/duebook/internal/store"
)

// Service provides the commitment lifecycle operations.
type Service struct {
	db  *store.DB
	now func() time.Time
}

// NewService creates a Service backed by db.
func NewService(db *store.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// RuleParams holds recurrence fields as supplied by a caller. Zero values
// mean "unset": defaulted on create, carried forward from the existing
// rule on update.
type RuleParams struct {
	Frequency  model.Frequency
	Interval   int
	ByWeekday  []int
	ByMonthDay []int
	StartDate  time.Time
	EndDate    *time.Time
	Remaining  *int
}

// CreateParams holds parameters for creating a commitment occurrence.
type CreateParams struct {
	AccountID   string
	Name        string
	Category    model.Category
	Amount      decimal.Decimal
	Currency    string
	Status      model.Status // defaults to pending
	DueDate     time.Time
	Note        string
	IsRecurring bool
	Rule        *RuleParams
}

// UpdateParams is a partial patch; nil fields keep their current value.
type UpdateParams struct {
	AccountID   *string
	Name        *string
	Category    *model.Category
	Amount      *decimal.Decimal
	Currency    *string
	Status      *model.Status
	DueDate     *time.Time
	Note        *string
	IsRecurring *bool
	Rule        *RuleParams
}

// Create validates and inserts a new occurrence. If it is created
// already-paid the owning account is debited, and a recurring paid
// occurrence immediately spawns its successor, all in one transaction.
func (s *Service) Create(ctx context.Context, ownerID string, params CreateParams) (model.Commitment, error) {
	c, err := s.buildCommitment(ownerID, params)
	if err != nil {
		metrics.ObserveOp("create", err)
		return model.Commitment{}, err
	}

	err = s.db.WithTx(ctx, func(tx *store.Tx) error {
		exists, err := tx.AccountExists(ownerID, c.AccountID)
		if err != nil {
			return err
		}
		if !exists {
			return model.ErrNotFound
		}
		if err := tx.InsertCommitment(c); err != nil {
			return err
		}
		after := stateOf(c)
		if err := applyAdjustments(tx, balance.Reconcile(nil, &after)); err != nil {
			return err
		}
		if c.Paid() && c.IsRecurring {
			return s.spawnSuccessor(tx, c)
		}
		return nil
	})
	metrics.ObserveOp("create", err)
	if err != nil {
		return model.Commitment{}, err
	}
	return c, nil
}

// Update applies a partial patch to an occurrence. Balance deltas between
// the old and new state (status, amount, account) are reconciled inside
// the transaction, and a pending→paid transition on a recurring
// occurrence spawns its successor.
func (s *Service) Update(ctx context.Context, ownerID, id string, patch UpdateParams) (model.Commitment, error) {
	var updated model.Commitment
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		existing, err := tx.GetCommitment(ownerID, id)
		if err != nil {
			return err
		}

		updated, err = s.applyPatch(existing, patch)
		if err != nil {
			return err
		}
		if updated.AccountID != existing.AccountID {
			exists, err := tx.AccountExists(ownerID, updated.AccountID)
			if err != nil {
				return err
			}
			if !exists {
				return model.ErrNotFound
			}
		}

		before := stateOf(existing)
		after := stateOf(updated)
		if err := applyAdjustments(tx, balance.Reconcile(&before, &after)); err != nil {
			return err
		}
		if err := tx.UpdateCommitment(updated); err != nil {
			return err
		}
		if !existing.Paid() && updated.Paid() && updated.IsRecurring {
			return s.spawnSuccessor(tx, updated)
		}
		return nil
	})
	metrics.ObserveOp("update", err)
	if err != nil {
		return model.Commitment{}, err
	}
	return updated, nil
}

// Delete removes an occurrence. Deleting a paid occurrence credits the
// account back, and deleting a paid recurring occurrence restores one
// unit of the remaining counter on the nearest pending sibling, since
// that unit was consumed when this occurrence originally spawned.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		existing, err := tx.GetCommitment(ownerID, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteCommitment(ownerID, id); err != nil {
			return err
		}
		before := stateOf(existing)
		if err := applyAdjustments(tx, balance.Reconcile(&before, nil)); err != nil {
			return err
		}
		if existing.Paid() && existing.IsRecurring {
			return restoreRemaining(tx, existing)
		}
		return nil
	})
	metrics.ObserveOp("delete", err)
	return err
}

// Get loads a single occurrence.
func (s *Service) Get(ctx context.Context, ownerID, id string) (model.Commitment, error) {
	var c model.Commitment
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		c, err = tx.GetCommitment(ownerID, id)
		return err
	})
	if err != nil {
		return model.Commitment{}, err
	}
	return c, nil
}

// List returns an owner's occurrences ordered by due date.
func (s *Service) List(ownerID string, filter store.ListFilter) ([]model.Commitment, error) {
	return s.db.ListCommitments(ownerID, filter)
}

// restoreRemaining gives one spawn unit back to the series after a paid
// recurring occurrence is deleted. The nearest pending sibling at or
// after the deleted due date carries the series forward.
func restoreRemaining(tx *store.Tx, deleted model.Commitment) error {
	sibling, found, err := tx.NearestPendingSibling(store.Series(deleted), deleted.DueDate)
	if err != nil || !found {
		return err
	}
	restored := 1
	if sibling.Rule != nil && sibling.Rule.Remaining != nil {
		restored = *sibling.Rule.Remaining + 1
	}
	return tx.SetRemaining(sibling.ID, &restored)
}

func applyAdjustments(tx *store.Tx, adjustments []balance.Adjustment) error {
	if err := balance.Apply(tx, adjustments); err != nil {
		return err
	}
	for _, adj := range adjustments {
		if adj.DeltaCents < 0 {
			metrics.BalanceAdjustments.WithLabelValues("debit").Inc()
		} else {
			metrics.BalanceAdjustments.WithLabelValues("credit").Inc()
		}
	}
	return nil
}

func stateOf(c model.Commitment) balance.State {
	return balance.State{AccountID: c.AccountID, Status: c.Status, AmountCents: c.AmountCents}
}

// ─── Input normalization ────────────────────────────────────────────────────

func (s *Service) buildCommitment(ownerID string, params CreateParams) (model.Commitment, error) {
	cents, err := amountToCents(params.Amount)
	if err != nil {
		return model.Commitment{}, err
	}
	category, err := normalizeCategory(params.Category)
	if err != nil {
		return model.Commitment{}, err
	}
	status := params.Status
	if status == "" {
		status = model.StatusPending
	}
	if status != model.StatusPending && status != model.StatusPaid {
		return model.Commitment{}, model.Validationf("status", "must be pending or paid, got %q", status)
	}
	if params.AccountID == "" {
		return model.Commitment{}, model.Validationf("accountId", "is required")
	}
	if strings.TrimSpace(params.Name) == "" {
		return model.Commitment{}, model.Validationf("name", "is required")
	}
	if params.DueDate.IsZero() {
		return model.Commitment{}, model.Validationf("dueDate", "is required")
	}

	now := s.now().UTC()
	c := model.Commitment{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		AccountID:   params.AccountID,
		Name:        strings.TrimSpace(params.Name),
		Category:    category,
		AmountCents: cents,
		Currency:    normalizeCurrency(params.Currency),
		Status:      status,
		DueDate:     dateOnly(params.DueDate),
		Note:        strings.TrimSpace(params.Note),
		IsRecurring: params.IsRecurring,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if status == model.StatusPaid {
		c.PaidAt = &now
	}
	if c.IsRecurring {
		rule, err := normalizeRule(nil, params.Rule, c.DueDate)
		if err != nil {
			return model.Commitment{}, err
		}
		c.Rule = rule
	}
	return c, nil
}

func (s *Service) applyPatch(existing model.Commitment, patch UpdateParams) (model.Commitment, error) {
	updated := existing
	if existing.Rule != nil {
		rule := existing.Rule.Clone()
		updated.Rule = &rule
	}

	if patch.AccountID != nil {
		if *patch.AccountID == "" {
			return model.Commitment{}, model.Validationf("accountId", "must not be empty")
		}
		updated.AccountID = *patch.AccountID
	}
	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return model.Commitment{}, model.Validationf("name", "must not be empty")
		}
		updated.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Category != nil {
		category, err := normalizeCategory(*patch.Category)
		if err != nil {
			return model.Commitment{}, err
		}
		updated.Category = category
	}
	if patch.Amount != nil {
		cents, err := amountToCents(*patch.Amount)
		if err != nil {
			return model.Commitment{}, err
		}
		updated.AmountCents = cents
	}
	if patch.Currency != nil {
		updated.Currency = normalizeCurrency(*patch.Currency)
	}
	if patch.DueDate != nil {
		updated.DueDate = dateOnly(*patch.DueDate)
	}
	if patch.Note != nil {
		updated.Note = strings.TrimSpace(*patch.Note)
	}
	if patch.IsRecurring != nil {
		updated.IsRecurring = *patch.IsRecurring
	}

	if patch.Status != nil {
		switch *patch.Status {
		case model.StatusPending, model.StatusPaid:
		default:
			return model.Commitment{}, model.Validationf("status", "must be pending or paid, got %q", *patch.Status)
		}
		if updated.Status != *patch.Status {
			updated.Status = *patch.Status
			if updated.Status == model.StatusPaid {
				now := s.now().UTC()
				updated.PaidAt = &now
			} else {
				updated.PaidAt = nil
			}
		}
	}

	if updated.IsRecurring {
		rule, err := normalizeRule(existing.Rule, patch.Rule, updated.DueDate)
		if err != nil {
			return model.Commitment{}, err
		}
		updated.Rule = rule
	} else {
		updated.Rule = nil
	}

	updated.UpdatedAt = s.now().UTC()
	return updated, nil
}

// normalizeRule merges caller-supplied recurrence fields over an existing
// rule and applies defaults. Validation happens once here, at the
// orchestrator boundary; nothing deeper in the call chain trusts partial
// merges.
func normalizeRule(existing *model.Rule, params *RuleParams, dueDate time.Time) (*model.Rule, error) {
	var rule model.Rule
	if existing != nil {
		rule = existing.Clone()
	}

	if params != nil {
		if params.Frequency != "" {
			rule.Frequency = params.Frequency
		}
		if params.Interval != 0 {
			rule.Interval = params.Interval
		}
		if params.ByWeekday != nil {
			rule.ByWeekday = append([]int(nil), params.ByWeekday...)
		}
		if params.ByMonthDay != nil {
			rule.ByMonthDay = append([]int(nil), params.ByMonthDay...)
		}
		if !params.StartDate.IsZero() {
			rule.StartDate = dateOnly(params.StartDate)
		}
		if params.EndDate != nil {
			end := dateOnly(*params.EndDate)
			rule.EndDate = &end
		}
		if params.Remaining != nil {
			rem := *params.Remaining
			rule.Remaining = &rem
		}
	}

	if rule.Frequency == "" {
		rule.Frequency = model.FrequencyMonthly
	}
	if !model.ValidFrequency(rule.Frequency) {
		return nil, model.Validationf("rule.frequency", "must be daily, weekly, monthly or yearly, got %q", rule.Frequency)
	}
	if rule.Interval == 0 {
		rule.Interval = 1
	}
	if rule.Interval < 1 {
		return nil, model.Validationf("rule.interval", "must be a positive integer, got %d", rule.Interval)
	}
	for _, d := range rule.ByWeekday {
		if d < 0 || d > 6 {
			return nil, model.Validationf("rule.byWeekday", "weekday %d out of range 0-6", d)
		}
	}
	for _, d := range rule.ByMonthDay {
		if d < 1 || d > 31 {
			return nil, model.Validationf("rule.byMonthDay", "day %d out of range 1-31", d)
		}
	}
	if rule.StartDate.IsZero() {
		rule.StartDate = dueDate
	}
	// A bound below one is meaningless: drop it rather than reject it.
	if rule.Remaining != nil && *rule.Remaining < 1 {
		rule.Remaining = nil
	}
	return &rule, nil
}

// amountToCents converts a decimal amount to integer minor units. Amounts
// must be non-negative with at most two decimal places.
func amountToCents(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, model.Validationf("amount", "must not be negative, got %s", amount)
	}
	shifted := amount.Shift(2)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, model.Validationf("amount", "must have at most two decimal places, got %s", amount)
	}
	return shifted.IntPart(), nil
}

func normalizeCategory(c model.Category) (model.Category, error) {
	if c == "" {
		return model.CategoryOther, nil
	}
	normalized := model.Category(strings.ToLower(string(c)))
	if !model.ValidCategory(normalized) {
		return "", model.Validationf("category", "unknown category %q", c)
	}
	return normalized, nil
}

func normalizeCurrency(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return "USD"
	}
	return currency
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
