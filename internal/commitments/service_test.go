package commitments

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duebook-dev/duebook/internal/model"
	"github.com/duebook-dev/duebook/internal/store"
)

const owner = "user-1"

func newTestService(t *testing.T) (*Service, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "duebook.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return NewService(db), db
}

func newAccount(t *testing.T, db *store.DB, id string, balanceCents int64) {
	t.Helper()
	require.NoError(t, db.CreateAccount(store.Account{
		ID: id, OwnerID: owner, Name: "checking", Currency: "USD", BalanceCents: balanceCents,
	}))
}

func accountBalance(t *testing.T, db *store.DB, id string) int64 {
	t.Helper()
	a, err := db.GetAccount(owner, id)
	require.NoError(t, err)
	return a.BalanceCents
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr[T any](v T) *T { return &v }

func pendingOccurrences(t *testing.T, svc *Service) []model.Commitment {
	t.Helper()
	list, err := svc.List(owner, store.ListFilter{Status: model.StatusPending})
	require.NoError(t, err)
	return list
}

func TestCreate_PendingHasNoBalanceEffect(t *testing.T) {
	svc, db := newTestService(t)
	newAccount(t, db, "acct", 10000)

	c, err := svc.Create(context.Background(), owner, CreateParams{
		AccountID: "acct",
		Name:      "Electric bill",
		Category:  model.CategoryBill,
		Amount:    dec("49.99"),
		DueDate:   date(2025, time.April, 15),
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, c.Status)
	assert.Equal(t, int64(4999), c.AmountCents)
	assert.Nil(t, c.PaidAt)
	assert.Equal(t, int64(10000), accountBalance(t, db, "acct"))
}

func TestCreate_PaidDebitsAccount(t *testing.T) {
	svc, db := newTestService(t)
	newAccount(t, db, "acct", 10000)

	c, err := svc.Create(context.Background(), owner, CreateParams{
		AccountID: "acct",
		Name:      "Rent",
		Category:  model.CategoryBill,
		Amount:    dec("75.00"),
		Status:    model.StatusPaid,
		DueDate:   date(2025, time.April, 1),
	})
	require.NoError(t, err)
	require.NotNil(t, c.PaidAt)
	assert.Equal(t, int64(2500), accountBalance(t, db, "acct"))
}

func TestCreate_UnknownAccount(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), owner, CreateParams{
		AccountID: "missing",
		Name:      "Rent",
		Amount:    dec("10.00"),
		DueDate:   date(2025, time.April, 1),
	})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCreate_Validation(t *testing.T) {
	svc, db := newTestService(t)
	newAccount(t, db, "acct", 10000)

	cases := []struct {
		name   string
		params CreateParams
	}{
		{"negative amount", CreateParams{AccountID: "acct", Name: "x", Amount: dec("-1.00"), DueDate: date(2025, 4, 1)}},
		{"sub-cent amount", CreateParams{AccountID: "acct", Name: "x", Amount: dec("1.001"), DueDate: date(2025, 4, 1)}},
		{"bad category", CreateParams{AccountID: "acct", Name: "x", Category: "groceries", Amount: dec("1.00"), DueDate: date(2025, 4, 1)}},
		{"bad status", CreateParams{AccountID: "acct", Name: "x", Status: "overdue", Amount: dec("1.00"), DueDate: date(2025, 4, 1)}},
		{"missing name", CreateParams{AccountID: "acct", Name: "  ", Amount: dec("1.00"), DueDate: date(2025, 4, 1)}},
		{"missing due date", CreateParams{AccountID: "acct", Name: "x", Amount: dec("1.00")}},
		{"bad interval", CreateParams{AccountID: "acct", Name: "x", Amount: dec("1.00"), DueDate: date(2025, 4, 1),
			IsRecurring: true, Rule: &RuleParams{Interval: -2}}},
		{"bad weekday", CreateParams{AccountID: "acct", Name: "x", Amount: dec("1.00"), DueDate: date(2025, 4, 1),
			IsRecurring: true, Rule: &RuleParams{Frequency: model.FrequencyWeekly, ByWeekday: []int{7}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), owner, tc.params)
			require.Error(t, err)
			assert.True(t, model.IsValidation(err), "want validation error, got %v", err)
		})
	}

	// Nothing was written.
	list, err := svc.List(owner, store.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreate_RuleDefaults(t *testing.T) {
	svc, db := newTestService(t)
	newAccount(t, db, "acct", 10000)

	c, err := svc.Create(context.Background(), owner, CreateParams{
		AccountID:   "acct",
		Name:        "Gym",
		Amount:      dec("30.00"),
		DueDate:     date(2025, time.April, 10),
		IsRecurring: true,
		Rule:        &RuleParams{Remaining: ptr(0)},
	})
	require.NoError(t, err)
	require.NotNil(t, c.Rule)
	assert.Equal(t, model.FrequencyMonthly, c.Rule.Frequency)
	assert.Equal(t, 1, c.Rule.Interval)
	assert.Equal(t, date(2025, time.April, 10), c.Rule.StartDate)
	assert.Nil(t, c.Rule.Remaining, "a bound below one is stripped")
}

func markPaid(t *testing.T, svc *Service, id string) model.Commitment {
	t.Helper()
	c, err := svc.Update(context.Background(), owner, id, UpdateParams{Status: ptr(model.StatusPaid)})
	require.NoError(t, err)
	return c
}

func TestMarkPaid_SpawnsSuccessor(t *testing.T) {
	svc, db := newTestService(t)
	newAccount(t, db, "acct", 10000)

	c, err := svc.Create(context.Background(), owner, CreateParams{
		AccountID:   "acct",
		Name:        "Streaming",
		Category:    model.CategoryBill,
		Amount:      dec("15.00"),
		DueDate:     date(2025, time.April, 15),
		IsRecurring: true,
		Rule:        &RuleParams{Frequency: model.FrequencyMonthly},
	})
	require.NoError(t, err)

	markPaid(t, svc, c.ID)
	assert.Equal(t, int64(8500), accountBalance(t, db, "acct"))

	pending := pendingOccurrences(t, svc)
	require.Len(t, pending, 1)
	successor := pending[0]
	assert.Equal(t, date(2025, time.May, 15), successor.DueDate)
	assert.Equal(t, "Streaming", successor.Name)
	assert.Equal(t, int64(1500), successor.AmountCents)
	assert.True(t, successor.IsRecurring)
	assert.NotEqual(t, c.ID, successor.ID)
}

func TestMarkPaid_DedupesStaleSiblings(t *testing.T) {
	svc, db := newTestService(t)
	newAccount(t, db, "acct", 10000)

	mk := func(due time.Time) model.Commitment {
		c, err := svc.Create(context.Background(), owner, CreateParams{
			AccountID:   "acct",
			Name:        "Streaming",
			Category:    model.CategoryBill,
			Amount:      dec("15.00"),
			DueDate:     due,
			IsRecurring: true,
			Rule:        &RuleParams{Frequency: model.FrequencyMonthly},
		})
		require.NoError(t, err)
		return c
	}

	current := mk(date(2025, time.April, 15))
	mk(date(2025, time.April, 20)) // stale leftover from a prior edit
	mk(date(2025, time.May, 1))    // stale, still <= next due

	markPaid(t, svc, current.ID)

	// Exactly one pending successor survives for the series.
	pending := pendingOccurrences(t, svc)
	require.Len(t, pending, 1)
	assert.Equal(t, date(2025, time.May, 15), pending[0].DueDate)
}

func TestMarkPaid_RetryIsIdempotent(t *testing.T) {
	svc, db := newTestService(t)
	newAccount(t, db, "acct", 10000)

	c, err := svc.Create(context.Background(), owner, CreateParams{
		AccountID:   "acct",
		Name:        "Streaming",
		Amount:      dec("15.00"),
		DueDate:     date(2025, time.April, 15),
		IsRecurring: true,
		Rule:        &RuleParams{Frequency: model.FrequencyMonthly},
	})
	require.NoError(t, err)
	markPaid(t, svc, c.ID)

	// Undo and redo the payment. The redo re-runs delete-then-insert
	// against current state; it must not leave two pending successors.
	_, err = svc.Update(context.Background(), owner, c.ID, UpdateParams{Status: ptr(model.StatusPending)})
	require.NoError(t, err)
	markPaid(t, svc, c.ID)

	pending := pendingOccurrences(t, svc)
	require.Len(t, pending, 1)
	assert.Equal(t, date(2025, time.May, 15), pending[0].DueDate)
}

func TestMarkPaid_RemainingDecrementsBothSides(t *testing.T) {
	svc, db := newTestService(t)
	newAccount(t, db, "acct", 10000)

	c, err := svc.Create(context.Background(), owner, CreateParams{
		AccountID:   "acct",
		Name:        "Loan installment",
		Category:    model.CategoryLoan,
		Amount:      dec("100.00"),
		DueDate:     date(2025, time.April, 1),
		IsRecurring: true,
		Rule:        &RuleParams{Frequency: model.FrequencyMonthly, Remaining: ptr(3)},
	})
	require.NoError(t, err)

	markPaid(t, svc, c.ID)

	settled, err := svc.Get(context.Background(), owner, c.ID)
	require.NoError(t, err)
	require.NotNil(t, settled.Rule.Remaining)
	assert.Equal(t, 2, *settled.Rule.Remaining, "settled occurrence consumed one unit")

	pending := pendingOccurrences(t, svc)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].Rule.Remaining)
	assert.Equal(t, 2, *pending[0].Rule.Remaining, "successor carries remaining-1")
}

func TestMarkPaid_RemainingExhaustion(t *testing.T) {
	svc, db := newTestService(t)
	newAccount(t, db, "acct", 10000)

	c, err := svc.Create(context.Background(), owner, CreateParams{
		AccountID:   "acct",
		Name:        "Final installment",
		Category:    model.CategoryLoan,
		Amount:      dec("100.00"),
		DueDate:     date(2025, time.April, 1),
		IsRecurring: true,
		Rule:        &RuleParams{Frequency: model.FrequencyMonthly, Remaining: ptr(1)},
	})
	require.NoError(t, err)

	markPaid(t, svc, c.ID)

	assert.Empty(t, pendingOccurrences(t, svc), "no successor after the last allowed occurrence")

	settled, err := svc.Get(context.Background(), owner, c.ID)
	require.NoError(t, err)
	require.NotNil(t, settled.Rule)
	assert.Nil(t, settled.Rule.Remaining, "counter is removed, not stored as zero")
}

func TestMarkPaid_EndDateStopsSeries(t *testing.T) {
	svc, db := newTestService(t)
	newAccount(t, db, "acct", 10000)

	c, err := svc.Create(context.Background(), owner, CreateParams{
		AccountID:   "acct",
		Name:        "Short subscription",
		Amount:      dec("5.00"),
		DueDate:     date(2025, time.April, 15),
		IsRecurring: true,
		Rule: &RuleParams{
			Frequency: model.FrequencyMonthly,
			EndDate:   ptr(date(2025, time.April, 30)),
		},
	})
	require.NoError(t, err)

	markPaid(t, svc, c.ID)
	assert.Empty(t, pendingOccurrences(t, svc), "next due would pass the end date")
}

func TestBalanceConservation(t *testing.T) {
	svc, db := newTestService(t)
	newAccount(t, db, "acct", 20000)
	ctx := context.Background()

	c, err := svc.Create(ctx, owner, CreateParams{
		AccountID: "acct",
		Name:      "One-off bill",
		Amount:    dec("60.00"),
		DueDate:   date(2025, time.April, 1),
	})
	require.NoError(t, err)

	markPaid(t, svc, c.ID)
	assert.Equal(t, int64(14000), accountBalance(t, db, "acct"))

	// Edit the amount while paid: only the difference moves.
	_, err = svc.Update(ctx, owner, c.ID, UpdateParams{Amount: ptr(dec("80.00"))})
	require.NoError(t, err)
	assert.Equal(t, int64(12000), accountBalance(t, db, "acct"))

	// Unpay: full credit back at the new amount.
	_, err = svc.Update(ctx, owner, c.ID, UpdateParams{Status: ptr(model.StatusPending)})
	require.NoError(t, err)
	assert.Equal(t, int64(20000), accountBalance(t, db, "acct"))

	require.NoError(t, svc.Delete(ctx, owner, c.ID))
	assert.Equal(t, int64(20000), accountBalance(t, db, "acct"),
		"every debit had a matching credit")
}

func TestAccountReassignment(t *testing.T) {
	svc, db := newTestService(t)
	newAccount(t, db, "a", 10000)
	newAccount(t, db, "b", 10000)
	ctx := context.Background()

	c, err := svc.Create(ctx, owner, CreateParams{
		AccountID: "a",
		Name:      "Insurance",
		Category:  model.CategoryInsurance,
		Amount:    dec("50.00"),
		Status:    model.StatusPaid,
		DueDate:   date(2025, time.April, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), accountBalance(t, db, "a"))

	_, err = svc.Update(ctx, owner, c.ID, UpdateParams{AccountID: ptr("b")})
	require.NoError(t, err)

	// Credit to A and debit to B, never a net adjustment on one side.
	assert.Equal(t, int64(10000), accountBalance(t, db, "a"))
	assert.Equal(t, int64(5000), accountBalance(t, db, "b"))
}

func TestDelete_PaidCreditsBack(t *testing.T) {
	svc, db := newTestService(t)
	newAccount(t, db, "acct", 10000)
	ctx := context.Background()

	c, err := svc.Create(ctx, owner, CreateParams{
		AccountID: "acct",
		Name:      "Bill",
		Amount:    dec("40.00"),
		Status:    model.StatusPaid,
		DueDate:   date(2025, time.April, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6000), accountBalance(t, db, "acct"))

	require.NoError(t, svc.Delete(ctx, owner, c.ID))
	assert.Equal(t, int64(10000), accountBalance(t, db, "acct"))

	_, err = svc.Get(ctx, owner, c.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDelete_RestoresRemainingOnSibling(t *testing.T) {
	svc, db := newTestService(t)
	newAccount(t, db, "acct", 100000)
	ctx := context.Background()

	c, err := svc.Create(ctx, owner, CreateParams{
		AccountID:   "acct",
		Name:        "Loan installment",
		Category:    model.CategoryLoan,
		Amount:      dec("100.00"),
		DueDate:     date(2025, time.April, 1),
		IsRecurring: true,
		Rule:        &RuleParams{Frequency: model.FrequencyMonthly, Remaining: ptr(4)},
	})
	require.NoError(t, err)

	markPaid(t, svc, c.ID)
	pending := pendingOccurrences(t, svc)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].Rule.Remaining)
	require.Equal(t, 3, *pending[0].Rule.Remaining)

	// Deleting the settled occurrence gives its consumed unit back to the
	// successor.
	require.NoError(t, svc.Delete(ctx, owner, c.ID))

	successor, err := svc.Get(ctx, owner, pending[0].ID)
	require.NoError(t, err)
	require.NotNil(t, successor.Rule.Remaining)
	assert.Equal(t, 4, *successor.Rule.Remaining)
}

func TestDelete_RestoresRemainingWhenSiblingHadNone(t *testing.T) {
	svc, db := newTestService(t)
	newAccount(t, db, "acct", 100000)
	ctx := context.Background()

	c, err := svc.Create(ctx, owner, CreateParams{
		AccountID:   "acct",
		Name:        "Subscription",
		Amount:      dec("10.00"),
		DueDate:     date(2025, time.April, 1),
		IsRecurring: true,
		Rule:        &RuleParams{Frequency: model.FrequencyMonthly},
	})
	require.NoError(t, err)
	markPaid(t, svc, c.ID)

	pending := pendingOccurrences(t, svc)
	require.Len(t, pending, 1)
	require.Nil(t, pending[0].Rule.Remaining)

	require.NoError(t, svc.Delete(ctx, owner, c.ID))

	successor, err := svc.Get(ctx, owner, pending[0].ID)
	require.NoError(t, err)
	require.NotNil(t, successor.Rule.Remaining)
	assert.Equal(t, 1, *successor.Rule.Remaining)
}

func TestUpdate_NotFoundForOtherOwner(t *testing.T) {
	svc, db := newTestService(t)
	newAccount(t, db, "acct", 10000)
	ctx := context.Background()

	c, err := svc.Create(ctx, owner, CreateParams{
		AccountID: "acct",
		Name:      "Bill",
		Amount:    dec("10.00"),
		DueDate:   date(2025, time.April, 1),
	})
	require.NoError(t, err)

	_, err = svc.Update(ctx, "someone-else", c.ID, UpdateParams{Note: ptr("hijack")})
	assert.ErrorIs(t, err, model.ErrNotFound)

	err = svc.Delete(ctx, "someone-else", c.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMarkPaid_InsufficientFundsAbortsTransaction(t *testing.T) {
	svc, db := newTestService(t)
	newAccount(t, db, "acct", 1000) // 10.00 available
	ctx := context.Background()

	c, err := svc.Create(ctx, owner, CreateParams{
		AccountID:   "acct",
		Name:        "Big bill",
		Amount:      dec("50.00"),
		DueDate:     date(2025, time.April, 1),
		IsRecurring: true,
		Rule:        &RuleParams{Frequency: model.FrequencyMonthly},
	})
	require.NoError(t, err)

	_, err = svc.Update(ctx, owner, c.ID, UpdateParams{Status: ptr(model.StatusPaid)})
	require.ErrorIs(t, err, model.ErrAccountUnavailable)

	// Nothing committed: still pending, no successor, balance untouched.
	reloaded, err := svc.Get(ctx, owner, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, reloaded.Status)
	assert.Equal(t, int64(1000), accountBalance(t, db, "acct"))
	assert.Len(t, pendingOccurrences(t, svc), 1)
}

func TestUpdate_RuleCarriesForwardUnsetFields(t *testing.T) {
	svc, db := newTestService(t)
	newAccount(t, db, "acct", 10000)
	ctx := context.Background()

	c, err := svc.Create(ctx, owner, CreateParams{
		AccountID:   "acct",
		Name:        "Weekly thing",
		Amount:      dec("5.00"),
		DueDate:     date(2025, time.April, 7),
		IsRecurring: true,
		Rule: &RuleParams{
			Frequency: model.FrequencyWeekly,
			ByWeekday: []int{1, 4},
			Remaining: ptr(10),
		},
	})
	require.NoError(t, err)

	// Patching only the interval keeps frequency, weekday set and the
	// remaining bound.
	updated, err := svc.Update(ctx, owner, c.ID, UpdateParams{Rule: &RuleParams{Interval: 2}})
	require.NoError(t, err)
	require.NotNil(t, updated.Rule)
	assert.Equal(t, model.FrequencyWeekly, updated.Rule.Frequency)
	assert.Equal(t, 2, updated.Rule.Interval)
	assert.Equal(t, []int{1, 4}, updated.Rule.ByWeekday)
	require.NotNil(t, updated.Rule.Remaining)
	assert.Equal(t, 10, *updated.Rule.Remaining)
}

func TestUpdate_TurningOffRecurringDropsRule(t *testing.T) {
	svc, db := newTestService(t)
	newAccount(t, db, "acct", 10000)
	ctx := context.Background()

	c, err := svc.Create(ctx, owner, CreateParams{
		AccountID:   "acct",
		Name:        "Was recurring",
		Amount:      dec("5.00"),
		DueDate:     date(2025, time.April, 7),
		IsRecurring: true,
		Rule:        &RuleParams{Frequency: model.FrequencyMonthly},
	})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, owner, c.ID, UpdateParams{IsRecurring: ptr(false)})
	require.NoError(t, err)
	assert.False(t, updated.IsRecurring)
	assert.Nil(t, updated.Rule)

	// Paying it now spawns nothing.
	markPaid(t, svc, c.ID)
	assert.Empty(t, pendingOccurrences(t, svc))
}
