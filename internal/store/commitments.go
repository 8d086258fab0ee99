package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/duebook-dev/duebook/internal/model"
)

const dateLayout = "2006-01-02"

// SeriesKey identifies the occurrences that belong to one recurring
// series. The recurrence rule itself is deliberately not part of the key;
// the source system matched siblings on display fields only.
type SeriesKey struct {
	OwnerID     string
	AccountID   string
	IsRecurring bool
	Name        string
	Category    model.Category
	Currency    string
	AmountCents int64
}

// Series returns the series key of a commitment.
func Series(c model.Commitment) SeriesKey {
	return SeriesKey{
		OwnerID:     c.OwnerID,
		AccountID:   c.AccountID,
		IsRecurring: c.IsRecurring,
		Name:        c.Name,
		Category:    c.Category,
		Currency:    c.Currency,
		AmountCents: c.AmountCents,
	}
}

const commitmentColumns = `id, owner_id, account_id, name, category, amount_cents, currency,
	status, due_date, paid_at, is_recurring, note,
	rule_frequency, rule_interval, rule_by_weekday, rule_by_monthday,
	rule_start_date, rule_end_date, rule_remaining, created_at, updated_at`

// InsertCommitment writes a new occurrence row.
func (t *Tx) InsertCommitment(c model.Commitment) error {
	args, err := commitmentArgs(c)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(`
		INSERT INTO commitments (`+commitmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, args...)
	if err != nil {
		return fmt.Errorf("inserting commitment: %w", err)
	}
	return nil
}

// GetCommitment loads an occurrence owned by ownerID.
func (t *Tx) GetCommitment(ownerID, id string) (model.Commitment, error) {
	row := t.tx.QueryRow(`
		SELECT `+commitmentColumns+` FROM commitments
		WHERE id = ? AND owner_id = ?
	`, id, ownerID)
	c, err := scanCommitment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Commitment{}, model.ErrNotFound
	}
	if err != nil {
		return model.Commitment{}, fmt.Errorf("loading commitment: %w", err)
	}
	return c, nil
}

// UpdateCommitment replaces every mutable column of an occurrence row.
func (t *Tx) UpdateCommitment(c model.Commitment) error {
	args, err := commitmentArgs(c)
	if err != nil {
		return err
	}
	// Reorder: id last for the WHERE clause.
	res, err := t.tx.Exec(`
		UPDATE commitments SET
			owner_id = ?, account_id = ?, name = ?, category = ?, amount_cents = ?,
			currency = ?, status = ?, due_date = ?, paid_at = ?, is_recurring = ?,
			note = ?, rule_frequency = ?, rule_interval = ?, rule_by_weekday = ?,
			rule_by_monthday = ?, rule_start_date = ?, rule_end_date = ?,
			rule_remaining = ?, created_at = ?, updated_at = ?
		WHERE id = ?
	`, append(args[1:], args[0])...)
	if err != nil {
		return fmt.Errorf("updating commitment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// DeleteCommitment removes an occurrence owned by ownerID.
func (t *Tx) DeleteCommitment(ownerID, id string) error {
	res, err := t.tx.Exec(`DELETE FROM commitments WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("deleting commitment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// DeleteStaleSiblings removes every pending occurrence of the series with
// a due date at or before maxDue, excluding excludeID. This is the dedupe
// step that makes spawn retries idempotent.
func (t *Tx) DeleteStaleSiblings(key SeriesKey, maxDue time.Time, excludeID string) (int64, error) {
	res, err := t.tx.Exec(`
		DELETE FROM commitments
		WHERE owner_id = ? AND account_id = ? AND is_recurring = ?
		  AND name = ? AND category = ? AND currency = ? AND amount_cents = ?
		  AND status = ? AND due_date <= ? AND id != ?
	`, key.OwnerID, key.AccountID, boolInt(key.IsRecurring),
		key.Name, string(key.Category), key.Currency, key.AmountCents,
		string(model.StatusPending), maxDue.Format(dateLayout), excludeID)
	if err != nil {
		return 0, fmt.Errorf("pruning stale siblings: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// NearestPendingSibling returns the pending occurrence of the series with
// the smallest due date at or after minDue.
func (t *Tx) NearestPendingSibling(key SeriesKey, minDue time.Time) (model.Commitment, bool, error) {
	row := t.tx.QueryRow(`
		SELECT `+commitmentColumns+` FROM commitments
		WHERE owner_id = ? AND account_id = ? AND is_recurring = ?
		  AND name = ? AND category = ? AND currency = ? AND amount_cents = ?
		  AND status = ? AND due_date >= ?
		ORDER BY due_date ASC LIMIT 1
	`, key.OwnerID, key.AccountID, boolInt(key.IsRecurring),
		key.Name, string(key.Category), key.Currency, key.AmountCents,
		string(model.StatusPending), minDue.Format(dateLayout))
	c, err := scanCommitment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Commitment{}, false, nil
	}
	if err != nil {
		return model.Commitment{}, false, fmt.Errorf("locating pending sibling: %w", err)
	}
	return c, true, nil
}

// SetRemaining overwrites an occurrence's remaining counter. A nil value
// removes the column (the counter is never stored as 0).
func (t *Tx) SetRemaining(id string, remaining *int) error {
	var value any
	if remaining != nil {
		value = *remaining
	}
	res, err := t.tx.Exec(`UPDATE commitments SET rule_remaining = ? WHERE id = ?`, value, id)
	if err != nil {
		return fmt.Errorf("setting remaining counter: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ListFilter narrows ListCommitments.
type ListFilter struct {
	Status  model.Status // empty = all
	DueFrom *time.Time
	DueTo   *time.Time
}

// ListCommitments returns an owner's occurrences ordered by due date. It
// reads outside any lifecycle transaction.
func (d *DB) ListCommitments(ownerID string, filter ListFilter) ([]model.Commitment, error) {
	query := `SELECT ` + commitmentColumns + ` FROM commitments WHERE owner_id = ?`
	args := []any{ownerID}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.DueFrom != nil {
		query += ` AND due_date >= ?`
		args = append(args, filter.DueFrom.Format(dateLayout))
	}
	if filter.DueTo != nil {
		query += ` AND due_date <= ?`
		args = append(args, filter.DueTo.Format(dateLayout))
	}
	query += ` ORDER BY due_date ASC, created_at ASC`

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing commitments: %w", err)
	}
	defer rows.Close()

	var result []model.Commitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, fmt.Errorf("listing commitments: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// ─── Row marshaling ─────────────────────────────────────────────────────────

func commitmentArgs(c model.Commitment) ([]any, error) {
	var paidAt any
	if c.PaidAt != nil {
		paidAt = c.PaidAt.UTC().Format(time.RFC3339)
	}

	var freq, byWeekday, byMonthDay, startDate, endDate, interval, remaining any
	if c.Rule != nil {
		freq = string(c.Rule.Frequency)
		interval = c.Rule.Interval
		startDate = c.Rule.StartDate.Format(dateLayout)
		if len(c.Rule.ByWeekday) > 0 {
			b, err := json.Marshal(c.Rule.ByWeekday)
			if err != nil {
				return nil, fmt.Errorf("encoding weekday set: %w", err)
			}
			byWeekday = string(b)
		}
		if len(c.Rule.ByMonthDay) > 0 {
			b, err := json.Marshal(c.Rule.ByMonthDay)
			if err != nil {
				return nil, fmt.Errorf("encoding month-day set: %w", err)
			}
			byMonthDay = string(b)
		}
		if c.Rule.EndDate != nil {
			endDate = c.Rule.EndDate.Format(dateLayout)
		}
		if c.Rule.Remaining != nil {
			remaining = *c.Rule.Remaining
		}
	}

	return []any{
		c.ID, c.OwnerID, c.AccountID, c.Name, string(c.Category), c.AmountCents, c.Currency,
		string(c.Status), c.DueDate.Format(dateLayout), paidAt, boolInt(c.IsRecurring), c.Note,
		freq, interval, byWeekday, byMonthDay, startDate, endDate, remaining,
		c.CreatedAt.UTC().Format(time.RFC3339), c.UpdatedAt.UTC().Format(time.RFC3339),
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommitment(row rowScanner) (model.Commitment, error) {
	var c model.Commitment
	var category, status, dueDate, createdAt, updatedAt string
	var paidAt, freq, byWeekday, byMonthDay, startDate, endDate sql.NullString
	var interval, remaining sql.NullInt64
	var recurring int

	err := row.Scan(&c.ID, &c.OwnerID, &c.AccountID, &c.Name, &category, &c.AmountCents, &c.Currency,
		&status, &dueDate, &paidAt, &recurring, &c.Note,
		&freq, &interval, &byWeekday, &byMonthDay, &startDate, &endDate, &remaining,
		&createdAt, &updatedAt)
	if err != nil {
		return model.Commitment{}, err
	}

	c.Category = model.Category(category)
	c.Status = model.Status(status)
	c.IsRecurring = recurring == 1
	if c.DueDate, err = time.Parse(dateLayout, dueDate); err != nil {
		return model.Commitment{}, fmt.Errorf("parsing due date %q: %w", dueDate, err)
	}
	if paidAt.Valid {
		ts, err := time.Parse(time.RFC3339, paidAt.String)
		if err != nil {
			return model.Commitment{}, fmt.Errorf("parsing paid_at %q: %w", paidAt.String, err)
		}
		c.PaidAt = &ts
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	if freq.Valid {
		rule := &model.Rule{Frequency: model.Frequency(freq.String), Interval: 1}
		if interval.Valid {
			rule.Interval = int(interval.Int64)
		}
		if byWeekday.Valid {
			if err := json.Unmarshal([]byte(byWeekday.String), &rule.ByWeekday); err != nil {
				return model.Commitment{}, fmt.Errorf("decoding weekday set: %w", err)
			}
		}
		if byMonthDay.Valid {
			if err := json.Unmarshal([]byte(byMonthDay.String), &rule.ByMonthDay); err != nil {
				return model.Commitment{}, fmt.Errorf("decoding month-day set: %w", err)
			}
		}
		if startDate.Valid {
			rule.StartDate, _ = time.Parse(dateLayout, startDate.String)
		}
		if endDate.Valid {
			end, err := time.Parse(dateLayout, endDate.String)
			if err != nil {
				return model.Commitment{}, fmt.Errorf("parsing rule end date %q: %w", endDate.String, err)
			}
			rule.EndDate = &end
		}
		if remaining.Valid {
			rem := int(remaining.Int64)
			rule.Remaining = &rem
		}
		c.Rule = rule
	}
	return c, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
