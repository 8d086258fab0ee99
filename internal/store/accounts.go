package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/duebook-dev/duebook/internal/model"
)

// Account is an owning account whose balance the ledger keeps consistent
// with the paid/unpaid status of every occurrence.
type Account struct {
	ID           string
	OwnerID      string
	Name         string
	Currency     string
	BalanceCents int64
	CreatedAt    time.Time
}

// CreateAccount inserts a new account with a starting balance.
func (d *DB) CreateAccount(a Account) error {
	_, err := d.db.Exec(`
		INSERT INTO accounts (id, owner_id, name, currency, balance_cents)
		VALUES (?, ?, ?, ?, ?)
	`, a.ID, a.OwnerID, a.Name, a.Currency, a.BalanceCents)
	if err != nil {
		return fmt.Errorf("creating account: %w", err)
	}
	return nil
}

// GetAccount loads an account owned by ownerID.
func (d *DB) GetAccount(ownerID, id string) (Account, error) {
	var a Account
	var createdAt string
	err := d.db.QueryRow(`
		SELECT id, owner_id, name, currency, balance_cents, created_at
		FROM accounts WHERE id = ? AND owner_id = ?
	`, id, ownerID).Scan(&a.ID, &a.OwnerID, &a.Name, &a.Currency, &a.BalanceCents, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, model.ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("loading account: %w", err)
	}
	a.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdAt)
	return a, nil
}

// AccountExists reports whether an account exists for the owner, inside
// the current transaction.
func (t *Tx) AccountExists(ownerID, id string) (bool, error) {
	var n int
	err := t.tx.QueryRow(`
		SELECT COUNT(*) FROM accounts WHERE id = ? AND owner_id = ?
	`, id, ownerID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking account: %w", err)
	}
	return n > 0, nil
}

// Debit reduces an account's balance by cents. The store enforces
// non-negative balances, so a debit that would overdraw fails the same
// way a missing account does and aborts the caller's transaction.
func (t *Tx) Debit(accountID string, cents int64) error {
	res, err := t.tx.Exec(`
		UPDATE accounts SET balance_cents = balance_cents - ?
		WHERE id = ? AND balance_cents >= ?
	`, cents, accountID, cents)
	if err != nil {
		return fmt.Errorf("debiting account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("debiting account %s: %w", accountID, model.ErrAccountUnavailable)
	}
	return nil
}

// Credit increases an account's balance by cents.
func (t *Tx) Credit(accountID string, cents int64) error {
	res, err := t.tx.Exec(`
		UPDATE accounts SET balance_cents = balance_cents + ?
		WHERE id = ?
	`, cents, accountID)
	if err != nil {
		return fmt.Errorf("crediting account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("crediting account %s: %w", accountID, model.ErrAccountUnavailable)
	}
	return nil
}
