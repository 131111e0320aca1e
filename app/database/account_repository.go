package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"feedloft/app/model"
)

// AccountRepository handles database operations for accounts.
type AccountRepository struct {
	db *DB
}

var _ AccountStore = (*AccountRepository)(nil)

func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) CreateAccount(ctx context.Context, account model.Account) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, created_time)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email
	`, string(account.ID), account.Email, account.CreatedTime)

	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

func (r *AccountRepository) GetAccount(ctx context.Context, id model.AccountID) (*model.Account, error) {
	var account model.Account
	var rawID string
	var createdTime time.Time

	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, created_time FROM accounts WHERE id = $1
	`, string(id)).Scan(&rawID, &account.Email, &createdTime)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	account.ID = model.AccountID(rawID)
	account.CreatedTime = createdTime
	return &account, nil
}

func (r *AccountRepository) DeleteAccount(ctx context.Context, id model.AccountID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}
