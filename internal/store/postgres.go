package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rezawallet/backend/internal/models"
)

// PostgresStore persists accounts and their ledger entries. The account row
// carries the version used for optimistic locking; entries live in their own
// table and are written in the same SQL transaction as the version bump, so
// a conditional write is all-or-nothing.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Read(ctx context.Context, userID string) (*models.Account, error) {
	account := &models.Account{UserID: userID}
	err := s.db.QueryRowContext(ctx, `
		SELECT balance, version, updated_at
		FROM accounts
		WHERE user_id = $1`, userID).
		Scan(&account.Balance, &account.Version, &account.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, amount, status, COALESCE(external_reference, ''),
		       COALESCE(description, ''), created_at, settled_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var entry models.LedgerEntry
		var settledAt sql.NullTime
		if err := rows.Scan(&entry.ID, &entry.Type, &entry.Amount, &entry.Status,
			&entry.ExternalReference, &entry.Description, &entry.CreatedAt, &settledAt); err != nil {
			return nil, err
		}
		if settledAt.Valid {
			t := settledAt.Time
			entry.SettledAt = &t
		}
		account.Transactions = append(account.Transactions, entry)
	}
	return account, rows.Err()
}

func (s *PostgresStore) ConditionalWrite(ctx context.Context, userID string, expectedVersion int64, account *models.Account) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE user_id = $3 AND version = $4`,
		account.Balance, time.Now(), userID, expectedVersion)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		// Either the version moved under us or the account vanished.
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM accounts WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return models.ErrUserNotFound
		}
		return models.ErrVersionConflict
	}

	for _, entry := range account.Transactions {
		var settledAt any
		if entry.SettledAt != nil {
			settledAt = *entry.SettledAt
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_entries
			(id, user_id, type, amount, status, external_reference, description, created_at, settled_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE
			SET status = EXCLUDED.status,
			    external_reference = EXCLUDED.external_reference,
			    settled_at = EXCLUDED.settled_at`,
			entry.ID, userID, entry.Type, entry.Amount, entry.Status,
			entry.ExternalReference, entry.Description, entry.CreatedAt, settledAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// CreateAccount inserts a zero-balance account row. Safe to call repeatedly.
func (s *PostgresStore) CreateAccount(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (user_id, balance, version, updated_at)
		VALUES ($1, 0, 0, $2)
		ON CONFLICT (user_id) DO NOTHING`, userID, time.Now())
	return err
}
