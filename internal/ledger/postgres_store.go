package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/ozerovd/linemart/internal/idgen"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed ledger store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) GetBalance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := p.db.QueryRowContext(ctx, `
		SELECT balance FROM user_balances WHERE user_id = $1
	`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// ApplyDelta updates the balance and records the entry in one transaction.
// The CHECK constraint (balance >= 0) rejects overdrafts at the DB level.
func (p *PostgresStore) ApplyDelta(ctx context.Context, entry *Entry) (int64, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO user_balances (user_id, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			balance    = user_balances.balance + $2,
			updated_at = NOW()
		RETURNING balance
	`, entry.UserID, entry.Delta).Scan(&balance)
	if err != nil {
		// CHECK constraint violation means the debit would overdraw.
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23514" {
			return 0, ErrInsufficientFunds
		}
		return 0, fmt.Errorf("failed to update balance: %w", err)
	}

	id := entry.ID
	if id == "" {
		id = idgen.WithPrefix("le_")
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, user_id, delta, origin, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, id, entry.UserID, entry.Delta, string(entry.Origin), entry.Reference)
	if err != nil {
		return 0, fmt.Errorf("failed to record entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return balance, nil
}

func (p *PostgresStore) History(ctx context.Context, userID int64, limit int) ([]*Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, delta, origin, reference, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		var reference sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &e.Origin, &reference, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Reference = reference.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (p *PostgresStore) TotalByOrigin(ctx context.Context, userID int64, origin Origin) (int64, error) {
	var total int64
	err := p.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(delta), 0) FROM ledger_entries
		WHERE user_id = $1 AND origin = $2
	`, userID, string(origin)).Scan(&total)
	return total, err
}

func (p *PostgresStore) HasReference(ctx context.Context, reference string, origin Origin) (bool, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ledger_entries WHERE reference = $1 AND origin = $2
	`, reference, string(origin)).Scan(&count)
	return count > 0, err
}
