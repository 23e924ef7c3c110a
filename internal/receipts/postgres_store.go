package receipts

import (
	"context"
	"database/sql"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed receipt store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, r *Receipt) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO receipts (id, user_id, item, payload, price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.ID, r.UserID, r.Item, r.Payload, r.Price, r.CreatedAt)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Receipt, error) {
	r := &Receipt{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, user_id, item, payload, price, created_at
		FROM receipts WHERE id = $1
	`, id).Scan(&r.ID, &r.UserID, &r.Item, &r.Payload, &r.Price, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID int64) ([]*Receipt, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, item, payload, price, created_at
		FROM receipts
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Receipt
	for rows.Next() {
		r := &Receipt{}
		if err := rows.Scan(&r.ID, &r.UserID, &r.Item, &r.Payload, &r.Price, &r.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
