package users

import (
	"context"
	"database/sql"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed user store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, u *User) error {
	var referrer sql.NullInt64
	if u.ReferrerID != 0 {
		referrer = sql.NullInt64{Int64: u.ReferrerID, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (id, referrer_id, language, registered_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, u.ID, referrer, u.Language, u.RegisteredAt)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id int64) (*User, error) {
	u := &User{}
	var referrer sql.NullInt64
	err := p.db.QueryRowContext(ctx, `
		SELECT id, referrer_id, language, registered_at
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &referrer, &u.Language, &u.RegisteredAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.ReferrerID = referrer.Int64
	return u, nil
}

func (p *PostgresStore) SetLanguage(ctx context.Context, id int64, lang string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE users SET language = $2 WHERE id = $1
	`, id, lang)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) CountReferrals(ctx context.Context, referrerID int64) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM users WHERE referrer_id = $1
	`, referrerID).Scan(&n)
	return n, err
}
