package registry

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// PostgresStore implements Store with PostgreSQL. The exactly-once guarantee
// rides on the conditional UPDATE in Transition: only one statement can move
// a row out of 'pending'.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed operation store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, op *Operation) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO payment_operations
			(invoice_id, user_id, amount, anchor_message_id, method, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, op.InvoiceID, op.UserID, op.Amount, op.AnchorMessageID, op.Method, string(op.Status))
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateInvoice
	}
	return err
}

func (p *PostgresStore) Get(ctx context.Context, invoiceID string) (*Operation, error) {
	op := &Operation{}
	var resolvedAt sql.NullTime
	err := p.db.QueryRowContext(ctx, `
		SELECT invoice_id, user_id, amount, anchor_message_id, method, status, created_at, resolved_at
		FROM payment_operations WHERE invoice_id = $1
	`, invoiceID).Scan(&op.InvoiceID, &op.UserID, &op.Amount, &op.AnchorMessageID,
		&op.Method, &op.Status, &op.CreatedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	op.ResolvedAt = resolvedAt.Time
	return op, nil
}

func (p *PostgresStore) Transition(ctx context.Context, invoiceID string, to Status) (*Operation, error) {
	op := &Operation{}
	err := p.db.QueryRowContext(ctx, `
		UPDATE payment_operations SET
			status      = $2,
			resolved_at = NOW()
		WHERE invoice_id = $1 AND status = 'pending'
		RETURNING invoice_id, user_id, amount, anchor_message_id, method, status, created_at, resolved_at
	`, invoiceID, string(to)).Scan(&op.InvoiceID, &op.UserID, &op.Amount, &op.AnchorMessageID,
		&op.Method, &op.Status, &op.CreatedAt, &op.ResolvedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return op, nil
}

func (p *PostgresStore) ListPending(ctx context.Context) ([]*Operation, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT invoice_id, user_id, amount, anchor_message_id, method, status, created_at
		FROM payment_operations
		WHERE status = 'pending'
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Operation
	for rows.Next() {
		op := &Operation{}
		if err := rows.Scan(&op.InvoiceID, &op.UserID, &op.Amount, &op.AnchorMessageID,
			&op.Method, &op.Status, &op.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, op)
	}
	return result, rows.Err()
}

func (p *PostgresStore) ListResolved(ctx context.Context, before time.Time, limit int) ([]*Operation, error) {
	query := `
		SELECT invoice_id, user_id, amount, anchor_message_id, method, status, created_at, resolved_at
		FROM payment_operations
		WHERE status = 'resolved'
		ORDER BY resolved_at DESC
		LIMIT $1
	`
	args := []any{limit}
	if !before.IsZero() {
		query = `
			SELECT invoice_id, user_id, amount, anchor_message_id, method, status, created_at, resolved_at
			FROM payment_operations
			WHERE status = 'resolved' AND resolved_at < $2
			ORDER BY resolved_at DESC
			LIMIT $1
		`
		args = append(args, before)
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Operation
	for rows.Next() {
		op := &Operation{}
		if err := rows.Scan(&op.InvoiceID, &op.UserID, &op.Amount, &op.AnchorMessageID,
			&op.Method, &op.Status, &op.CreatedAt, &op.ResolvedAt); err != nil {
			return nil, err
		}
		result = append(result, op)
	}
	return result, rows.Err()
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
