package catalog

import (
	"context"
	"database/sql"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed catalog store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Get(ctx context.Context, name string) (*Item, error) {
	item := &Item{}
	err := p.db.QueryRowContext(ctx, `
		SELECT name, description, price, category, unlimited
		FROM catalog_items WHERE name = $1
	`, name).Scan(&item.Name, &item.Description, &item.Price, &item.Category, &item.Unlimited)
	if err == sql.ErrNoRows {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (p *PostgresStore) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT category FROM catalog_items ORDER BY category
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (p *PostgresStore) ListByCategory(ctx context.Context, category string) ([]*Item, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT name, description, price, category, unlimited
		FROM catalog_items
		WHERE category = $1
		ORDER BY name
	`, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item := &Item{}
		if err := rows.Scan(&item.Name, &item.Description, &item.Price, &item.Category, &item.Unlimited); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (p *PostgresStore) Put(ctx context.Context, item *Item) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO catalog_items (name, description, price, category, unlimited)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			price       = EXCLUDED.price,
			category    = EXCLUDED.category,
			unlimited   = EXCLUDED.unlimited
	`, item.Name, item.Description, item.Price, item.Category, item.Unlimited)
	return err
}
