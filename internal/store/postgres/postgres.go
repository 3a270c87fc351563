// Package postgres provides a catalog.Store backed by PostgreSQL via pgx.
package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentstation/retailchain/pkg/catalog"
	"github.com/agentstation/retailchain/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id       BIGSERIAL PRIMARY KEY,
	name     VARCHAR(200) NOT NULL,
	sku      VARCHAR(100) NOT NULL,
	category VARCHAR(100) NOT NULL
)`

var _ catalog.Store = (*Store)(nil)

// Store persists products in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL, verifies the connection, and creates the
// schema if needed. Both URL and keyword/value DSNs are accepted.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.NewConfigError("postgres", "invalid database url", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.WrapStorage("open", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.WrapStorage("ping", err)
	}

	s := &Store{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the products table.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return errors.WrapStorage("migrate", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases every pooled connection.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Count implements catalog.Store.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, errors.WrapStorage("count", err)
	}
	return n, nil
}

// Create implements catalog.Store.
func (s *Store) Create(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO products (name, sku, category) VALUES ($1, $2, $3) RETURNING id`,
		p.Name, p.SKU, p.Category).Scan(&p.ID)
	if err != nil {
		return catalog.Product{}, errors.WrapStorage("create", err)
	}
	return p, nil
}

// List implements catalog.Store.
func (s *Store) List(ctx context.Context) ([]catalog.Product, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, sku, category FROM products ORDER BY id`)
	if err != nil {
		return nil, errors.WrapStorage("list", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.WrapStorage("list", err)
	}
	if products == nil {
		products = []catalog.Product{}
	}
	return products, nil
}

// Exists implements catalog.Store.
func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	var found bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&found)
	if err != nil {
		return false, errors.WrapStorage("exists", err)
	}
	return found, nil
}

// Get implements catalog.Store.
func (s *Store) Get(ctx context.Context, id int64) (catalog.Product, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, sku, category FROM products WHERE id = $1`, id)
	if err != nil {
		return catalog.Product{}, errors.WrapStorage("get", err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		return catalog.Product{}, classify("get", id, err)
	}
	return p, nil
}

// Update implements catalog.Store.
func (s *Store) Update(ctx context.Context, id int64, p catalog.Product) (catalog.Product, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE products SET name = $2, sku = $3, category = $4 WHERE id = $1
		 RETURNING id, name, sku, category`,
		id, p.Name, p.SKU, p.Category)
	if err != nil {
		return catalog.Product{}, errors.WrapStorage("update", err)
	}
	out, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		return catalog.Product{}, classify("update", id, err)
	}
	return out, nil
}

// Delete implements catalog.Store.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return errors.WrapStorage("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewProductNotFound(id)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Category)
	return p, err
}

func classify(op string, id int64, err error) error {
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NewProductNotFound(id)
	}
	return errors.WrapStorage(op, fmt.Errorf("product %d: %w", id, err))
}
