// Package sqlite provides a catalog.Store backed by SQLite through the
// ncruces/go-sqlite3 database/sql driver.
package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver" // registers the "sqlite3" driver
	_ "github.com/ncruces/go-sqlite3/embed"  // embeds the SQLite build

	"github.com/agentstation/retailchain/pkg/catalog"
	"github.com/agentstation/retailchain/pkg/errors"
)

// DefaultDSN is used when Open is given an empty DSN.
const DefaultDSN = "file:retailchain.sqlite?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	name     TEXT NOT NULL,
	sku      TEXT NOT NULL,
	category TEXT NOT NULL
)`

var _ catalog.Store = (*Store)(nil)

// Store persists products in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens the database at dsn and creates the schema if needed.
// A DSN of ":memory:" gives a private in-memory database.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.WrapStorage("open", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases
	// from being split across pool connections.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.WrapStorage("ping", err)
	}
	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the products table.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.WrapStorage("migrate", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Count implements catalog.Store.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, errors.WrapStorage("count", err)
	}
	return n, nil
}

// Create implements catalog.Store.
func (s *Store) Create(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO products (name, sku, category) VALUES (?, ?, ?) RETURNING id`,
		p.Name, p.SKU, p.Category)
	if err := row.Scan(&p.ID); err != nil {
		return catalog.Product{}, errors.WrapStorage("create", err)
	}
	return p, nil
}

// List implements catalog.Store.
func (s *Store) List(ctx context.Context) ([]catalog.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, sku, category FROM products ORDER BY id`)
	if err != nil {
		return nil, errors.WrapStorage("list", err)
	}
	defer func() { _ = rows.Close() }()

	products := []catalog.Product{}
	for rows.Next() {
		var p catalog.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &p.Category); err != nil {
			return nil, errors.WrapStorage("list", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStorage("list", err)
	}
	return products, nil
}

// Exists implements catalog.Store.
func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	var found bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = ?)`, id).Scan(&found)
	if err != nil {
		return false, errors.WrapStorage("exists", err)
	}
	return found, nil
}

// Get implements catalog.Store.
func (s *Store) Get(ctx context.Context, id int64) (catalog.Product, error) {
	var p catalog.Product
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, sku, category FROM products WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.SKU, &p.Category)
	if err != nil {
		return catalog.Product{}, classify("get", id, err)
	}
	return p, nil
}

// Update implements catalog.Store.
func (s *Store) Update(ctx context.Context, id int64, p catalog.Product) (catalog.Product, error) {
	var out catalog.Product
	err := s.db.QueryRowContext(ctx,
		`UPDATE products SET name = ?, sku = ?, category = ? WHERE id = ?
		 RETURNING id, name, sku, category`,
		p.Name, p.SKU, p.Category, id).
		Scan(&out.ID, &out.Name, &out.SKU, &out.Category)
	if err != nil {
		return catalog.Product{}, classify("update", id, err)
	}
	return out, nil
}

// Delete implements catalog.Store.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return errors.WrapStorage("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WrapStorage("delete", err)
	}
	if n == 0 {
		return errors.NewProductNotFound(id)
	}
	return nil
}

func classify(op string, id int64, err error) error {
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NewProductNotFound(id)
	}
	return errors.WrapStorage(op, fmt.Errorf("product %d: %w", id, err))
}
