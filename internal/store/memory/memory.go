// Package memory provides an in-process catalog.Store backed by a map.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/agentstation/retailchain/pkg/catalog"
	"github.com/agentstation/retailchain/pkg/errors"
)

var _ catalog.Store = (*Store)(nil)

// Store is a concurrent safe map of products keyed by id.
// Identifiers start at 1 and are never reused.
type Store struct {
	mu       sync.RWMutex
	products map[int64]catalog.Product
	nextID   int64
}

// Option configures a Store.
type Option func(*Store) error

// WithProducts preloads products. Records without an id are assigned one;
// records with an id keep it.
func WithProducts(products ...catalog.Product) Option {
	return func(s *Store) error {
		for _, p := range products {
			if p.ID < 0 {
				return errors.NewValidationError("id", "must not be negative")
			}
			if !p.HasID() {
				s.nextID++
				p.ID = s.nextID
			} else if p.ID > s.nextID {
				s.nextID = p.ID
			}
			s.products[p.ID] = p
		}
		return nil
	}
}

// New creates an empty in-memory store.
func New(opts ...Option) (*Store, error) {
	s := &Store{products: make(map[int64]catalog.Product)}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, errors.NewConfigError("memory store", "applying option", err)
		}
	}
	return s, nil
}

// Count implements catalog.Store.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, errors.WrapStorage("count", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products), nil
}

// Create implements catalog.Store.
func (s *Store) Create(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	if err := ctx.Err(); err != nil {
		return catalog.Product{}, errors.WrapStorage("create", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	p.ID = s.nextID
	s.products[p.ID] = p
	return p, nil
}

// List implements catalog.Store.
func (s *Store) List(ctx context.Context) ([]catalog.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapStorage("list", err)
	}
	s.mu.RLock()
	out := make([]catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b catalog.Product) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

// Exists implements catalog.Store.
func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, errors.WrapStorage("exists", err)
	}
	s.mu.RLock()
	_, ok := s.products[id]
	s.mu.RUnlock()
	return ok, nil
}

// Get implements catalog.Store.
func (s *Store) Get(ctx context.Context, id int64) (catalog.Product, error) {
	if err := ctx.Err(); err != nil {
		return catalog.Product{}, errors.WrapStorage("get", err)
	}
	s.mu.RLock()
	p, ok := s.products[id]
	s.mu.RUnlock()
	if !ok {
		return catalog.Product{}, errors.NewProductNotFound(id)
	}
	return p, nil
}

// Update implements catalog.Store.
func (s *Store) Update(ctx context.Context, id int64, p catalog.Product) (catalog.Product, error) {
	if err := ctx.Err(); err != nil {
		return catalog.Product{}, errors.WrapStorage("update", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.products[id]
	if !ok {
		return catalog.Product{}, errors.NewProductNotFound(id)
	}
	existing.Name = p.Name
	existing.SKU = p.SKU
	existing.Category = p.Category
	s.products[id] = existing
	return existing, nil
}

// Delete implements catalog.Store.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapStorage("delete", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return errors.NewProductNotFound(id)
	}
	delete(s.products, id)
	return nil
}

// Ping always succeeds; it satisfies the readiness check used by the server.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
