package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/retailchain/pkg/catalog"
	"github.com/agentstation/retailchain/pkg/errors"
)

func TestStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s, err := New()
	require.NoError(t, err)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	milk, err := s.Create(ctx, catalog.Product{ID: 99, Name: "Milk 1L", SKU: "MILK-001", Category: "Dairy"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), milk.ID, "input id is ignored")

	got, err := s.Get(ctx, milk.ID)
	require.NoError(t, err)
	assert.Equal(t, milk, got)

	ok, err := s.Exists(ctx, milk.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	updated, err := s.Update(ctx, milk.ID, catalog.Product{ID: 7, Name: "Milk 2L", SKU: "MILK-002", Category: "Dairy"})
	require.NoError(t, err)
	assert.Equal(t, milk.ID, updated.ID, "id is immutable")
	assert.Equal(t, "Milk 2L", updated.Name)

	require.NoError(t, s.Delete(ctx, milk.ID))
	ok, err = s.Exists(ctx, milk.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s, err := New()
	require.NoError(t, err)

	_, err = s.Get(ctx, 42)
	assert.True(t, errors.IsNotFound(err))
	assert.EqualError(t, err, "Product not found with id 42")

	_, err = s.Update(ctx, 42, catalog.NewProduct("a", "b", "c"))
	assert.True(t, errors.IsNotFound(err))

	err = s.Delete(ctx, 42)
	assert.True(t, errors.IsNotFound(err))
}

func TestStoreIDsNeverReused(t *testing.T) {
	ctx := context.Background()
	s, err := New()
	require.NoError(t, err)

	a, err := s.Create(ctx, catalog.NewProduct("a", "A", "x"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, a.ID))

	b, err := s.Create(ctx, catalog.NewProduct("b", "B", "x"))
	require.NoError(t, err)
	assert.Greater(t, b.ID, a.ID)
}

func TestStoreListOrdered(t *testing.T) {
	ctx := context.Background()
	s, err := New(WithProducts(
		catalog.Product{ID: 10, Name: "ten", SKU: "T", Category: "x"},
		catalog.Product{ID: 3, Name: "three", SKU: "T", Category: "x"},
		catalog.NewProduct("eleven", "E", "x"),
	))
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int64{3, 10, 11}, []int64{list[0].ID, list[1].ID, list[2].ID})
}

func TestStoreCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := New()
	require.NoError(t, err)

	_, err = s.List(ctx)
	assert.True(t, errors.IsStorage(err))
	assert.ErrorIs(t, err, context.Canceled)

	var serr *errors.StorageError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "list", serr.Operation)
}

func TestStoreConcurrentCreates(t *testing.T) {
	ctx := context.Background()
	s, err := New()
	require.NoError(t, err)

	var wg sync.WaitGroup
	ids := make(chan int64, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := s.Create(ctx, catalog.NewProduct("p", "SKU", "c"))
			if err == nil {
				ids <- p.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, 100)
}
