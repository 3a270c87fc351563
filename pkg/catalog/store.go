package catalog

import "context"

// Store is the persistence contract the Service depends on.
//
// Each operation is atomic for a given id. Get, Update and Delete return an
// error satisfying errors.IsNotFound when the id does not exist; other
// failures are reported as *errors.StorageError.
type Store interface {
	// Count returns the number of stored products.
	Count(ctx context.Context) (int, error)

	// Create stores p under a newly assigned id, ignoring p.ID.
	Create(ctx context.Context, p Product) (Product, error)

	// List returns every stored product in ascending id order.
	List(ctx context.Context) ([]Product, error)

	// Exists reports whether a product with id is stored.
	Exists(ctx context.Context, id int64) (bool, error)

	// Get returns the product stored under id.
	Get(ctx context.Context, id int64) (Product, error)

	// Update replaces name, sku and category of the product stored under id.
	Update(ctx context.Context, id int64, p Product) (Product, error)

	// Delete removes the product stored under id.
	Delete(ctx context.Context, id int64) error
}

// Publisher receives change events after successful mutations.
// Implementations must not block and must not fail the caller.
type Publisher interface {
	Publish(event ChangeEvent)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ChangeEvent)

// Publish implements Publisher.
func (f PublisherFunc) Publish(event ChangeEvent) {
	f(event)
}
