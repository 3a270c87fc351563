package catalog

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentstation/retailchain/pkg/errors"
	"github.com/agentstation/retailchain/pkg/logging"
)

// Service applies catalog mutations to a Store and announces each committed
// mutation to a Publisher exactly once. Reads never publish.
type Service struct {
	store     Store
	publisher Publisher
	logger    *zerolog.Logger
	tracer    trace.Tracer
	seed      []Product
}

// NewService creates a Service over store that publishes to publisher.
// A nil publisher discards events.
func NewService(store Store, publisher Publisher, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.NewConfigError("catalog", "store must not be nil", nil)
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if publisher == nil {
		publisher = PublisherFunc(func(ChangeEvent) {})
	}
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    cfg.logger,
		tracer:    cfg.tracer,
		seed:      cfg.seed,
	}, nil
}

// ListProducts returns every product. An empty store is first populated
// with the seed records; seeding publishes nothing.
//
// The emptiness check and the inserts are separate store calls, so two
// concurrent first calls may both seed.
func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	ctx, span := s.tracer.Start(s.operation(ctx, "list"), "catalog.ListProducts")
	defer span.End()

	n, err := s.store.Count(ctx)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	if n == 0 && len(s.seed) > 0 {
		if err := s.seedStore(ctx); err != nil {
			return nil, s.fail(ctx, span, err)
		}
	}

	products, err := s.store.List(ctx)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	span.SetAttributes(attribute.Int("catalog.products", len(products)))
	return products, nil
}

func (s *Service) seedStore(ctx context.Context) error {
	for _, p := range s.seed {
		if _, err := s.store.Create(ctx, p.WithoutID()); err != nil {
			return err
		}
	}
	logging.FromContext(ctx).Info().Int("count", len(s.seed)).Msg("Seeded empty catalog")
	return nil
}

// GetProduct returns the product stored under id.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	ctx, span := s.tracer.Start(s.operation(ctx, "get"), "catalog.GetProduct",
		trace.WithAttributes(attribute.Int64("catalog.product_id", id)))
	defer span.End()

	p, err := s.store.Get(ctx, id)
	if err != nil {
		return Product{}, s.fail(ctx, span, notFoundAs(id, err))
	}
	return p, nil
}

// CreateProduct validates candidate, stores it under a new id and
// publishes a Created event carrying the saved record.
func (s *Service) CreateProduct(ctx context.Context, candidate Product) (Product, error) {
	ctx, span := s.tracer.Start(s.operation(ctx, "create"), "catalog.CreateProduct")
	defer span.End()

	if err := candidate.Validate(); err != nil {
		return Product{}, s.fail(ctx, span, err)
	}

	saved, err := s.store.Create(ctx, candidate.WithoutID())
	if err != nil {
		return Product{}, s.fail(ctx, span, err)
	}
	span.SetAttributes(attribute.Int64("catalog.product_id", saved.ID))

	s.publish(ctx, Created, saved)
	return saved, nil
}

// UpdateProduct replaces the name, SKU and category of the product stored
// under id and publishes an Updated event carrying the saved record.
func (s *Service) UpdateProduct(ctx context.Context, id int64, updated Product) (Product, error) {
	ctx, span := s.tracer.Start(s.operation(ctx, "update"), "catalog.UpdateProduct",
		trace.WithAttributes(attribute.Int64("catalog.product_id", id)))
	defer span.End()

	if err := updated.Validate(); err != nil {
		return Product{}, s.fail(ctx, span, err)
	}

	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return Product{}, s.fail(ctx, span, notFoundAs(id, err))
	}
	existing.Name = updated.Name
	existing.SKU = updated.SKU
	existing.Category = updated.Category

	saved, err := s.store.Update(ctx, id, existing)
	if err != nil {
		return Product{}, s.fail(ctx, span, notFoundAs(id, err))
	}

	s.publish(ctx, Updated, saved)
	return saved, nil
}

// DeleteProduct removes the product stored under id and publishes a
// Deleted event carrying the last snapshot read before removal.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(s.operation(ctx, "delete"), "catalog.DeleteProduct",
		trace.WithAttributes(attribute.Int64("catalog.product_id", id)))
	defer span.End()

	ok, err := s.store.Exists(ctx, id)
	if err != nil {
		return s.fail(ctx, span, err)
	}
	if !ok {
		return s.fail(ctx, span, errors.NewProductNotFound(id))
	}

	snapshot, err := s.store.Get(ctx, id)
	if err != nil {
		return s.fail(ctx, span, notFoundAs(id, err))
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return s.fail(ctx, span, notFoundAs(id, err))
	}

	s.publish(ctx, Deleted, snapshot)
	return nil
}

// operation tags the context logger with op, starting from the service
// logger when ctx carries none.
func (s *Service) operation(ctx context.Context, op string) context.Context {
	return logging.WithOperation(logging.EnsureLogger(ctx, s.logger), op)
}

func (s *Service) publish(ctx context.Context, kind ChangeKind, p Product) {
	logging.FromContext(ctx).Debug().
		Str("kind", kind.String()).
		Int64("product_id", p.ID).
		Msg("Publishing catalog change")
	s.publisher.Publish(NewChangeEvent(kind, p))
}

func (s *Service) fail(ctx context.Context, span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if errors.IsStorage(err) {
		logging.FromContext(ctx).Error().Err(err).Msg("Catalog store failure")
	}
	return err
}

// notFoundAs normalizes any not-found error from the store to the
// product-specific message clients see.
func notFoundAs(id int64, err error) error {
	if errors.IsNotFound(err) {
		return errors.NewProductNotFound(id)
	}
	return err
}
