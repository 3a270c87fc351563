// Package relay forwards catalog change events to external brokers. A relay
// is an ordinary notifier subscriber: it drains its own queue, and a failed
// write is logged and dropped.
package relay

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentstation/retailchain/pkg/catalog"
	"github.com/agentstation/retailchain/pkg/errors"
	"github.com/agentstation/retailchain/pkg/notifier"
)

// DefaultTopic receives product change events.
const DefaultTopic = "products"

// Header keys carried on every message.
const (
	HeaderEventID   = "event_id"
	HeaderEventType = "event_type"
)

// MessageWriter is the subset of *kafka.Writer the relay uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures a Kafka relay.
type KafkaConfig struct {
	Brokers      string // comma-separated host:port list
	Topic        string
	WriteTimeout time.Duration
}

// Kafka writes each change event to a topic keyed by product id, so all
// changes to one product land on one partition in order.
type Kafka struct {
	notifier     *notifier.Notifier
	sub          *notifier.Subscription
	writer       MessageWriter
	topic        string
	writeTimeout time.Duration
	tracer       trace.Tracer
	logger       *zerolog.Logger
}

// SplitBrokers parses a comma-separated broker list, skipping blanks.
func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// NewKafka subscribes to n and returns a relay writing to cfg.Brokers.
// Events published after NewKafka returns are relayed once Run starts.
func NewKafka(n *notifier.Notifier, cfg KafkaConfig, logger *zerolog.Logger) (*Kafka, error) {
	brokers := SplitBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, errors.NewConfigError("relay", "no kafka brokers configured", nil)
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newKafka(n, w, cfg, logger), nil
}

func newKafka(n *notifier.Notifier, w MessageWriter, cfg KafkaConfig, logger *zerolog.Logger) *Kafka {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Kafka{
		notifier:     n,
		sub:          n.Subscribe(),
		writer:       w,
		topic:        cfg.Topic,
		writeTimeout: cfg.WriteTimeout,
		tracer:       otel.Tracer("github.com/agentstation/retailchain/internal/relay"),
		logger:       logger,
	}
}

// Run relays events until ctx is done or the notifier closes, then
// unsubscribes and closes the writer. On cancel, events already queued are
// flushed within one write timeout; whatever is left is counted and logged.
func (k *Kafka) Run(ctx context.Context) error {
	k.logger.Info().Str("topic", k.topic).Str("subscriber_id", k.sub.ID()).Msg("Kafka relay started")
	defer func() {
		k.notifier.Unsubscribe(k.sub)
		if err := k.writer.Close(); err != nil {
			k.logger.Warn().Err(err).Msg("Closing kafka writer")
		}
		k.logger.Info().Uint64("dropped", k.sub.Dropped()).Msg("Kafka relay stopped")
	}()

	for {
		if ctx.Err() != nil {
			k.drain(ctx)
			return nil
		}
		select {
		case <-ctx.Done():
			k.drain(ctx)
			return nil
		case event, ok := <-k.sub.Events():
			if !ok {
				return nil
			}
			k.relay(ctx, event)
		}
	}
}

// drain relays the events already queued without waiting for new ones.
func (k *Kafka) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.writeTimeout)
	defer cancel()

	var flushed, unsent int
	for {
		select {
		case event, ok := <-k.sub.Events():
			if !ok {
				k.logDrain(flushed, unsent)
				return
			}
			if ctx.Err() == nil && k.relay(ctx, event) {
				flushed++
			} else {
				unsent++
			}
		default:
			k.logDrain(flushed, unsent)
			return
		}
	}
}

func (k *Kafka) logDrain(flushed, unsent int) {
	if unsent > 0 {
		k.logger.Warn().Int("flushed", flushed).Int("unsent", unsent).Msg("Kafka relay stopped with unsent events")
		return
	}
	if flushed > 0 {
		k.logger.Info().Int("flushed", flushed).Msg("Kafka relay flushed queued events")
	}
}

// relay writes one event and reports whether the broker accepted it.
func (k *Kafka) relay(ctx context.Context, event catalog.ChangeEvent) bool {
	ctx, span := k.tracer.Start(ctx, "relay.kafka.write",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", k.topic),
			attribute.Int64("product.id", event.Product.ID),
		),
	)
	defer span.End()

	msg, err := NewMessage(ctx, event)
	if err != nil {
		span.RecordError(err)
		k.logger.Error().Err(err).Int64("product_id", event.Product.ID).Msg("Encoding change event")
		return false
	}

	writeCtx, cancel := context.WithTimeout(ctx, k.writeTimeout)
	defer cancel()
	if err := k.writer.WriteMessages(writeCtx, msg); err != nil {
		span.RecordError(err)
		k.logger.Warn().
			Err(err).
			Str("event_type", event.Kind.String()).
			Int64("product_id", event.Product.ID).
			Msg("Kafka write failed, event dropped")
		return false
	}
	return true
}

// NewMessage encodes event with the product id as key and the event id,
// event type and trace context of ctx as headers.
func NewMessage(ctx context.Context, event catalog.ChangeEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	carrier := &headerCarrier{headers: []kafka.Header{
		{Key: HeaderEventID, Value: []byte(uuid.NewString())},
		{Key: HeaderEventType, Value: []byte(event.Kind.String())},
	}}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	return kafka.Message{
		Key:     []byte(strconv.FormatInt(event.Product.ID, 10)),
		Value:   value,
		Headers: carrier.headers,
		Time:    event.Timestamp,
	}, nil
}

// HeaderValue returns the first header named key, or "".
func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

type headerCarrier struct {
	headers []kafka.Header
}

func (c *headerCarrier) Get(key string) string {
	return HeaderValue(c.headers, key)
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func (c *headerCarrier) Set(key, value string) {
	for i := range c.headers {
		if c.headers[i].Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)
