// Package idempotency remembers the outcome of create requests keyed by the
// client-supplied Idempotency-Key header. It uses patrickmn/go-cache for
// TTL-based expiry.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/agentstation/retailchain/pkg/catalog"
)

// Header is the request header carrying the key.
const Header = "Idempotency-Key"

// DefaultTTL is how long a completed request is remembered.
const DefaultTTL = 24 * time.Hour

// Status of a key lookup.
type Status int

const (
	// Fresh means the key was unknown and is now reserved for the caller.
	Fresh Status = iota
	// InFlight means another request holding the key has not finished.
	InFlight
	// Replay means the key completed earlier and Record holds the result.
	Replay
	// Mismatch means the key was used earlier with a different body.
	Mismatch
)

// Record is a remembered request outcome.
type Record struct {
	Fingerprint string          `json:"fingerprint"`
	Product     catalog.Product `json:"product"`
	Done        bool            `json:"done"`
}

// Cache stores Records by key.
type Cache struct {
	store *gocache.Cache
	ttl   time.Duration
}

// New creates a cache that remembers keys for ttl and purges expired
// entries every cleanupInterval.
func New(ttl, cleanupInterval time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if cleanupInterval <= 0 {
		cleanupInterval = ttl / 2
	}
	return &Cache{
		store: gocache.New(ttl, cleanupInterval),
		ttl:   ttl,
	}
}

// Fingerprint hashes a request body.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Begin reserves key for a request whose body hashes to fingerprint, or
// reports why it cannot.
func (c *Cache) Begin(key, fingerprint string) (Status, Record) {
	pending := Record{Fingerprint: fingerprint}
	if err := c.store.Add(key, pending, gocache.DefaultExpiration); err == nil {
		return Fresh, pending
	}

	v, ok := c.store.Get(key)
	if !ok {
		// expired between Add and Get
		if err := c.store.Add(key, pending, gocache.DefaultExpiration); err == nil {
			return Fresh, pending
		}
		return InFlight, Record{}
	}
	rec := v.(Record)
	switch {
	case rec.Fingerprint != fingerprint:
		return Mismatch, rec
	case !rec.Done:
		return InFlight, rec
	default:
		return Replay, rec
	}
}

// Complete records the created product for key.
func (c *Cache) Complete(key, fingerprint string, product catalog.Product) {
	c.store.Set(key, Record{Fingerprint: fingerprint, Product: product, Done: true}, gocache.DefaultExpiration)
}

// Abandon releases a reservation so the client may retry with the same key.
func (c *Cache) Abandon(key string) {
	c.store.Delete(key)
}

// ItemCount returns the number of remembered keys.
func (c *Cache) ItemCount() int {
	return c.store.ItemCount()
}

// TTL returns how long keys are remembered.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}
