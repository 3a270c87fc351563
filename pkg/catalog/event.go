package catalog

import (
	"fmt"
	"time"
)

// ChangeKind is the closed set of mutations announced to subscribers.
type ChangeKind uint8

// Change kinds. The zero value is invalid so an unset kind is never
// mistaken for a real mutation.
const (
	Created ChangeKind = iota + 1
	Updated
	Deleted
)

// Wire names understood by catalog clients.
var kindNames = map[ChangeKind]string{
	Created: "CREATE",
	Updated: "UPDATE",
	Deleted: "DELETE",
}

// String returns the wire name of the kind.
func (k ChangeKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ChangeKind(%d)", uint8(k))
}

// Valid reports whether k is one of the defined kinds.
func (k ChangeKind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (k ChangeKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid change kind %d", uint8(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ChangeKind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown change kind %q", string(text))
}

// ChangeEvent describes one committed mutation. For Created and Updated,
// Product is the stored record after the mutation; for Deleted it is the
// last snapshot read before removal.
type ChangeEvent struct {
	Kind      ChangeKind `json:"type"`
	Product   Product    `json:"product"`
	Timestamp time.Time  `json:"timestamp"`
}

// NewChangeEvent stamps an event for the given mutation.
func NewChangeEvent(kind ChangeKind, product Product) ChangeEvent {
	return ChangeEvent{
		Kind:      kind,
		Product:   product,
		Timestamp: time.Now().UTC(),
	}
}
