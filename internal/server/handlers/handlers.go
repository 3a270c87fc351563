// Package handlers provides HTTP request handlers for the catalog API.
package handlers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/retailchain/internal/server/idempotency"
	"github.com/agentstation/retailchain/internal/server/sse"
	ws "github.com/agentstation/retailchain/internal/server/websocket"
	"github.com/agentstation/retailchain/pkg/catalog"
	"github.com/agentstation/retailchain/pkg/notifier"
)

// ReadyFunc reports whether a dependency can serve requests.
type ReadyFunc func(ctx context.Context) error

// Deps are the collaborators the handlers need.
type Deps struct {
	Service        *catalog.Service
	Notifier       *notifier.Notifier
	Ready          ReadyFunc
	Idempotency    *idempotency.Cache
	WSHub          *ws.Hub
	SSEBroadcaster *sse.Broadcaster
	PathPrefix     string
	Version        string
	Logger         *zerolog.Logger
}

// Handlers provides access to all HTTP handlers.
type Handlers struct {
	service        *catalog.Service
	notifier       *notifier.Notifier
	ready          ReadyFunc
	idempotency    *idempotency.Cache
	wsHub          *ws.Hub
	sseBroadcaster *sse.Broadcaster
	prefix         string
	version        string
	logger         *zerolog.Logger
	startTime      time.Time
}

// New creates a new Handlers instance.
func New(deps Deps) *Handlers {
	if deps.Ready == nil {
		deps.Ready = func(context.Context) error { return nil }
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}
	return &Handlers{
		service:        deps.Service,
		notifier:       deps.Notifier,
		ready:          deps.Ready,
		idempotency:    deps.Idempotency,
		wsHub:          deps.WSHub,
		sseBroadcaster: deps.SSEBroadcaster,
		prefix:         deps.PathPrefix,
		version:        deps.Version,
		logger:         deps.Logger,
		startTime:      time.Now(),
	}
}
