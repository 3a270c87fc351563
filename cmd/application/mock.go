package application

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/agentstation/retailchain/pkg/catalog"
	"github.com/agentstation/retailchain/pkg/notifier"
)

// Mock provides a mock implementation of Application for testing.
// Each method can be customized by setting the corresponding function field.
// If a function field is nil, the method returns a default/zero value.
//
// Example Usage:
//
//	mock := &application.Mock{
//	    CatalogFunc: func(context.Context) (*catalog.Service, error) {
//	        return svc, nil
//	    },
//	    NotifierFunc: func() *notifier.Notifier { return n },
//	}
//	cmd := list.NewCommand(mock)
type Mock struct {
	CatalogFunc      func(ctx context.Context) (*catalog.Service, error)
	NotifierFunc     func() *notifier.Notifier
	ReadyFunc        func(ctx context.Context) error
	LoggerFunc       func() *zerolog.Logger
	OutputFormatFunc func() string
	VersionFunc      func() string
	CommitFunc       func() string
	DateFunc         func() string
	BuiltByFunc      func() string
}

// Catalog returns a catalog service using the mock function or nil.
func (m *Mock) Catalog(ctx context.Context) (*catalog.Service, error) {
	if m.CatalogFunc != nil {
		return m.CatalogFunc(ctx)
	}
	return nil, nil
}

// Notifier returns a notifier using the mock function or nil.
func (m *Mock) Notifier() *notifier.Notifier {
	if m.NotifierFunc != nil {
		return m.NotifierFunc()
	}
	return nil
}

// Ready reports readiness using the mock function or nil.
func (m *Mock) Ready(ctx context.Context) error {
	if m.ReadyFunc != nil {
		return m.ReadyFunc(ctx)
	}
	return nil
}

// Logger returns a logger using the mock function or a no-op logger.
func (m *Mock) Logger() *zerolog.Logger {
	if m.LoggerFunc != nil {
		return m.LoggerFunc()
	}
	logger := zerolog.Nop()
	return &logger
}

// OutputFormat returns output format using the mock function or "table".
func (m *Mock) OutputFormat() string {
	if m.OutputFormatFunc != nil {
		return m.OutputFormatFunc()
	}
	return "table"
}

// Version returns version using the mock function or "dev".
func (m *Mock) Version() string {
	if m.VersionFunc != nil {
		return m.VersionFunc()
	}
	return "dev"
}

// Commit returns commit using the mock function or "unknown".
func (m *Mock) Commit() string {
	if m.CommitFunc != nil {
		return m.CommitFunc()
	}
	return "unknown"
}

// Date returns date using the mock function or "unknown".
func (m *Mock) Date() string {
	if m.DateFunc != nil {
		return m.DateFunc()
	}
	return "unknown"
}

// BuiltBy returns builtBy using the mock function or "test".
func (m *Mock) BuiltBy() string {
	if m.BuiltByFunc != nil {
		return m.BuiltByFunc()
	}
	return "test"
}

// Ensure Mock implements Application at compile time.
var _ Application = (*Mock)(nil)
