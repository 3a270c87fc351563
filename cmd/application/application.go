// Package application provides the application interface for retailchain commands.
//
// The Application interface defines the contract between the application layer and
// command implementations, enabling dependency injection and testability.
//
// Usage in Commands:
//
//	func NewCommand(app application.Application) *cobra.Command {
//	    return &cobra.Command{
//	        RunE: func(cmd *cobra.Command, args []string) error {
//	            svc, err := app.Catalog(cmd.Context())
//	            if err != nil {
//	                return err
//	            }
//	            // ... use svc
//	            return nil
//	        },
//	    }
//	}
//
// Testing with Mocks:
//
//	mock := &application.Mock{
//	    CatalogFunc: func(ctx context.Context) (*catalog.Service, error) {
//	        return svc, nil
//	    },
//	}
//	cmd := NewCommand(mock)
package application

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/agentstation/retailchain/pkg/catalog"
	"github.com/agentstation/retailchain/pkg/notifier"
)

// Application provides the application interface that commands need.
// The App struct from cmd/retailchain/app implements this interface.
//
// Thread Safety: All methods must be safe for concurrent access.
type Application interface {
	// Catalog returns the shared catalog service, opening the configured
	// store on first use.
	Catalog(ctx context.Context) (*catalog.Service, error)

	// Notifier returns the notifier the catalog service publishes to.
	Notifier() *notifier.Notifier

	// Ready reports whether the backing store is reachable.
	Ready(ctx context.Context) error

	// Logger returns the configured logger instance.
	Logger() *zerolog.Logger

	// OutputFormat returns the configured output format (json, yaml, table).
	OutputFormat() string

	// Version returns the application version string.
	Version() string

	// Commit returns the git commit hash.
	Commit() string

	// Date returns the build date.
	Date() string

	// BuiltBy returns the build system identifier.
	BuiltBy() string
}
