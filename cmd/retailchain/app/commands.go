package app

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/agentstation/retailchain/cmd/retailchain/cmd/products"
	"github.com/agentstation/retailchain/cmd/retailchain/cmd/serve"
)

// registerCommands registers all subcommands with the root command.
func (a *App) registerCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(a.NewServeCommand())
	rootCmd.AddCommand(a.NewProductsCommand())
	rootCmd.AddCommand(a.NewVersionCommand())
}

// NewServeCommand creates the serve command with app dependencies. The
// notifier is built lazily, so --buffer-size only has to land in the
// config before the command runs.
func (a *App) NewServeCommand() *cobra.Command {
	cmd := serve.NewCommand(a)
	cmd.GroupID = "core"
	cmd.Flags().IntVar(&a.config.BufferSize, "buffer-size", a.config.BufferSize,
		"Per-subscriber event queue length; the oldest event is dropped when full")
	return cmd
}

// NewProductsCommand creates the products command with app dependencies.
func (a *App) NewProductsCommand() *cobra.Command {
	cmd := products.NewCommand(a)
	cmd.GroupID = "core"
	return cmd
}

// NewVersionCommand creates the version command.
func (a *App) NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "retailchain version %s\n", a.version)
			fmt.Fprintf(out, "commit: %s\n", a.commit)
			fmt.Fprintf(out, "built: %s\n", a.date)
			fmt.Fprintf(out, "built by: %s\n", a.builtBy)
			fmt.Fprintf(out, "go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
