// Package products provides the product catalog commands for the
// retailchain CLI. They run the catalog service against the configured
// store directly, without the HTTP server.
package products

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/agentstation/retailchain/cmd/application"
	"github.com/agentstation/retailchain/internal/cmd/output"
	"github.com/agentstation/retailchain/pkg/catalog"
)

// NewCommand creates the products command with app dependencies.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "products",
		Aliases: []string{"product", "p"},
		Short:   "List and modify catalog products",
		Long: `Work with the product catalog in the store named by --database-url.

Changes made here are published to a local notifier only; clients connected
to a running server do not see them unless it shares the same process.`,
		Example: `  retailchain products list
  retailchain products get 1 -o yaml
  retailchain products create --name "Juice" --sku JUICE-1 --category Beverage
  retailchain products update 4 --name "Orange Juice" --sku JUICE-1 --category Beverage
  retailchain products delete 4 --database-url sqlite:catalog.db`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newListCommand(app))
	cmd.AddCommand(newGetCommand(app))
	cmd.AddCommand(newCreateCommand(app))
	cmd.AddCommand(newUpdateCommand(app))
	cmd.AddCommand(newDeleteCommand(app))

	return cmd
}

func newListCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all products (seeds an empty catalog)",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, format, err := prepare(cmd.Context(), app)
			if err != nil {
				return err
			}
			products, err := svc.ListProducts(cmd.Context())
			if err != nil {
				return err
			}
			return output.FormatProducts(cmd.OutOrStdout(), format, products)
		},
	}
}

func newGetCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			svc, format, err := prepare(cmd.Context(), app)
			if err != nil {
				return err
			}
			product, err := svc.GetProduct(cmd.Context(), id)
			if err != nil {
				return err
			}
			return output.FormatProduct(cmd.OutOrStdout(), format, product)
		},
	}
}

// fieldFlags are the product attributes shared by create and update.
type fieldFlags struct {
	name, sku, category string
}

func (f *fieldFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Product name")
	cmd.Flags().StringVar(&f.sku, "sku", "", "Stock keeping unit")
	cmd.Flags().StringVar(&f.category, "category", "", "Product category")
}

func (f *fieldFlags) product() catalog.Product {
	return catalog.NewProduct(f.name, f.sku, f.category)
}

func newCreateCommand(app application.Application) *cobra.Command {
	var fields fieldFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, format, err := prepare(cmd.Context(), app)
			if err != nil {
				return err
			}
			saved, err := svc.CreateProduct(cmd.Context(), fields.product())
			if err != nil {
				return err
			}
			return output.FormatProduct(cmd.OutOrStdout(), format, saved)
		},
	}
	fields.register(cmd)
	return cmd
}

func newUpdateCommand(app application.Application) *cobra.Command {
	var fields fieldFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace a product's name, SKU, and category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			svc, format, err := prepare(cmd.Context(), app)
			if err != nil {
				return err
			}
			saved, err := svc.UpdateProduct(cmd.Context(), id, fields.product())
			if err != nil {
				return err
			}
			return output.FormatProduct(cmd.OutOrStdout(), format, saved)
		},
	}
	fields.register(cmd)
	return cmd
}

func newDeleteCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a product",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			svc, _, err := prepare(cmd.Context(), app)
			if err != nil {
				return err
			}
			if err := svc.DeleteProduct(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted product %d\n", id)
			return nil
		},
	}
}

// prepare validates the output format before touching the store.
func prepare(ctx context.Context, app application.Application) (*catalog.Service, output.Format, error) {
	format, err := output.ParseFormat(app.OutputFormat())
	if err != nil {
		return nil, "", err
	}
	if format == "" {
		format = output.DetectFormat("")
	}
	svc, err := app.Catalog(ctx)
	if err != nil {
		return nil, "", err
	}
	return svc, format, nil
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid product id %q", arg)
	}
	return id, nil
}
