package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"pharmacy/admin/internal/domain"
	"pharmacy/admin/internal/validation"
)

func newProductsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "products",
		Aliases: []string{"product"},
		Short:   "Manage products",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List products",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				products, err := app.Client.ListProducts(cmd.Context())
				if err != nil {
					return err
				}
				return app.emit(cmd, products, func() string { return productTable(products) })
			},
		},
		newProductWriteCmd(app, false),
		newProductWriteCmd(app, true),
		newDeleteCmd(app, "product", app.Client.DeleteProduct),
	)
	return cmd
}

type productFlags struct {
	name, description, price, category string
	stock                              int
}

func (f *productFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Product name")
	cmd.Flags().StringVar(&f.description, "description", "", "Product description")
	cmd.Flags().StringVar(&f.price, "price", "", "Unit price, e.g. 25.50")
	cmd.Flags().IntVar(&f.stock, "stock", 0, "Units in stock")
	cmd.Flags().StringVar(&f.category, "category", "", "Category id")
}

// apply copies the flags the user set onto in.
func (f *productFlags) apply(cmd *cobra.Command, in *domain.ProductInput) error {
	changed := cmd.Flags().Changed
	if changed("name") {
		in.Name = f.name
	}
	if changed("description") {
		in.Description = f.description
	}
	if changed("price") {
		price, err := decimal.NewFromString(f.price)
		if err != nil {
			return errors.Errorf("price %q is not a number", f.price)
		}
		in.Price = price
	}
	if changed("stock") {
		stock := f.stock
		in.Stock = &stock
	}
	if changed("category") {
		in.Category = f.category
	}
	return nil
}

func newProductWriteCmd(app *App, update bool) *cobra.Command {
	var flags productFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Add a product",
		Args:  cobra.NoArgs,
	}
	if update {
		cmd.Use = "update ID"
		cmd.Short = "Change a product; unset flags keep their current value"
		cmd.Args = cobra.ExactArgs(1)
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var in domain.ProductInput
		if update {
			current, err := findProduct(cmd, app, args[0])
			if err != nil {
				return err
			}
			stock := current.Stock
			in = domain.ProductInput{
				Name:        current.Name,
				Description: current.Description,
				Price:       current.Price,
				Stock:       &stock,
			}
			if current.Category != nil {
				in.Category = current.Category.ID
			}
		}
		if err := flags.apply(cmd, &in); err != nil {
			return err
		}
		if err := app.checkForm(cmd, in); err != nil {
			return err
		}

		var (
			saved domain.Product
			err   error
			msg   string
		)
		if update {
			saved, err = app.Client.UpdateProduct(ctx, args[0], in)
			msg = "Product updated successfully"
		} else {
			saved, err = app.Client.CreateProduct(ctx, in)
			msg = "Product added successfully"
		}
		if err != nil {
			return err
		}
		app.Notifier.Success(msg)
		return app.emit(cmd, saved, func() string { return productTable([]domain.Product{saved}) })
	}
	flags.bind(cmd)
	return cmd
}

func findProduct(cmd *cobra.Command, app *App, id string) (domain.Product, error) {
	products, err := app.Client.ListProducts(cmd.Context())
	if err != nil {
		return domain.Product{}, err
	}
	for _, p := range products {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Product{}, errors.Errorf("product %s not found", id)
}

func productTable(products []domain.Product) string {
	rows := make([][]string, 0, len(products))
	for _, p := range products {
		category := "-"
		if p.Category != nil {
			category = p.Category.Name
		}
		rows = append(rows, []string{p.ID, p.Name, category, "₹" + p.Price.StringFixed(2), strconv.Itoa(p.Stock)})
	}
	return renderTable([]string{"ID", "Name", "Category", "Price", "Stock"}, rows)
}

func newCategoriesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "categories",
		Aliases: []string{"category"},
		Short:   "Manage categories",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List categories",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				categories, err := app.Client.ListCategories(cmd.Context())
				if err != nil {
					return err
				}
				return app.emit(cmd, categories, func() string { return categoryTable(categories) })
			},
		},
		newCategoryWriteCmd(app, false),
		newCategoryWriteCmd(app, true),
		newDeleteCmd(app, "category", app.Client.DeleteCategory),
	)
	return cmd
}

func newCategoryWriteCmd(app *App, update bool) *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Add a category",
		Args:  cobra.NoArgs,
	}
	if update {
		cmd.Use = "update ID"
		cmd.Short = "Change a category; unset flags keep their current value"
		cmd.Args = cobra.ExactArgs(1)
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var in domain.CategoryInput
		if update {
			categories, err := app.Client.ListCategories(ctx)
			if err != nil {
				return err
			}
			found := false
			for _, c := range categories {
				if c.ID == args[0] {
					in = domain.CategoryInput{Name: c.Name, Description: c.Description}
					found = true
					break
				}
			}
			if !found {
				return errors.Errorf("category %s not found", args[0])
			}
		}
		if cmd.Flags().Changed("name") {
			in.Name = name
		}
		if cmd.Flags().Changed("description") {
			in.Description = description
		}
		if err := app.checkForm(cmd, in); err != nil {
			return err
		}

		var (
			saved domain.Category
			err   error
			msg   string
		)
		if update {
			saved, err = app.Client.UpdateCategory(ctx, args[0], in)
			msg = "Category updated successfully"
		} else {
			saved, err = app.Client.CreateCategory(ctx, in)
			msg = "Category added successfully"
		}
		if err != nil {
			return err
		}
		app.Notifier.Success(msg)
		return app.emit(cmd, saved, func() string { return categoryTable([]domain.Category{saved}) })
	}
	cmd.Flags().StringVar(&name, "name", "", "Category name")
	cmd.Flags().StringVar(&description, "description", "", "Category description")
	return cmd
}

func categoryTable(categories []domain.Category) string {
	rows := make([][]string, 0, len(categories))
	for _, c := range categories {
		rows = append(rows, []string{c.ID, c.Name, c.Description})
	}
	return renderTable([]string{"ID", "Name", "Description"}, rows)
}

// newDeleteCmd is the delete subcommand shared by every resource.
func newDeleteCmd(app *App, noun string, del func(ctx context.Context, id string) error) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: fmt.Sprintf("Delete a %s", noun),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := del(cmd.Context(), args[0]); err != nil {
				return err
			}
			app.Notifier.Success(validation.Label(noun) + " deleted successfully")
			return nil
		},
	}
}
