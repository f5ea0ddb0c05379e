package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pharmacy/admin/internal/apiclient"
	"pharmacy/admin/internal/composer"
	"pharmacy/admin/internal/domain"
	"pharmacy/admin/internal/session"
)

func newTransactionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"tx"},
		Short:   "Record and review stock transactions",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List transactions",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return app.listTransactions(cmd)
			},
		},
		newTransactionCreateCmd(app),
		newTransactionEditCmd(app),
		newDeleteCmd(app, "transaction", app.Client.DeleteTransaction),
	)
	return cmd
}

func (app *App) listTransactions(cmd *cobra.Command) error {
	txs, err := app.Client.ListTransactions(cmd.Context())
	if err != nil {
		return err
	}
	return app.emit(cmd, txs, func() string { return transactionTable(txs) })
}

func newTransactionCreateCmd(app *App) *cobra.Command {
	var (
		txType string
		lines  []string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Compose and save a new transaction",
		Example: "  pharmactl transactions create --type Sale --line prd-paracetamol-500:2 --line prd-ibuprofen-400:1",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := app.newComposer(cmd)
			defer c.Close()

			view := c.OpenForCreate(cmd.Context())
			if txType != "" {
				view = c.Dispatch(composer.TypeChanged{Type: domain.TransactionType(txType)})
			}
			for i, arg := range lines {
				if i > 0 {
					c.Dispatch(composer.LineAdded{})
				}
				var err error
				if view, err = fillLine(c, i, arg); err != nil {
					return err
				}
			}
			return app.finishComposer(cmd, c, view, dryRun)
		},
	}
	cmd.Flags().StringVar(&txType, "type", "", "Sale, Return or Purchase")
	cmd.Flags().StringArrayVar(&lines, "line", nil, "Line as PRODUCT_ID:QUANTITY (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the composed transaction without saving it")
	return cmd
}

func newTransactionEditCmd(app *App) *cobra.Command {
	var (
		txType   string
		lines    []string
		addLines []string
		removals []int
		dryRun   bool
	)
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change an existing transaction",
		Long:  "Loads the transaction and applies --line (replace all lines), then --remove-line, then --add-line.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			existing, err := findTransaction(ctx, app, args[0])
			if err != nil {
				return err
			}

			c := app.newComposer(cmd)
			defer c.Close()

			view := c.OpenForEdit(ctx, existing)
			if txType != "" {
				view = c.Dispatch(composer.TypeChanged{Type: domain.TransactionType(txType)})
			}
			if len(lines) > 0 {
				for i := len(view.Draft.Lines) - 1; i > 0; i-- {
					c.Dispatch(composer.LineRemoved{Index: i})
				}
				for i, arg := range lines {
					if i > 0 {
						c.Dispatch(composer.LineAdded{})
					}
					if view, err = fillLine(c, i, arg); err != nil {
						return err
					}
				}
			}
			// Highest index first so earlier removals do not shift later ones.
			sort.Sort(sort.Reverse(sort.IntSlice(removals)))
			for _, idx := range removals {
				if idx < 0 || idx >= len(view.Draft.Lines) {
					return errors.Errorf("--remove-line %d: transaction has %d lines", idx, len(view.Draft.Lines))
				}
				view = c.Dispatch(composer.LineRemoved{Index: idx})
			}
			for _, arg := range addLines {
				view = c.Dispatch(composer.LineAdded{})
				if view, err = fillLine(c, len(view.Draft.Lines)-1, arg); err != nil {
					return err
				}
			}
			return app.finishComposer(cmd, c, view, dryRun)
		},
	}
	cmd.Flags().StringVar(&txType, "type", "", "Sale, Return or Purchase")
	cmd.Flags().StringArrayVar(&lines, "line", nil, "Replace all lines; PRODUCT_ID:QUANTITY (repeatable)")
	cmd.Flags().StringArrayVar(&addLines, "add-line", nil, "Append a line; PRODUCT_ID:QUANTITY (repeatable)")
	cmd.Flags().IntSliceVar(&removals, "remove-line", nil, "Remove the line at this 0-based index (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the composed transaction without saving it")
	return cmd
}

func (app *App) newComposer(cmd *cobra.Command) *composer.Composer {
	return composer.New(composer.Deps{
		Products: app.Client,
		Writer:   app.Client,
		Identity: session.NewIdentity(app.Sessions),
		Notifier: app.Notifier,
		Refetch: func(context.Context) {
			if err := app.listTransactions(cmd); err != nil {
				app.Logger.Warn("refresh transaction list", zap.Error(err))
			}
		},
		ErrorMessage: apiclient.Message,
	}, app.Logger.Named("composer"))
}

// fillLine sets line i from PRODUCT_ID:QUANTITY. The quantity goes to the
// composer as typed so bad input shows up as a field error. A product id the
// catalog does not list is rejected outright.
func fillLine(c *composer.Composer, i int, arg string) (composer.View, error) {
	productID, rawQty := arg, ""
	if idx := strings.LastIndex(arg, ":"); idx >= 0 {
		productID, rawQty = arg[:idx], arg[idx+1:]
	}
	productID = strings.TrimSpace(productID)
	if productID != "" && !hasOption(c.View().Options, productID) {
		return composer.View{}, errors.Errorf("unknown product %s", productID)
	}
	c.Dispatch(composer.ProductSelected{Index: i, ProductID: productID})
	return c.Dispatch(composer.QuantityChanged{Index: i, Raw: rawQty}), nil
}

func hasOption(options []composer.Option, id string) bool {
	for _, o := range options {
		if o.Value == id {
			return true
		}
	}
	return false
}

func (app *App) finishComposer(cmd *cobra.Command, c *composer.Composer, view composer.View, dryRun bool) error {
	out := cmd.OutOrStdout()
	if len(view.Options) == 0 {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), dimStyle.Render("No products available to choose from."))
	}
	if dryRun || !view.Errors.Empty() {
		_, _ = fmt.Fprintln(out, renderDraft(view))
	}
	if !view.Errors.Empty() {
		return composer.ErrValidation
	}
	if dryRun {
		return nil
	}
	_, err := c.Submit(cmd.Context())
	return err
}

func findTransaction(ctx context.Context, app *App, id string) (domain.Transaction, error) {
	txs, err := app.Client.ListTransactions(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}
	for _, tx := range txs {
		if tx.ID == id {
			return tx, nil
		}
	}
	return domain.Transaction{}, errors.Errorf("transaction %s not found", id)
}

func renderDraft(view composer.View) string {
	title := "New transaction"
	if view.TransactionID != "" {
		title = "Transaction " + view.TransactionID
	}
	txType := string(view.Draft.Type)
	if txType == "" {
		txType = "-"
	}

	rows := make([][]string, 0, len(view.Draft.Lines))
	for i, line := range view.Draft.Lines {
		name, price := "-", "-"
		if line.Product != nil {
			name = line.Product.Name
			price = "₹" + line.Product.UnitPrice.StringFixed(2)
		}
		qty := line.Quantity.String()
		if qty == "" {
			qty = "-"
		}
		rows = append(rows, []string{strconv.Itoa(i), name, price, qty})
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(title) + "  " + dimStyle.Render("type "+txType) + "\n")
	b.WriteString(renderTable([]string{"#", "Product", "Unit price", "Quantity"}, rows) + "\n")
	b.WriteString(fmt.Sprintf("Amount: ₹%s", view.Amount.StringFixed(2)))
	if !view.Errors.Empty() {
		b.WriteString("\n" + fieldErrorLines(view.Errors))
	}
	return b.String()
}

func transactionTable(txs []domain.Transaction) string {
	rows := make([][]string, 0, len(txs))
	for _, tx := range txs {
		items := make([]string, 0, len(tx.Products))
		for _, line := range tx.Products {
			items = append(items, fmt.Sprintf("%s × %d", line.Product.Name, line.Quantity))
		}
		rows = append(rows, []string{
			tx.ID,
			string(tx.Type),
			strings.Join(items, ", "),
			"₹" + tx.Amount.StringFixed(2),
			tx.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return renderTable([]string{"ID", "Type", "Products", "Amount", "Date"}, rows)
}
