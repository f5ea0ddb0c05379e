// Package cli is the pharmactl command tree.
package cli

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pharmacy/admin/internal/apiclient"
	"pharmacy/admin/internal/notify"
	"pharmacy/admin/internal/session"
	"pharmacy/admin/internal/validation"
)

var version = "dev"

// App holds what every command needs. Notifier defaults to the terminal.
type App struct {
	Client   *apiclient.Client
	Sessions session.Store
	Notifier notify.Notifier
	Logger   *zap.Logger

	validate *validation.Validator
	output   string
}

func NewRootCmd(app *App) *cobra.Command {
	if app.Logger == nil {
		app.Logger = zap.NewNop()
	}
	app.validate = validation.New()

	cmd := &cobra.Command{
		Use:           "pharmactl",
		Short:         "Pharmacy inventory administration",
		Long:          "pharmactl manages products, categories and stock transactions of the pharmacy admin API.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch app.output {
			case outputTable, outputJSON, outputYAML:
			default:
				return errors.Errorf("unknown output format %q (use table, json or yaml)", app.output)
			}
			if app.Notifier == nil {
				app.Notifier = notify.NewTerminal(cmd.ErrOrStderr())
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&app.output, "output", "o", outputTable, "Output format: table, json or yaml")

	cmd.AddCommand(newLoginCmd(app))
	cmd.AddCommand(newRegisterCmd(app))
	cmd.AddCommand(newLogoutCmd(app))
	cmd.AddCommand(newWhoamiCmd(app))
	cmd.AddCommand(newProductsCmd(app))
	cmd.AddCommand(newCategoriesCmd(app))
	cmd.AddCommand(newTransactionsCmd(app))
	cmd.AddCommand(newDashboardCmd(app))
	return cmd
}

// Run executes cmd with args and prints a failure the way the user should
// read it.
func Run(cmd *cobra.Command, args []string, stderr io.Writer) error {
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err != nil {
		_, _ = fmt.Fprintln(stderr, errorStyle.Render("error: ")+userMessage(err))
	}
	return err
}

func userMessage(err error) string {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) || errors.Is(err, apiclient.ErrUnauthorized) {
		return apiclient.Message(err)
	}
	return err.Error()
}
