package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"pharmacy/admin/internal/domain"
)

type dashboardView struct {
	RecentTransactions []domain.Transaction   `json:"recentTransactions"`
	TotalStock         int                    `json:"totalStock"`
	Distribution       []domain.CategoryCount `json:"distribution"`
}

func newDashboardCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Recent transactions, total stock and products per category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var (
				view dashboardView
				err  error
			)
			if view.RecentTransactions, err = app.Client.RecentTransactions(ctx); err != nil {
				return err
			}
			if view.TotalStock, err = app.Client.TotalStock(ctx); err != nil {
				return err
			}
			if view.Distribution, err = app.Client.CategoryDistribution(ctx); err != nil {
				return err
			}
			return app.emit(cmd, view, func() string { return renderDashboard(view) })
		},
	}
}

func renderDashboard(view dashboardView) string {
	rows := make([][]string, 0, len(view.Distribution))
	for _, c := range view.Distribution {
		name := c.ID
		if name == "" {
			name = "Unknown"
		}
		rows = append(rows, []string{name, strconv.Itoa(c.Count)})
	}

	parts := []string{
		section("Total products in stock", fmt.Sprintf("%d units", view.TotalStock)),
		section("Products per category", renderTable([]string{"Category", "Products"}, rows)),
		section("Recent transactions", transactionTable(view.RecentTransactions)),
	}
	return strings.Join(parts, "\n\n")
}
