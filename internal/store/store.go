package store

import (
	"context"

	"github.com/pkg/errors"

	"pharmacy/admin/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
)

type Repository interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	// DeleteCategory fails with ErrConflict while products still reference it.
	DeleteCategory(ctx context.Context, id string) error

	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	// DeleteProduct fails with ErrConflict while transactions still reference it.
	DeleteProduct(ctx context.Context, id string) error

	// ListTransactions returns newest first; limit < 1 means no limit.
	ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	// CreateTransaction stores tx and applies its stock effect in one step.
	// Line product refs are populated from the catalog.
	CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	// UpdateTransaction reverts the stored transaction's stock effect and
	// applies the new one; either both happen or neither.
	UpdateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error

	TotalStock(ctx context.Context) (int, error)
	CategoryDistribution(ctx context.Context) ([]domain.CategoryCount, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
}

// StockEffect returns the per-product stock deltas a transaction applies.
func StockEffect(tx domain.Transaction) []domain.StockAdjustment {
	sign := tx.Type.StockSign()
	byProduct := make(map[string]int, len(tx.Products))
	order := make([]string, 0, len(tx.Products))
	for _, line := range tx.Products {
		if _, seen := byProduct[line.Product.ID]; !seen {
			order = append(order, line.Product.ID)
		}
		byProduct[line.Product.ID] += sign * line.Quantity
	}
	adjustments := make([]domain.StockAdjustment, 0, len(order))
	for _, id := range order {
		adjustments = append(adjustments, domain.StockAdjustment{ProductID: id, Delta: byProduct[id]})
	}
	return adjustments
}

// Invert negates every adjustment, used to undo a stored transaction.
func Invert(adjustments []domain.StockAdjustment) []domain.StockAdjustment {
	out := make([]domain.StockAdjustment, len(adjustments))
	for i, adj := range adjustments {
		out[i] = domain.StockAdjustment{ProductID: adj.ProductID, Delta: -adj.Delta}
	}
	return out
}

// Merge folds adjustment lists into one delta per product, keeping first-seen order.
func Merge(lists ...[]domain.StockAdjustment) []domain.StockAdjustment {
	totals := map[string]int{}
	order := []string{}
	for _, list := range lists {
		for _, adj := range list {
			if _, seen := totals[adj.ProductID]; !seen {
				order = append(order, adj.ProductID)
			}
			totals[adj.ProductID] += adj.Delta
		}
	}
	out := make([]domain.StockAdjustment, 0, len(order))
	for _, id := range order {
		if totals[id] == 0 {
			continue
		}
		out = append(out, domain.StockAdjustment{ProductID: id, Delta: totals[id]})
	}
	return out
}
