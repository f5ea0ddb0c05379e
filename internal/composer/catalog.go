// Package composer builds stock transactions from a dynamic list of product
// lines: it keeps the draft, validates it after every change, derives the
// total and turns a valid draft into the payload the API accepts.
package composer

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pharmacy/admin/internal/domain"
)

// Product is the catalog view of a product. AvailableStock is nil when the
// stock is unknown, which switches the stock-bound check off.
type Product struct {
	ID             string
	Name           string
	UnitPrice      decimal.Decimal
	AvailableStock *int
}

// Option is one entry of a product picker.
type Option struct {
	Value string
	Label string
}

type ProductLister interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
}

// Catalog is the product snapshot of one form session. It never changes after load.
type Catalog struct {
	products []Product
	byID     map[string]int
}

// LoadCatalog fetches the product list once. A failed fetch is logged and
// yields an empty catalog.
func LoadCatalog(ctx context.Context, lister ProductLister, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	products, err := lister.ListProducts(ctx)
	if err != nil {
		logger.Error("load product catalog", zap.Error(err))
		return NewCatalog(nil)
	}
	logger.Debug("product catalog loaded", zap.Int("products", len(products)))
	return NewCatalog(products)
}

func NewCatalog(products []domain.Product) *Catalog {
	c := &Catalog{
		products: make([]Product, 0, len(products)),
		byID:     make(map[string]int, len(products)),
	}
	for _, p := range products {
		if _, dup := c.byID[p.ID]; dup {
			continue
		}
		stock := p.Stock
		c.byID[p.ID] = len(c.products)
		c.products = append(c.products, Product{
			ID:             p.ID,
			Name:           p.Name,
			UnitPrice:      p.Price,
			AvailableStock: &stock,
		})
	}
	return c
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.products)
}

// Products returns a copy of the snapshot in fetch order.
func (c *Catalog) Products() []Product {
	if c == nil {
		return nil
	}
	return append([]Product(nil), c.products...)
}

// Find returns the catalog entry for id. The pointer is shared by every line
// that selects the product and must not be modified.
func (c *Catalog) Find(id string) (*Product, bool) {
	if c == nil {
		return nil, false
	}
	i, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	return &c.products[i], true
}

func (c *Catalog) Options() []Option {
	if c == nil {
		return []Option{}
	}
	out := make([]Option, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, Option{Value: p.ID, Label: p.Label()})
	}
	return out
}

func (p Product) Label() string {
	return fmt.Sprintf("%s (₹%s)", p.Name, p.UnitPrice.String())
}
