package composer

import (
	"strconv"
	"strings"

	"pharmacy/admin/internal/domain"
)

type quantityState uint8

const (
	quantityAbsent quantityState = iota
	quantityNumber
	quantityInvalid
)

// Quantity keeps what the user typed apart from what it parsed to, so an
// untouched field, a number and garbage input stay distinguishable.
type Quantity struct {
	state quantityState
	value int
	raw   string
}

// ParseQuantity maps "" (after trimming) to absent and anything that is not a
// base-10 integer to invalid.
func ParseQuantity(raw string) Quantity {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Quantity{}
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return Quantity{state: quantityInvalid, raw: raw}
	}
	return Quantity{state: quantityNumber, value: n, raw: raw}
}

func QuantityOf(n int) Quantity {
	return Quantity{state: quantityNumber, value: n, raw: strconv.Itoa(n)}
}

func (q Quantity) IsAbsent() bool  { return q.state == quantityAbsent }
func (q Quantity) IsInvalid() bool { return q.state == quantityInvalid }

// Value returns the parsed integer; ok is false when absent or invalid.
func (q Quantity) Value() (int, bool) {
	return q.value, q.state == quantityNumber
}

func (q Quantity) String() string {
	return q.raw
}

type LineItem struct {
	Product  *Product
	Quantity Quantity
}

// Complete reports whether the line has a product and a positive whole quantity.
func (l LineItem) Complete() bool {
	n, ok := l.Quantity.Value()
	return l.Product != nil && ok && n > 0
}

// Draft is the order being composed. Its methods return a modified copy and
// leave the receiver untouched.
type Draft struct {
	Type  domain.TransactionType
	Lines []LineItem
}

// NewDraft is the draft of a new transaction: no type and one blank line.
func NewDraft() Draft {
	return Draft{Lines: []LineItem{{}}}
}

// HydrateDraft rebuilds a draft from a stored transaction. Each product is
// resolved against the catalog; one the catalog does not know keeps the
// stored name and price with unknown stock.
func HydrateDraft(tx domain.Transaction, catalog *Catalog) Draft {
	d := Draft{Type: tx.Type, Lines: make([]LineItem, 0, len(tx.Products))}
	for _, line := range tx.Products {
		product, ok := catalog.Find(line.Product.ID)
		if !ok {
			product = &Product{ID: line.Product.ID, Name: line.Product.Name, UnitPrice: line.Product.Price}
		}
		d.Lines = append(d.Lines, LineItem{Product: product, Quantity: QuantityOf(line.Quantity)})
	}
	if len(d.Lines) == 0 {
		d.Lines = append(d.Lines, LineItem{})
	}
	return d
}

func (d Draft) clone() Draft {
	return Draft{Type: d.Type, Lines: append([]LineItem(nil), d.Lines...)}
}

func (d Draft) WithType(t domain.TransactionType) Draft {
	out := d.clone()
	out.Type = t
	return out
}

// AddLine appends a blank line.
func (d Draft) AddLine() Draft {
	out := d.clone()
	out.Lines = append(out.Lines, LineItem{})
	return out
}

// RemoveLine drops line i and keeps the order of the rest. Out of range is a no-op.
func (d Draft) RemoveLine(i int) Draft {
	if i < 0 || i >= len(d.Lines) {
		return d
	}
	out := Draft{Type: d.Type, Lines: make([]LineItem, 0, len(d.Lines)-1)}
	out.Lines = append(out.Lines, d.Lines[:i]...)
	out.Lines = append(out.Lines, d.Lines[i+1:]...)
	return out
}

// SetProduct replaces the product of line i. The quantity stays as typed.
func (d Draft) SetProduct(i int, p *Product) Draft {
	if i < 0 || i >= len(d.Lines) {
		return d
	}
	out := d.clone()
	out.Lines[i].Product = p
	return out
}

func (d Draft) SetQuantity(i int, raw string) Draft {
	if i < 0 || i >= len(d.Lines) {
		return d
	}
	out := d.clone()
	out.Lines[i].Quantity = ParseQuantity(raw)
	return out
}

// HasCompleteLine reports whether any line could be submitted as is.
func (d Draft) HasCompleteLine() bool {
	for _, l := range d.Lines {
		if l.Complete() {
			return true
		}
	}
	return false
}
