package composer

import (
	"fmt"
	"sort"
)

const (
	FieldType     = "type"
	FieldProducts = "products"
)

const (
	MsgTypeRequired     = "Type is required"
	MsgTypeInvalid      = "Type must be one of Sale, Return, Purchase"
	MsgProductRequired  = "Product is required"
	MsgQuantityRequired = "Quantity is required"
	MsgQuantityWhole    = "Quantity must be a whole number"
	MsgQuantityPositive = "Quantity must be a positive number"
	MsgQuantityStock    = "Quantity exceeds available stock"
	MsgNoProducts       = "At least one product must be selected"
)

// Errors maps a field path to its message. An empty map means the draft is valid.
type Errors map[string]string

func ProductField(i int) string  { return fmt.Sprintf("products.%d.product", i) }
func QuantityField(i int) string { return fmt.Sprintf("products.%d.quantity", i) }

func (e Errors) Empty() bool { return len(e) == 0 }

func (e Errors) Keys() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks every line independently and then the order as a whole.
func Validate(d Draft) Errors {
	errs := Errors{}

	switch {
	case d.Type == "":
		errs[FieldType] = MsgTypeRequired
	case !d.Type.IsValid():
		errs[FieldType] = MsgTypeInvalid
	}

	for i, line := range d.Lines {
		if line.Product == nil {
			errs[ProductField(i)] = MsgProductRequired
		}
		if msg := validateQuantity(line); msg != "" {
			errs[QuantityField(i)] = msg
		}
	}

	if !d.HasCompleteLine() {
		errs[FieldProducts] = MsgNoProducts
	}
	return errs
}

func validateQuantity(line LineItem) string {
	q := line.Quantity
	switch {
	case q.IsAbsent():
		return MsgQuantityRequired
	case q.IsInvalid():
		return MsgQuantityWhole
	}
	n, _ := q.Value()
	if n <= 0 {
		return MsgQuantityPositive
	}
	// Without a product there is nothing to compare against yet.
	if line.Product != nil && line.Product.AvailableStock != nil && n > *line.Product.AvailableStock {
		return MsgQuantityStock
	}
	return ""
}

