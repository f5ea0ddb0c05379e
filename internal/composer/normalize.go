package composer

import "pharmacy/admin/internal/domain"

type Identity interface {
	CurrentUserID() (string, bool)
}

// Normalize turns a validated draft into the wire payload. The caller
// validates first; lines without a product are skipped.
func Normalize(d Draft, identity Identity) domain.TransactionInput {
	in := domain.TransactionInput{
		Type:     d.Type,
		Products: make([]domain.TransactionLineInput, 0, len(d.Lines)),
		Amount:   Amount(d.Lines),
	}
	for _, l := range d.Lines {
		if l.Product == nil {
			continue
		}
		n, _ := l.Quantity.Value()
		in.Products = append(in.Products, domain.TransactionLineInput{Product: l.Product.ID, Quantity: n})
	}
	if identity != nil {
		if id, ok := identity.CurrentUserID(); ok {
			in.CreatedBy = &id
		}
	}
	return in
}
