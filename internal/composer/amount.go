package composer

import "github.com/shopspring/decimal"

// Amount is the sum of unit price times quantity over complete lines. A line
// missing a product or a positive quantity adds nothing.
func Amount(lines []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		if !l.Complete() {
			continue
		}
		n, _ := l.Quantity.Value()
		total = total.Add(l.Product.UnitPrice.Mul(decimal.NewFromInt(int64(n))))
	}
	return total
}
