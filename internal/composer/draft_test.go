package composer

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy/admin/internal/domain"
)

func stock(n int) *int { return &n }

func product(id, price string, available *int) *Product {
	return &Product{ID: id, Name: id, UnitPrice: decimal.RequireFromString(price), AvailableStock: available}
}

type staticIdentity struct {
	id string
	ok bool
}

func (s staticIdentity) CurrentUserID() (string, bool) { return s.id, s.ok }

func TestAmountSumsCompleteLines(t *testing.T) {
	p1 := product("p1", "10", stock(5))
	p2 := product("p2", "2.25", nil)

	lines := []LineItem{
		{Product: p1, Quantity: QuantityOf(2)},
		{Product: p2, Quantity: QuantityOf(4)},
		{Product: p1},
		{Quantity: QuantityOf(7)},
		{Product: p2, Quantity: ParseQuantity("x")},
		{Product: p1, Quantity: ParseQuantity("-2")},
		{Product: p2, Quantity: ParseQuantity("0")},
	}
	assert.True(t, decimal.RequireFromString("29").Equal(Amount(lines)))
}

func TestAmountIsZeroWithoutCompleteLines(t *testing.T) {
	assert.True(t, Amount(nil).IsZero())
	assert.True(t, Amount([]LineItem{{}, {Product: product("p", "5", nil)}, {Quantity: QuantityOf(3)}}).IsZero())
}

func TestAmountMatchesManualSum(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	catalog := []*Product{
		product("a", "25.50", nil),
		product("b", "0.10", nil),
		product("c", "118", nil),
	}

	for round := 0; round < 200; round++ {
		var lines []LineItem
		want := decimal.Zero
		for i := rng.Intn(6); i > 0; i-- {
			var line LineItem
			if rng.Intn(4) > 0 {
				line.Product = catalog[rng.Intn(len(catalog))]
			}
			if rng.Intn(4) > 0 {
				line.Quantity = QuantityOf(rng.Intn(50) + 1)
			}
			if n, ok := line.Quantity.Value(); ok && line.Product != nil {
				want = want.Add(line.Product.UnitPrice.Mul(decimal.NewFromInt(int64(n))))
			}
			lines = append(lines, line)
		}
		require.True(t, want.Equal(Amount(lines)), "round %d: want %s got %s", round, want, Amount(lines))
	}
}

func TestRemoveLinePreservesOrder(t *testing.T) {
	d := Draft{}
	for i := 0; i < 5; i++ {
		d = d.AddLine().SetQuantity(i, string(rune('1'+i)))
	}

	for i := 0; i < 5; i++ {
		out := d.RemoveLine(i)
		require.Len(t, out.Lines, 4)
		var got []int
		for _, l := range out.Lines {
			n, _ := l.Quantity.Value()
			got = append(got, n)
		}
		var want []int
		for j := 1; j <= 5; j++ {
			if j != i+1 {
				want = append(want, j)
			}
		}
		assert.Equal(t, want, got)
	}
	assert.Len(t, d.Lines, 5, "receiver must not change")
}

func TestRemoveLineOutOfRangeIsNoop(t *testing.T) {
	d := NewDraft().AddLine()
	assert.Len(t, d.RemoveLine(-1).Lines, 2)
	assert.Len(t, d.RemoveLine(2).Lines, 2)
}

func TestSetQuantityParsing(t *testing.T) {
	d := NewDraft().SetQuantity(0, "")
	assert.True(t, d.Lines[0].Quantity.IsAbsent())
	_, ok := d.Lines[0].Quantity.Value()
	assert.False(t, ok)
	assert.Equal(t, MsgQuantityRequired, Validate(d)[QuantityField(0)])

	d = d.SetQuantity(0, "12abc")
	assert.True(t, d.Lines[0].Quantity.IsInvalid())
	assert.Equal(t, "12abc", d.Lines[0].Quantity.String())
	assert.Equal(t, MsgQuantityWhole, Validate(d)[QuantityField(0)])

	d = d.SetQuantity(0, " 12 ")
	n, ok := d.Lines[0].Quantity.Value()
	require.True(t, ok)
	assert.Equal(t, 12, n)

	d = d.SetQuantity(0, "-3")
	assert.Equal(t, MsgQuantityPositive, Validate(d)[QuantityField(0)])
	d = d.SetQuantity(0, "0")
	assert.Equal(t, MsgQuantityPositive, Validate(d)[QuantityField(0)])
}

func TestSetProductKeepsQuantity(t *testing.T) {
	d := NewDraft().SetQuantity(0, "4").SetProduct(0, product("p1", "1", nil))
	n, ok := d.Lines[0].Quantity.Value()
	require.True(t, ok)
	assert.Equal(t, 4, n)
}

func TestStockBoundFollowsSelectedProduct(t *testing.T) {
	five := product("p5", "10", stock(5))
	three := product("p3", "10", stock(3))
	d := Draft{Type: domain.TransactionSale, Lines: []LineItem{{}}}.SetProduct(0, five)

	d = d.SetQuantity(0, "6")
	assert.Equal(t, MsgQuantityStock, Validate(d)[QuantityField(0)])

	d = d.SetQuantity(0, "5")
	assert.Empty(t, Validate(d))

	d = d.SetProduct(0, three)
	assert.Equal(t, MsgQuantityStock, Validate(d)[QuantityField(0)])
}

func TestStockBoundSkippedWithoutProductOrStock(t *testing.T) {
	d := NewDraft().SetQuantity(0, "999")
	errs := Validate(d)
	assert.Equal(t, MsgProductRequired, errs[ProductField(0)])
	_, hasQty := errs[QuantityField(0)]
	assert.False(t, hasQty)

	d = d.SetProduct(0, product("p", "1", nil))
	_, hasQty = Validate(d)[QuantityField(0)]
	assert.False(t, hasQty)
}

func TestValidateTypeAndOrderLevel(t *testing.T) {
	errs := Validate(NewDraft())
	assert.Equal(t, MsgTypeRequired, errs[FieldType])
	assert.Equal(t, MsgNoProducts, errs[FieldProducts])

	errs = Validate(Draft{Type: "Gift"})
	assert.Equal(t, MsgTypeInvalid, errs[FieldType])
	assert.Equal(t, MsgNoProducts, errs[FieldProducts])

	d := Draft{Type: domain.TransactionPurchase, Lines: []LineItem{{Product: product("p", "1", stock(0)), Quantity: QuantityOf(10)}}}
	errs = Validate(d)
	assert.Equal(t, MsgQuantityStock, errs[QuantityField(0)], "the stock bound applies to every type")
	_, hasOrderErr := errs[FieldProducts]
	assert.False(t, hasOrderErr)
}

func TestNormalizeBuildsWirePayload(t *testing.T) {
	d := Draft{
		Type:  domain.TransactionSale,
		Lines: []LineItem{{Product: product("p1", "10", stock(5)), Quantity: QuantityOf(2)}},
	}
	require.Empty(t, Validate(d))

	in := Normalize(d, staticIdentity{id: "usr-7", ok: true})
	assert.Equal(t, domain.TransactionSale, in.Type)
	assert.Equal(t, []domain.TransactionLineInput{{Product: "p1", Quantity: 2}}, in.Products)
	assert.True(t, decimal.NewFromInt(20).Equal(in.Amount))
	require.NotNil(t, in.CreatedBy)
	assert.Equal(t, "usr-7", *in.CreatedBy)

	in = Normalize(d, staticIdentity{})
	assert.Nil(t, in.CreatedBy)
	in = Normalize(d, nil)
	assert.Nil(t, in.CreatedBy)
}

func TestHydrateDraftResolvesCatalogEntries(t *testing.T) {
	catalog := NewCatalog([]domain.Product{
		{ID: "p1", Name: "Paracetamol", Price: decimal.RequireFromString("25.5"), Stock: 40},
	})
	tx := domain.Transaction{
		ID:   "tx-1",
		Type: domain.TransactionPurchase,
		Products: []domain.TransactionLine{
			{Product: domain.ProductRef{ID: "p1"}, Quantity: 3},
			{Product: domain.ProductRef{ID: "gone", Name: "Retired", Price: decimal.NewFromInt(4)}, Quantity: 1},
		},
	}

	d := HydrateDraft(tx, catalog)
	require.Len(t, d.Lines, 2)
	entry, ok := catalog.Find("p1")
	require.True(t, ok)
	assert.Same(t, entry, d.Lines[0].Product)
	n, _ := d.Lines[0].Quantity.Value()
	assert.Equal(t, 3, n)

	assert.Equal(t, "Retired", d.Lines[1].Product.Name)
	assert.Nil(t, d.Lines[1].Product.AvailableStock)
}

func TestReduceRevalidatesAndTracksStatus(t *testing.T) {
	catalog := NewCatalog([]domain.Product{{ID: "p1", Name: "A", Price: decimal.NewFromInt(10), Stock: 5}})
	s := Reduce(State{}, opened{catalog: catalog, draft: NewDraft()})
	assert.Equal(t, StatusEmpty, s.Status)
	assert.NotEmpty(t, s.Errors)

	s = Reduce(s, TypeChanged{Type: domain.TransactionSale})
	assert.Equal(t, StatusEditing, s.Status)
	s = Reduce(s, ProductSelected{Index: 0, ProductID: "p1"})
	s = Reduce(s, QuantityChanged{Index: 0, Raw: "2"})
	assert.Empty(t, s.Errors)

	s = Reduce(s, ProductSelected{Index: 0, ProductID: "missing"})
	assert.Equal(t, MsgProductRequired, s.Errors[ProductField(0)])
	s = Reduce(s, ProductSelected{Index: 0, ProductID: "p1"})

	s = Reduce(s, submitStarted{})
	assert.Equal(t, StatusSubmitting, s.Status)
	frozen := Reduce(s, LineAdded{})
	assert.Len(t, frozen.Draft.Lines, 1, "edits wait until the submit settles")

	s = Reduce(s, submitFailed{})
	assert.Equal(t, StatusEditing, s.Status)
	assert.Len(t, s.Draft.Lines, 1)

	s = Reduce(s, cancelled{})
	assert.Equal(t, State{Status: StatusClosed}, s)
}

func TestReduceRefusesToSubmitInvalidDraft(t *testing.T) {
	s := Reduce(State{}, opened{catalog: NewCatalog(nil), draft: NewDraft()})
	assert.Equal(t, StatusEmpty, Reduce(s, submitStarted{}).Status)
}

func TestEmptyCatalogHasNoOptions(t *testing.T) {
	var nilCatalog *Catalog
	assert.Empty(t, nilCatalog.Options())
	assert.Empty(t, NewCatalog(nil).Options())
	_, ok := NewCatalog(nil).Find("p1")
	assert.False(t, ok)
}

func TestCatalogOptionLabels(t *testing.T) {
	c := NewCatalog([]domain.Product{{ID: "p1", Name: "Paracetamol 500mg", Price: decimal.RequireFromString("25.50"), Stock: 1}})
	assert.Equal(t, []Option{{Value: "p1", Label: "Paracetamol 500mg (₹25.5)"}}, c.Options())
}
