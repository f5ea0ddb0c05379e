package memory

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"pharmacy/admin/internal/domain"
	"pharmacy/admin/internal/store"
)

func newSeeded(t *testing.T) *Store {
	t.Helper()
	s, err := NewSeeded("test-password", nil)
	require.NoError(t, err)
	return s
}

func stockOf(t *testing.T, s *Store, id string) int {
	t.Helper()
	p, err := s.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func saleOf(productID string, qty int) domain.Transaction {
	return domain.Transaction{
		Type:     domain.TransactionSale,
		Products: []domain.TransactionLine{{Product: domain.ProductRef{ID: productID}, Quantity: qty}},
		Amount:   decimal.NewFromInt(1),
	}
}

func TestSeededAdminPasswordIsHashed(t *testing.T) {
	s := newSeeded(t)

	user, err := s.GetUserByEmail(context.Background(), "ADMIN@pharmacy.local")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, user.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("test-password")))
}

func TestSaleDecrementsAndPopulatesLines(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	created, err := s.CreateTransaction(ctx, saleOf("prd-paracetamol-500", 3))
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Paracetamol 500mg", created.Products[0].Product.Name)
	assert.True(t, created.Products[0].Product.Price.Equal(decimal.RequireFromString("25.50")))
	assert.Equal(t, 117, stockOf(t, s, "prd-paracetamol-500"))
}

func TestSaleBeyondStockLeavesStockUntouched(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	tx := domain.Transaction{
		Type: domain.TransactionSale,
		Products: []domain.TransactionLine{
			{Product: domain.ProductRef{ID: "prd-ibuprofen-400"}, Quantity: 1},
			{Product: domain.ProductRef{ID: "prd-azithromycin-500"}, Quantity: 26},
		},
	}
	_, err := s.CreateTransaction(ctx, tx)
	assert.True(t, errors.Is(err, store.ErrInsufficientStock))
	assert.Equal(t, 80, stockOf(t, s, "prd-ibuprofen-400"))
	assert.Equal(t, 25, stockOf(t, s, "prd-azithromycin-500"))
}

func TestUpdateTransactionRevertsThenApplies(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	created, err := s.CreateTransaction(ctx, saleOf("prd-paracetamol-500", 10))
	require.NoError(t, err)

	edited := *created
	edited.Type = domain.TransactionPurchase
	edited.Products = []domain.TransactionLine{{Product: domain.ProductRef{ID: "prd-paracetamol-500"}, Quantity: 5}}
	updated, err := s.UpdateTransaction(ctx, edited)
	require.NoError(t, err)

	assert.Equal(t, domain.TransactionPurchase, updated.Type)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, 125, stockOf(t, s, "prd-paracetamol-500"))
}

func TestDeleteTransactionRevertsStock(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	created, err := s.CreateTransaction(ctx, saleOf("prd-vitamin-c-1000", 6))
	require.NoError(t, err)
	require.Equal(t, 54, stockOf(t, s, "prd-vitamin-c-1000"))

	require.NoError(t, s.DeleteTransaction(ctx, created.ID))
	assert.Equal(t, 60, stockOf(t, s, "prd-vitamin-c-1000"))

	_, err = s.GetTransaction(ctx, created.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestUnknownProductIsInvalid(t *testing.T) {
	s := newSeeded(t)

	_, err := s.CreateTransaction(context.Background(), saleOf("prd-missing", 1))
	assert.True(t, errors.Is(err, store.ErrInvalidInput))
}

func TestDeleteCategoryInUseConflicts(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	assert.True(t, errors.Is(s.DeleteCategory(ctx, "cat-vitamins"), store.ErrConflict))

	empty, err := s.CreateCategory(ctx, domain.Category{Name: "Dermatology", Description: "Skin care"})
	require.NoError(t, err)
	assert.NoError(t, s.DeleteCategory(ctx, empty.ID))
}

func TestRenamingCategoryUpdatesProductRefs(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	_, err := s.UpdateCategory(ctx, domain.Category{ID: "cat-vitamins", Name: "Supplements", Description: "Daily"})
	require.NoError(t, err)

	p, err := s.GetProduct(ctx, "prd-vitamin-c-1000")
	require.NoError(t, err)
	assert.Equal(t, "Supplements", p.Category.Name)
}

func TestListTransactionsNewestFirstWithLimit(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		created, err := s.CreateTransaction(ctx, saleOf("prd-paracetamol-500", 1))
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}

	all, err := s.ListTransactions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].CreatedAt.After(all[i-1].CreatedAt))
	}

	limited, err := s.ListTransactions(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestDashboardAggregates(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	total, err := s.TotalStock(ctx)
	require.NoError(t, err)
	assert.Equal(t, 120+80+40+25+60, total)

	distribution, err := s.CategoryDistribution(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.CategoryCount{
		{ID: "Analgesics", Count: 2},
		{ID: "Antibiotics", Count: 2},
		{ID: "Vitamins", Count: 1},
	}, distribution)
}

func TestDuplicateEmailConflicts(t *testing.T) {
	s := newSeeded(t)

	err := s.CreateUser(context.Background(), domain.UserAccount{
		User:         domain.User{Username: "other", Email: "admin@pharmacy.local", Role: domain.RoleStaff},
		PasswordHash: "x",
	})
	assert.True(t, errors.Is(err, store.ErrConflict))
}

func TestReturnedProductIsIsolatedFromStore(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	p, err := s.GetProduct(ctx, "prd-paracetamol-500")
	require.NoError(t, err)
	p.Category.Name = "mutated"

	again, err := s.GetProduct(ctx, "prd-paracetamol-500")
	require.NoError(t, err)
	assert.Equal(t, "Analgesics", again.Category.Name)
}
