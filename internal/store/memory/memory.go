package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"pharmacy/admin/internal/domain"
	"pharmacy/admin/internal/store"
	"pharmacy/admin/internal/xid"
)

const defaultSeedAdminPassword = "admin123"

// SeedAdminEmail is the login of the account created by NewSeeded.
const SeedAdminEmail = "admin@pharmacy.local"

type Store struct {
	mu           sync.RWMutex
	categories   map[string]domain.Category
	products     map[string]domain.Product
	transactions map[string]domain.Transaction
	usersByEmail map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		categories:   make(map[string]domain.Category),
		products:     make(map[string]domain.Product),
		transactions: make(map[string]domain.Transaction),
		usersByEmail: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with demo categories, products and one Admin
// account. An empty adminPassword falls back to a dev default with a warning.
func NewSeeded(adminPassword string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if adminPassword == "" {
		log.Warn("[memory-store] using default dev admin password; set PHARMA_SEED_ADMIN_PASSWORD to override")
		adminPassword = defaultSeedAdminPassword
	}

	s := New()
	now := time.Now().UTC()

	for _, c := range []domain.Category{
		{ID: "cat-analgesics", Name: "Analgesics", Description: "Pain relief"},
		{ID: "cat-antibiotics", Name: "Antibiotics", Description: "Prescription antibacterials"},
		{ID: "cat-vitamins", Name: "Vitamins", Description: "Supplements"},
	} {
		c.CreatedAt, c.UpdatedAt = now, now
		s.categories[c.ID] = c
	}

	for _, p := range []struct {
		id, name, desc, category string
		price                    string
		stock                    int
	}{
		{"prd-paracetamol-500", "Paracetamol 500mg", "Strip of 10 tablets", "cat-analgesics", "25.50", 120},
		{"prd-ibuprofen-400", "Ibuprofen 400mg", "Strip of 10 tablets", "cat-analgesics", "42.00", 80},
		{"prd-amoxicillin-250", "Amoxicillin 250mg", "Strip of 10 capsules", "cat-antibiotics", "96.75", 40},
		{"prd-azithromycin-500", "Azithromycin 500mg", "Strip of 3 tablets", "cat-antibiotics", "118.00", 25},
		{"prd-vitamin-c-1000", "Vitamin C 1000mg", "Tube of 20 effervescent tablets", "cat-vitamins", "150.00", 60},
	} {
		category := s.categories[p.category]
		s.products[p.id] = domain.Product{
			ID:          p.id,
			Name:        p.name,
			Description: p.desc,
			Price:       decimal.RequireFromString(p.price),
			Stock:       p.stock,
			Category:    &domain.CategoryRef{ID: category.ID, Name: category.Name},
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash seed admin password")
	}
	s.usersByEmail[SeedAdminEmail] = domain.UserAccount{
		User: domain.User{
			ID:        "usr-admin",
			Username:  "admin",
			Email:     SeedAdminEmail,
			Role:      domain.RoleAdmin,
			CreatedAt: now,
		},
		PasswordHash: string(hash),
	}

	return s, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int {
		return strings.Compare(a.Name, b.Name)
	})
	return categories, nil
}

func (s *Store) GetCategory(_ context.Context, id string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, ok := s.categories[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &category, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.categories {
		if strings.EqualFold(existing.Name, category.Name) {
			return nil, store.ErrConflict
		}
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	now := time.Now().UTC()
	category.CreatedAt, category.UpdatedAt = now, now
	s.categories[category.ID] = category
	return &category, nil
}

func (s *Store) UpdateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.categories[category.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	category.CreatedAt = existing.CreatedAt
	category.UpdatedAt = time.Now().UTC()
	s.categories[category.ID] = category

	for id, p := range s.products {
		if p.Category != nil && p.Category.ID == category.ID {
			p.Category = &domain.CategoryRef{ID: category.ID, Name: category.Name}
			s.products[id] = p
		}
	}
	return &category, nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[id]; !ok {
		return store.ErrNotFound
	}
	for _, p := range s.products {
		if p.Category != nil && p.Category.ID == id {
			return store.ErrConflict
		}
	}
	delete(s.categories, id)
	return nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, cloneProduct(p))
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyProduct := cloneProduct(product)
	return &copyProduct, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkProduct(&product); err != nil {
		return nil, err
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	now := time.Now().UTC()
	product.CreatedAt, product.UpdatedAt = now, now
	s.products[product.ID] = product
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if err := s.checkProduct(&product); err != nil {
		return nil, err
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	updated := cloneProduct(product)
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	for _, tx := range s.transactions {
		for _, line := range tx.Products {
			if line.Product.ID == id {
				return store.ErrConflict
			}
		}
	}
	delete(s.products, id)
	return nil
}

// checkProduct validates invariants and resolves the category ref. Callers hold the write lock.
func (s *Store) checkProduct(product *domain.Product) error {
	if product.Name == "" || !product.Price.IsPositive() || product.Stock < 0 || product.Category == nil {
		return store.ErrInvalidInput
	}
	category, ok := s.categories[product.Category.ID]
	if !ok {
		return errors.Wrapf(store.ErrInvalidInput, "category %s not found", product.Category.ID)
	}
	product.Category = &domain.CategoryRef{ID: category.ID, Name: category.Name}
	return nil
}

func (s *Store) ListTransactions(_ context.Context, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs := make([]domain.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		txs = append(txs, cloneTransaction(tx))
	}
	slices.SortFunc(txs, func(a, b domain.Transaction) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyTx := cloneTransaction(tx)
	return &copyTx, nil
}

func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.populateLines(&tx); err != nil {
		return nil, err
	}
	if err := s.applyStock(store.StockEffect(tx)); err != nil {
		return nil, err
	}

	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	now := time.Now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now
	s.transactions[tx.ID] = cloneTransaction(tx)
	created := cloneTransaction(tx)
	return &created, nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.transactions[tx.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if err := s.populateLines(&tx); err != nil {
		return nil, err
	}
	adjustments := store.Merge(store.Invert(store.StockEffect(existing)), store.StockEffect(tx))
	if err := s.applyStock(adjustments); err != nil {
		return nil, err
	}

	tx.CreatedAt = existing.CreatedAt
	tx.CreatedBy = existing.CreatedBy
	tx.UpdatedAt = time.Now().UTC()
	s.transactions[tx.ID] = cloneTransaction(tx)
	updated := cloneTransaction(tx)
	return &updated, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.transactions[id]
	if !ok {
		return store.ErrNotFound
	}
	if err := s.applyStock(store.Invert(store.StockEffect(existing))); err != nil {
		return err
	}
	delete(s.transactions, id)
	return nil
}

// populateLines fills product refs from the catalog. Callers hold the write lock.
func (s *Store) populateLines(tx *domain.Transaction) error {
	tx.Products = slices.Clone(tx.Products)
	if !tx.Type.IsValid() || len(tx.Products) == 0 {
		return store.ErrInvalidInput
	}
	for i, line := range tx.Products {
		if line.Quantity < 1 {
			return store.ErrInvalidInput
		}
		product, ok := s.products[line.Product.ID]
		if !ok {
			return errors.Wrapf(store.ErrInvalidInput, "product %s not found", line.Product.ID)
		}
		tx.Products[i].Product = domain.ProductRef{ID: product.ID, Name: product.Name, Price: product.Price}
	}
	return nil
}

// applyStock checks every adjustment before mutating so a failure leaves stock untouched.
func (s *Store) applyStock(adjustments []domain.StockAdjustment) error {
	for _, adj := range adjustments {
		product, ok := s.products[adj.ProductID]
		if !ok {
			return errors.Wrapf(store.ErrInvalidInput, "product %s not found", adj.ProductID)
		}
		if product.Stock+adj.Delta < 0 {
			return errors.Wrapf(store.ErrInsufficientStock, "%s has %d in stock", product.Name, product.Stock)
		}
	}
	now := time.Now().UTC()
	for _, adj := range adjustments {
		product := s.products[adj.ProductID]
		product.Stock += adj.Delta
		product.UpdatedAt = now
		s.products[adj.ProductID] = product
	}
	return nil
}

func (s *Store) TotalStock(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, p := range s.products {
		total += p.Stock
	}
	return total, nil
}

func (s *Store) CategoryDistribution(_ context.Context) ([]domain.CategoryCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[string]int{}
	for _, p := range s.products {
		name := ""
		if p.Category != nil {
			name = p.Category.Name
		}
		counts[name]++
	}
	distribution := make([]domain.CategoryCount, 0, len(counts))
	for name, count := range counts {
		distribution = append(distribution, domain.CategoryCount{ID: name, Count: count})
	}
	slices.SortFunc(distribution, func(a, b domain.CategoryCount) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.ID, b.ID)
	})
	return distribution, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" || user.PasswordHash == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByEmail[email]; exists {
		return store.ErrConflict
	}
	user.Email = email
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByEmail[email] = user
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func cloneProduct(p domain.Product) domain.Product {
	if p.Category != nil {
		ref := *p.Category
		p.Category = &ref
	}
	return p
}

func cloneTransaction(tx domain.Transaction) domain.Transaction {
	tx.Products = slices.Clone(tx.Products)
	if tx.CreatedBy != nil {
		createdBy := *tx.CreatedBy
		tx.CreatedBy = &createdBy
	}
	return tx
}
