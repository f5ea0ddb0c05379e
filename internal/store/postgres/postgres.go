package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"

	"pharmacy/admin/internal/domain"
	"pharmacy/admin/internal/store"
	"pharmacy/admin/internal/xid"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an already opened handle.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM categories
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	var c domain.Category
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM categories
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING created_at, updated_at
	`, category.ID, category.Name, category.Description).Scan(&category.CreatedAt, &category.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &category, nil
}

func (s *Store) UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}

	err := s.db.QueryRowContext(ctx, `
		UPDATE categories
		SET name = $2, description = $3, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, category.ID, category.Name, category.Description).Scan(&category.CreatedAt, &category.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &category, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	return s.deleteByID(ctx, `DELETE FROM categories WHERE id = $1`, id)
}

const productColumns = `
	p.id, p.name, p.description, p.price, p.stock, c.id, c.name, p.created_at, p.updated_at
`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	var ref domain.CategoryRef
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &ref.ID, &ref.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Product{}, err
	}
	p.Category = &ref
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products p
		JOIN categories c ON c.id = p.category_id
		ORDER BY p.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products p
		JOIN categories c ON c.id = p.category_id
		WHERE p.id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := checkProduct(product); err != nil {
		return nil, err
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, price, stock, category_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
	`, product.ID, product.Name, product.Description, product.Price, product.Stock, product.Category.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return nil, errors.Wrapf(store.ErrInvalidInput, "category %s not found", product.Category.ID)
		}
		return nil, err
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := checkProduct(product); err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, price = $4, stock = $5, category_id = $6, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Description, product.Price, product.Stock, product.Category.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, errors.Wrapf(store.ErrInvalidInput, "category %s not found", product.Category.ID)
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return s.deleteByID(ctx, `DELETE FROM products WHERE id = $1`, id)
}

func checkProduct(product domain.Product) error {
	if product.Name == "" || !product.Price.IsPositive() || product.Stock < 0 || product.Category == nil || product.Category.ID == "" {
		return store.ErrInvalidInput
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, amount, created_by, created_at, updated_at
		FROM transactions
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limitArg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0, 32)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachLines(ctx, s.db, txs); err != nil {
		return nil, err
	}
	return txs, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.getTransaction(ctx, s.db, id, false)
}

func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if !tx.Type.IsValid() || len(tx.Products) == 0 {
		return nil, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := applyStock(ctx, pgTx, store.StockEffect(tx)); err != nil {
		return nil, err
	}

	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO transactions (id, type, amount, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
	`, tx.ID, string(tx.Type), tx.Amount, tx.CreatedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return nil, errors.Wrap(store.ErrInvalidInput, "unknown author")
		}
		return nil, err
	}
	if err := insertLines(ctx, pgTx, tx); err != nil {
		return nil, err
	}

	created, err := s.getTransaction(ctx, pgTx, tx.ID, false)
	if err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if !tx.Type.IsValid() || len(tx.Products) == 0 {
		return nil, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	existing, err := s.getTransaction(ctx, pgTx, tx.ID, true)
	if err != nil {
		return nil, err
	}
	adjustments := store.Merge(store.Invert(store.StockEffect(*existing)), store.StockEffect(tx))
	if err := applyStock(ctx, pgTx, adjustments); err != nil {
		return nil, err
	}

	if _, err := pgTx.ExecContext(ctx, `
		UPDATE transactions
		SET type = $2, amount = $3, updated_at = now()
		WHERE id = $1
	`, tx.ID, string(tx.Type), tx.Amount); err != nil {
		return nil, err
	}
	if _, err := pgTx.ExecContext(ctx, `DELETE FROM transaction_lines WHERE transaction_id = $1`, tx.ID); err != nil {
		return nil, err
	}
	if err := insertLines(ctx, pgTx, tx); err != nil {
		return nil, err
	}

	updated, err := s.getTransaction(ctx, pgTx, tx.ID, false)
	if err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	existing, err := s.getTransaction(ctx, pgTx, id, true)
	if err != nil {
		return err
	}
	if err := applyStock(ctx, pgTx, store.Invert(store.StockEffect(*existing))); err != nil {
		return err
	}
	if _, err := pgTx.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id); err != nil {
		return err
	}
	return pgTx.Commit()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanTransaction(row interface{ Scan(...any) error }) (domain.Transaction, error) {
	var tx domain.Transaction
	var txType string
	var createdBy sql.NullString
	if err := row.Scan(&tx.ID, &txType, &tx.Amount, &createdBy, &tx.CreatedAt, &tx.UpdatedAt); err != nil {
		return domain.Transaction{}, err
	}
	tx.Type = domain.TransactionType(txType)
	if createdBy.Valid {
		tx.CreatedBy = &createdBy.String
	}
	return tx, nil
}

func (s *Store) getTransaction(ctx context.Context, q queryer, id string, forUpdate bool) (*domain.Transaction, error) {
	query := `
		SELECT id, type, amount, created_by, created_at, updated_at
		FROM transactions
		WHERE id = $1
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	tx, err := scanTransaction(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	txs := []domain.Transaction{tx}
	if err := s.attachLines(ctx, q, txs); err != nil {
		return nil, err
	}
	return &txs[0], nil
}

// attachLines loads lines for txs in one query, populating product refs from the catalog.
func (s *Store) attachLines(ctx context.Context, q queryer, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	ids := make([]string, len(txs))
	index := make(map[string]int, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
		index[tx.ID] = i
		txs[i].Products = []domain.TransactionLine{}
	}

	rows, err := q.QueryContext(ctx, `
		SELECT l.transaction_id, p.id, p.name, p.price, l.quantity
		FROM transaction_lines l
		JOIN products p ON p.id = l.product_id
		WHERE l.transaction_id = ANY($1)
		ORDER BY l.transaction_id, l.position
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var txID string
		var line domain.TransactionLine
		if err := rows.Scan(&txID, &line.Product.ID, &line.Product.Name, &line.Product.Price, &line.Quantity); err != nil {
			return err
		}
		i := index[txID]
		txs[i].Products = append(txs[i].Products, line)
	}
	return rows.Err()
}

func insertLines(ctx context.Context, pgTx *sql.Tx, tx domain.Transaction) error {
	for i, line := range tx.Products {
		if line.Quantity < 1 {
			return store.ErrInvalidInput
		}
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO transaction_lines (transaction_id, position, product_id, quantity)
			VALUES ($1, $2, $3, $4)
		`, tx.ID, i, line.Product.ID, line.Quantity)
		if err != nil {
			if isForeignKeyViolation(err) {
				return errors.Wrapf(store.ErrInvalidInput, "product %s not found", line.Product.ID)
			}
			return err
		}
	}
	return nil
}

// applyStock locks the affected product rows and applies every delta, or none.
func applyStock(ctx context.Context, pgTx *sql.Tx, adjustments []domain.StockAdjustment) error {
	if len(adjustments) == 0 {
		return nil
	}
	ids := make([]string, len(adjustments))
	for i, adj := range adjustments {
		ids[i] = adj.ProductID
	}

	rows, err := pgTx.QueryContext(ctx, `
		SELECT id, name, stock
		FROM products
		WHERE id = ANY($1)
		FOR UPDATE
	`, ids)
	if err != nil {
		return err
	}
	type stockRow struct {
		name  string
		stock int
	}
	current := make(map[string]stockRow, len(ids))
	for rows.Next() {
		var id string
		var row stockRow
		if err := rows.Scan(&id, &row.name, &row.stock); err != nil {
			_ = rows.Close()
			return err
		}
		current[id] = row
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, adj := range adjustments {
		row, ok := current[adj.ProductID]
		if !ok {
			return errors.Wrapf(store.ErrInvalidInput, "product %s not found", adj.ProductID)
		}
		if row.stock+adj.Delta < 0 {
			return errors.Wrapf(store.ErrInsufficientStock, "%s has %d in stock", row.name, row.stock)
		}
	}
	for _, adj := range adjustments {
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1
		`, adj.ProductID, adj.Delta); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) TotalStock(ctx context.Context) (int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(stock), 0) FROM products`).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) CategoryDistribution(ctx context.Context) ([]domain.CategoryCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.name, COUNT(*)
		FROM products p
		JOIN categories c ON c.id = p.category_id
		GROUP BY c.name
		ORDER BY COUNT(*) DESC, c.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	distribution := make([]domain.CategoryCount, 0, 16)
	for rows.Next() {
		var cc domain.CategoryCount
		if err := rows.Scan(&cc.ID, &cc.Count); err != nil {
			return nil, err
		}
		distribution = append(distribution, cc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return distribution, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || user.PasswordHash == "" {
		return store.ErrInvalidInput
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, user.ID, user.Username, user.Email, user.PasswordHash, user.Role)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, role, created_at
		FROM users
		WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email))).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) deleteByID(ctx context.Context, query string, id string) error {
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == codeUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	return pgCode(err) == codeForeignKeyViolation
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

var _ store.Repository = (*Store)(nil)
