package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// The admin front-end reads prices and amounts as JSON numbers.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	RoleAdmin = "Admin"
	RoleStaff = "Staff"
)

type TransactionType string

const (
	TransactionSale     TransactionType = "Sale"
	TransactionReturn   TransactionType = "Return"
	TransactionPurchase TransactionType = "Purchase"
)

// TransactionTypes lists the accepted types in display order.
var TransactionTypes = []TransactionType{TransactionSale, TransactionReturn, TransactionPurchase}

func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionSale, TransactionReturn, TransactionPurchase:
		return true
	}
	return false
}

// StockSign is the direction a transaction of this type moves stock.
func (t TransactionType) StockSign() int {
	switch t {
	case TransactionSale:
		return -1
	case TransactionReturn, TransactionPurchase:
		return 1
	}
	return 0
}

func (t TransactionType) String() string {
	return string(t)
}

type CategoryRef struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

type Category struct {
	ID          string    `json:"_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type CategoryInput struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description" validate:"required"`
}

type Product struct {
	ID          string          `json:"_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    *CategoryRef    `json:"category,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type ProductInput struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description" validate:"required"`
	Price       decimal.Decimal `json:"price" validate:"required,gt=0"`
	Stock       *int            `json:"stock" validate:"required,min=0"`
	Category    string          `json:"category" validate:"required"`
}

type ProductListResponse struct {
	Products []Product `json:"products"`
}

type ProductRef struct {
	ID    string          `json:"_id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type TransactionLine struct {
	Product  ProductRef `json:"product"`
	Quantity int        `json:"quantity"`
}

type Transaction struct {
	ID        string            `json:"_id"`
	Type      TransactionType   `json:"type"`
	Products  []TransactionLine `json:"products"`
	Amount    decimal.Decimal   `json:"amount"`
	CreatedBy *string           `json:"createdBy"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// TransactionLineInput is the wire form of one line: the product travels by id only.
type TransactionLineInput struct {
	Product  string `json:"product" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

type TransactionInput struct {
	Type      TransactionType        `json:"type" validate:"required,oneof=Sale Return Purchase"`
	Products  []TransactionLineInput `json:"products" validate:"required,min=1,dive"`
	Amount    decimal.Decimal        `json:"amount"`
	CreatedBy *string                `json:"createdBy"`
}

type StockAdjustment struct {
	ProductID string
	Delta     int
}

type User struct {
	ID        string    `json:"_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type UserAccount struct {
	User
	PasswordHash string
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required,oneof=Admin Staff"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type Actor struct {
	UserID string
	Email  string
	Role   string
}

type RecentTransactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
}

type TotalStockResponse struct {
	TotalStock int `json:"totalStock"`
}

// CategoryCount is one slice of the category distribution; ID holds the category name.
type CategoryCount struct {
	ID    string `json:"_id"`
	Count int    `json:"count"`
}

type CategoryDistributionResponse struct {
	Distribution []CategoryCount `json:"distribution"`
}

type DashboardSummary struct {
	RecentTransactions []Transaction   `json:"recentTransactions"`
	TotalStock         int             `json:"totalStock"`
	Distribution       []CategoryCount `json:"distribution"`
	GeneratedAt        time.Time       `json:"generatedAt"`
}
