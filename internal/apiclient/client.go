// Package apiclient talks to the pharmacy admin API on behalf of pharmactl.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"pharmacy/admin/internal/domain"
	"pharmacy/admin/internal/session"
)

const genericFailure = "Something went wrong"

// ErrUnauthorized means the server rejected the session token. The session
// store has already been cleared when it is returned.
var ErrUnauthorized = errors.New("unauthorized: please log in again")

// APIError is a non-2xx response with the message the server sent back.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Message returns the text to show a user for err: the server's message for
// API errors, the generic fallback for anything else.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if errors.Is(err, ErrUnauthorized) {
		return ErrUnauthorized.Error()
	}
	return genericFailure
}

type Client struct {
	baseURL  string
	http     *http.Client
	sessions session.Store
	logger   *zap.Logger
}

func New(baseURL string, timeout time.Duration, sessions session.Store, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sessions == nil {
		sessions = session.NewMemoryStore()
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		sessions: sessions,
		logger:   logger,
	}
}

func (c *Client) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	var resp domain.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, &resp); err != nil {
		return domain.LoginResponse{}, err
	}
	if err := c.sessions.Set(ctx, session.Session{Token: resp.Token, User: resp.User}); err != nil {
		return domain.LoginResponse{}, errors.Wrap(err, "store session")
	}
	return resp, nil
}

func (c *Client) Register(ctx context.Context, req domain.RegisterRequest) (domain.User, error) {
	var resp struct {
		User domain.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/register", req, &resp); err != nil {
		return domain.User{}, err
	}
	return resp.User, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.sessions.Clear(ctx)
}

func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var resp domain.ProductListResponse
	if err := c.do(ctx, http.MethodGet, "/products", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Products, nil
}

func (c *Client) CreateProduct(ctx context.Context, in domain.ProductInput) (domain.Product, error) {
	var p domain.Product
	err := c.do(ctx, http.MethodPost, "/products", in, &p)
	return p, err
}

func (c *Client) UpdateProduct(ctx context.Context, id string, in domain.ProductInput) (domain.Product, error) {
	var p domain.Product
	err := c.do(ctx, http.MethodPut, "/products/"+url.PathEscape(id), in, &p)
	return p, err
}

func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/products/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var out []domain.Category
	err := c.do(ctx, http.MethodGet, "/categories", nil, &out)
	return out, err
}

func (c *Client) CreateCategory(ctx context.Context, in domain.CategoryInput) (domain.Category, error) {
	var cat domain.Category
	err := c.do(ctx, http.MethodPost, "/categories", in, &cat)
	return cat, err
}

func (c *Client) UpdateCategory(ctx context.Context, id string, in domain.CategoryInput) (domain.Category, error) {
	var cat domain.Category
	err := c.do(ctx, http.MethodPut, "/categories/"+url.PathEscape(id), in, &cat)
	return cat, err
}

func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/categories/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := c.do(ctx, http.MethodGet, "/transactions", nil, &out)
	return out, err
}

func (c *Client) CreateTransaction(ctx context.Context, in domain.TransactionInput) (domain.Transaction, error) {
	var tx domain.Transaction
	err := c.do(ctx, http.MethodPost, "/transactions", in, &tx)
	return tx, err
}

func (c *Client) UpdateTransaction(ctx context.Context, id string, in domain.TransactionInput) (domain.Transaction, error) {
	var tx domain.Transaction
	err := c.do(ctx, http.MethodPut, "/transactions/"+url.PathEscape(id), in, &tx)
	return tx, err
}

func (c *Client) DeleteTransaction(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/transactions/"+url.PathEscape(id), nil, nil)
}

func (c *Client) RecentTransactions(ctx context.Context) ([]domain.Transaction, error) {
	var resp domain.RecentTransactionsResponse
	if err := c.do(ctx, http.MethodGet, "/recent-transactions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Transactions, nil
}

func (c *Client) TotalStock(ctx context.Context) (int, error) {
	var resp domain.TotalStockResponse
	if err := c.do(ctx, http.MethodGet, "/total-products-stock", nil, &resp); err != nil {
		return 0, err
	}
	return resp.TotalStock, nil
}

func (c *Client) CategoryDistribution(ctx context.Context) ([]domain.CategoryCount, error) {
	var resp domain.CategoryDistributionResponse
	if err := c.do(ctx, http.MethodGet, "/category-distribution", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Distribution, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	c.logger.Debug("api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	if resp.StatusCode == http.StatusUnauthorized && path != "/auth/login" {
		if err := c.sessions.Clear(ctx); err != nil {
			c.logger.Warn("clear session after 401", zap.Error(err))
		}
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrapf(err, "decode %s %s response", method, path)
	}
	return nil
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	s, err := c.sessions.Get(ctx)
	if err != nil {
		return errors.Wrap(err, "read session")
	}
	if s != nil && s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
	return nil
}

// decodeError prefers the body's message, then its error, then the fallback.
func decodeError(status int, raw []byte) *APIError {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(raw, &body)

	msg := strings.TrimSpace(body.Message)
	if msg == "" {
		msg = strings.TrimSpace(body.Error)
	}
	if msg == "" {
		msg = genericFailure
	}
	return &APIError{Status: status, Message: msg}
}
