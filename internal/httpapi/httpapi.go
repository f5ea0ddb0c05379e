package httpapi

import (
	"encoding/json"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"pharmacy/admin/internal/domain"
	"pharmacy/admin/internal/service"
	"pharmacy/admin/internal/store"
	"pharmacy/admin/internal/validation"
)

var (
	errMissingToken      = errors.New("missing bearer token")
	errAdminRegistration = errors.New("only an admin can register an admin account")
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	metrics       *Metrics
	logger        *zap.Logger
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		metrics:       NewMetrics(),
		logger:        logger,
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeMethodNotAllowed(w)
	})
	r.Use(a.metrics.instrument)

	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", a.metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/auth/register", a.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", a.handleLogin).Methods(http.MethodPost)

	anyRole := []string{domain.RoleAdmin, domain.RoleStaff}

	r.HandleFunc("/products", a.requireAuth(a.handleListProducts, anyRole...)).Methods(http.MethodGet)
	r.HandleFunc("/products", a.requireAuth(a.handleCreateProduct, domain.RoleAdmin)).Methods(http.MethodPost)
	r.HandleFunc("/products/{id}", a.requireAuth(a.handleUpdateProduct, domain.RoleAdmin)).Methods(http.MethodPut)
	r.HandleFunc("/products/{id}", a.requireAuth(a.handleDeleteProduct, domain.RoleAdmin)).Methods(http.MethodDelete)

	r.HandleFunc("/categories", a.requireAuth(a.handleListCategories, anyRole...)).Methods(http.MethodGet)
	r.HandleFunc("/categories", a.requireAuth(a.handleCreateCategory, domain.RoleAdmin)).Methods(http.MethodPost)
	r.HandleFunc("/categories/{id}", a.requireAuth(a.handleUpdateCategory, domain.RoleAdmin)).Methods(http.MethodPut)
	r.HandleFunc("/categories/{id}", a.requireAuth(a.handleDeleteCategory, domain.RoleAdmin)).Methods(http.MethodDelete)

	r.HandleFunc("/transactions", a.requireAuth(a.handleListTransactions, anyRole...)).Methods(http.MethodGet)
	r.HandleFunc("/transactions", a.requireAuth(a.handleCreateTransaction, domain.RoleAdmin)).Methods(http.MethodPost)
	r.HandleFunc("/transactions/{id}", a.requireAuth(a.handleUpdateTransaction, domain.RoleAdmin)).Methods(http.MethodPut)
	r.HandleFunc("/transactions/{id}", a.requireAuth(a.handleDeleteTransaction, domain.RoleAdmin)).Methods(http.MethodDelete)

	r.HandleFunc("/recent-transactions", a.requireAuth(a.handleRecentTransactions, anyRole...)).Methods(http.MethodGet)
	r.HandleFunc("/total-products-stock", a.requireAuth(a.handleTotalStock, anyRole...)).Methods(http.MethodGet)
	r.HandleFunc("/category-distribution", a.requireAuth(a.handleCategoryDistribution, anyRole...)).Methods(http.MethodGet)

	return a.withMiddleware(r)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := a.actorFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, service.ErrForbidden)
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func (a *API) actorFromRequest(r *http.Request) (domain.Actor, error) {
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
		return domain.Actor{}, errMissingToken
	}
	return a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// Anyone may register as Staff. Creating an Admin needs an Admin token.
	if req.Role == domain.RoleAdmin {
		actor, err := a.actorFromRequest(r)
		if err != nil && !errors.Is(err, errMissingToken) {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		if err != nil || actor.Role != domain.RoleAdmin {
			writeError(w, http.StatusForbidden, errAdminRegistration)
			return
		}
	}

	user, err := a.auth.Register(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "User registered successfully", "user": user})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.ProductListResponse{Products: products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteProduct(r.Context(), mux.Vars(r)["id"]); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Product deleted successfully"})
}

func (a *API) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := a.service.ListCategories(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (a *API) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req domain.CategoryInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	category, err := a.service.CreateCategory(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (a *API) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req domain.CategoryInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	category, err := a.service.UpdateCategory(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, category)
}

func (a *API) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteCategory(r.Context(), mux.Vars(r)["id"]); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Category deleted successfully"})
}

func (a *API) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := a.service.ListTransactions(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (a *API) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.TransactionInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tx, err := a.service.CreateTransaction(r.Context(), req)
	a.metrics.recordTransactionWrite("create", err)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (a *API) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.TransactionInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tx, err := a.service.UpdateTransaction(r.Context(), mux.Vars(r)["id"], req)
	a.metrics.recordTransactionWrite("update", err)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (a *API) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	err := a.service.DeleteTransaction(r.Context(), mux.Vars(r)["id"])
	a.metrics.recordTransactionWrite("delete", err)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Transaction deleted successfully"})
}

func (a *API) handleRecentTransactions(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.Dashboard(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.RecentTransactionsResponse{Transactions: summary.RecentTransactions})
}

func (a *API) handleTotalStock(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.Dashboard(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.TotalStockResponse{TotalStock: summary.TotalStock})
}

func (a *API) handleCategoryDistribution(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.Dashboard(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.CategoryDistributionResponse{Distribution: summary.Distribution})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		a.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(startedAt)),
		)
	})
}

// statusFor maps service, store and auth errors onto HTTP status codes.
func statusFor(err error) int {
	var fields validation.FieldErrors
	switch {
	case errors.As(err, &fields):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict), errors.Is(err, ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, store.ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		a.logger.Error("internal error", zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, err)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return errors.Wrap(err, "invalid request body")
	}
	return nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies never carry internal details; 4xx messages are user facing.
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	payload := map[string]any{
		"message": msg,
		"error":   msg,
	}
	var fields validation.FieldErrors
	if status < 500 && errors.As(err, &fields) {
		payload["fields"] = fields
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
