package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pharmacy/admin/internal/dashboard"
	"pharmacy/admin/internal/domain"
	"pharmacy/admin/internal/store"
	"pharmacy/admin/internal/validation"
)

var ErrForbidden = errors.New("admin role required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo      store.Repository
	dashboard *dashboard.Engine
	validate  *validation.Validator
	logger    *zap.Logger
}

func New(repo store.Repository, dashboardEngine *dashboard.Engine, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dashboardEngine == nil {
		dashboardEngine = dashboard.NewEngine(repo, nil, 0, logger)
	}

	return &Service{
		repo:      repo,
		dashboard: dashboardEngine,
		validate:  validation.New(),
		logger:    logger,
	}
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, in domain.CategoryInput) (domain.Category, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}
	in = trimCategory(in)
	if err := s.validate.Struct(in); err != nil {
		return domain.Category{}, err
	}

	created, err := s.repo.CreateCategory(ctx, domain.Category{Name: in.Name, Description: in.Description})
	if err != nil {
		return domain.Category{}, err
	}
	s.dashboard.Invalidate(ctx)
	return *created, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id string, in domain.CategoryInput) (domain.Category, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}
	in = trimCategory(in)
	if err := s.validate.Struct(in); err != nil {
		return domain.Category{}, err
	}

	updated, err := s.repo.UpdateCategory(ctx, domain.Category{ID: id, Name: in.Name, Description: in.Description})
	if err != nil {
		return domain.Category{}, err
	}
	s.dashboard.Invalidate(ctx)
	return *updated, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return errors.Wrap(err, "category still has products")
		}
		return err
	}
	s.dashboard.Invalidate(ctx)
	return nil
}

func trimCategory(in domain.CategoryInput) domain.CategoryInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	return in
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, in domain.ProductInput) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	product, err := s.productFromInput(ctx, "", in)
	if err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.dashboard.Invalidate(ctx)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, in domain.ProductInput) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	product, err := s.productFromInput(ctx, id, in)
	if err != nil {
		return domain.Product{}, err
	}

	updated, err := s.repo.UpdateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.dashboard.Invalidate(ctx)
	return *updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return errors.Wrap(err, "product is referenced by transactions")
		}
		return err
	}
	s.dashboard.Invalidate(ctx)
	return nil
}

func (s *Service) productFromInput(ctx context.Context, id string, in domain.ProductInput) (domain.Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.TrimSpace(in.Category)
	if err := s.validate.Struct(in); err != nil {
		return domain.Product{}, err
	}

	category, err := s.repo.GetCategory(ctx, in.Category)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Product{}, validation.FieldErrors{"category": "Category not found"}
		}
		return domain.Product{}, err
	}

	return domain.Product{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Stock:       *in.Stock,
		Category:    &domain.CategoryRef{ID: category.ID, Name: category.Name},
	}, nil
}

func (s *Service) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return s.repo.ListTransactions(ctx, 0)
}

func (s *Service) CreateTransaction(ctx context.Context, in domain.TransactionInput) (domain.Transaction, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}
	tx, err := s.transactionFromInput(ctx, in, actor)
	if err != nil {
		return domain.Transaction{}, err
	}

	created, err := s.repo.CreateTransaction(ctx, tx)
	if err != nil {
		return domain.Transaction{}, err
	}
	s.logger.Info("transaction created",
		zap.String("id", created.ID),
		zap.String("type", created.Type.String()),
		zap.String("amount", created.Amount.StringFixed(2)),
		zap.String("actor", actor.UserID),
	)
	s.dashboard.Invalidate(ctx)
	return *created, nil
}

func (s *Service) UpdateTransaction(ctx context.Context, id string, in domain.TransactionInput) (domain.Transaction, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}
	tx, err := s.transactionFromInput(ctx, in, actor)
	if err != nil {
		return domain.Transaction{}, err
	}
	tx.ID = id

	updated, err := s.repo.UpdateTransaction(ctx, tx)
	if err != nil {
		return domain.Transaction{}, err
	}
	s.logger.Info("transaction updated", zap.String("id", updated.ID), zap.String("actor", actor.UserID))
	s.dashboard.Invalidate(ctx)
	return *updated, nil
}

func (s *Service) DeleteTransaction(ctx context.Context, id string) error {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteTransaction(ctx, id); err != nil {
		return err
	}
	s.logger.Info("transaction deleted", zap.String("id", id), zap.String("actor", actor.UserID))
	s.dashboard.Invalidate(ctx)
	return nil
}

// transactionFromInput validates in and resolves line products. The author is
// always the authenticated actor; a differing createdBy in the payload is ignored.
func (s *Service) transactionFromInput(ctx context.Context, in domain.TransactionInput, actor domain.Actor) (domain.Transaction, error) {
	if err := s.validate.Struct(in); err != nil {
		return domain.Transaction{}, err
	}
	if in.CreatedBy != nil && *in.CreatedBy != actor.UserID {
		s.logger.Warn("ignoring createdBy that differs from the authenticated user",
			zap.String("createdBy", *in.CreatedBy),
			zap.String("actor", actor.UserID),
		)
	}
	if in.Amount.IsNegative() {
		return domain.Transaction{}, validation.FieldErrors{"amount": "Amount cannot be negative"}
	}

	lines := make([]domain.TransactionLine, 0, len(in.Products))
	computed := decimal.Zero
	for i, line := range in.Products {
		product, err := s.repo.GetProduct(ctx, line.Product)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Transaction{}, validation.FieldErrors{
					productField(i): "Product not found",
				}
			}
			return domain.Transaction{}, err
		}
		lines = append(lines, domain.TransactionLine{
			Product:  domain.ProductRef{ID: product.ID, Name: product.Name, Price: product.Price},
			Quantity: line.Quantity,
		})
		computed = computed.Add(product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	amount := in.Amount
	if amount.IsZero() {
		amount = computed
	}

	var createdBy *string
	if actor.UserID != "" {
		userID := actor.UserID
		createdBy = &userID
	}
	return domain.Transaction{
		Type:      in.Type,
		Products:  lines,
		Amount:    amount,
		CreatedBy: createdBy,
	}, nil
}

func productField(i int) string {
	return "products[" + strconv.Itoa(i) + "].product"
}

func (s *Service) Dashboard(ctx context.Context) (domain.DashboardSummary, error) {
	return s.dashboard.Summary(ctx)
}
