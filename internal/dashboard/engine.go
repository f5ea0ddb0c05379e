package dashboard

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pharmacy/admin/internal/cache"
	"pharmacy/admin/internal/domain"
)

const (
	summaryCacheKey = "pharma:dashboard:summary"
	// RecentLimit is how many transactions the dashboard shows.
	RecentLimit = 5
)

// Source is the read side of the repository the dashboard aggregates.
type Source interface {
	ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error)
	TotalStock(ctx context.Context) (int, error)
	CategoryDistribution(ctx context.Context) ([]domain.CategoryCount, error)
}

type Engine struct {
	source   Source
	cache    cache.DashboardCache
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewEngine(source Source, cacheStore cache.DashboardCache, cacheTTL time.Duration, logger *zap.Logger) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopDashboardCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		source:   source,
		cache:    cacheStore,
		cacheTTL: cacheTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// Summary returns the cached summary when fresh, otherwise rebuilds and caches it.
// Cache failures are logged and never fail the request.
func (e *Engine) Summary(ctx context.Context) (domain.DashboardSummary, error) {
	cached, ok, err := e.cache.Get(ctx, summaryCacheKey)
	if err != nil {
		e.logger.Warn("dashboard cache read failed", zap.Error(err))
	}
	if err == nil && ok {
		return *cached, nil
	}

	recent, err := e.source.ListTransactions(ctx, RecentLimit)
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	total, err := e.source.TotalStock(ctx)
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	distribution, err := e.source.CategoryDistribution(ctx)
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	summary := domain.DashboardSummary{
		RecentTransactions: recent,
		TotalStock:         total,
		Distribution:       distribution,
		GeneratedAt:        e.now().UTC(),
	}
	if err := e.cache.Set(ctx, summaryCacheKey, &summary, e.cacheTTL); err != nil {
		e.logger.Warn("dashboard cache write failed", zap.Error(err))
	}
	return summary, nil
}

// Invalidate drops the cached summary after a write that changes stock or transactions.
func (e *Engine) Invalidate(ctx context.Context) {
	if err := e.cache.Delete(ctx, summaryCacheKey); err != nil {
		e.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}
