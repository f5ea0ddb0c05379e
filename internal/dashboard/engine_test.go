package dashboard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy/admin/internal/domain"
)

type fakeSource struct {
	calls int
	limit int
	err   error
}

func (f *fakeSource) ListTransactions(_ context.Context, limit int) ([]domain.Transaction, error) {
	f.calls++
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return []domain.Transaction{{ID: "tx-1", Type: domain.TransactionPurchase}}, nil
}

func (f *fakeSource) TotalStock(context.Context) (int, error) { return 99, nil }

func (f *fakeSource) CategoryDistribution(context.Context) ([]domain.CategoryCount, error) {
	return []domain.CategoryCount{{ID: "Analgesics", Count: 3}}, nil
}

type mapCache struct {
	mu    sync.Mutex
	items map[string]domain.DashboardSummary
}

func (m *mapCache) Get(_ context.Context, key string) (*domain.DashboardSummary, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (m *mapCache) Set(_ context.Context, key string, value *domain.DashboardSummary, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = *value
	return nil
}

func (m *mapCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func TestSummaryAggregatesSource(t *testing.T) {
	src := &fakeSource{}
	e := NewEngine(src, nil, 0, nil)

	summary, err := e.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RecentLimit, src.limit)
	assert.Equal(t, 99, summary.TotalStock)
	assert.Len(t, summary.RecentTransactions, 1)
	assert.Equal(t, "Analgesics", summary.Distribution[0].ID)
	assert.False(t, summary.GeneratedAt.IsZero())
}

func TestSummaryServedFromCacheUntilInvalidated(t *testing.T) {
	src := &fakeSource{}
	e := NewEngine(src, &mapCache{items: map[string]domain.DashboardSummary{}}, time.Minute, nil)
	ctx := context.Background()

	_, err := e.Summary(ctx)
	require.NoError(t, err)
	_, err = e.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)

	e.Invalidate(ctx)
	_, err = e.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestSummaryPropagatesSourceError(t *testing.T) {
	boom := errors.New("db down")
	e := NewEngine(&fakeSource{err: boom}, nil, 0, nil)

	_, err := e.Summary(context.Background())
	assert.True(t, errors.Is(err, boom))
}
