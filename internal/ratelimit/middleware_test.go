package ratelimit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge-gg/arcade-sub001/internal/source"
	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

type countingFetcher struct {
	calls atomic.Int32
}

func (f *countingFetcher) FetchPage(_ context.Context, _ source.Request) (source.Payload, error) {
	f.calls.Add(1)
	return source.Payload{Kind: source.PayloadFlat}, nil
}

func TestNewBudgetedFetcherValidation(t *testing.T) {
	client, _ := getTestRedisClient(t)
	tracker := newHourTracker(t, client, 10, 5)

	_, err := NewBudgetedFetcher(nil)
	require.Error(t, err)
	_, err = NewBudgetedFetcher(&BudgetedFetcherConfig{Tracker: tracker})
	require.Error(t, err)
	_, err = NewBudgetedFetcher(&BudgetedFetcherConfig{Fetcher: &countingFetcher{}})
	require.Error(t, err)

	f, err := NewBudgetedFetcher(&BudgetedFetcherConfig{Fetcher: &countingFetcher{}, Tracker: tracker})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxWait, f.maxWait)
}

func TestBudgetedFetcherSpendsUnitsPerKind(t *testing.T) {
	client, _ := getTestRedisClient(t)
	tracker := newHourTracker(t, client, 10, 5)
	inner := &countingFetcher{}
	f, err := NewBudgetedFetcher(&BudgetedFetcherConfig{Fetcher: inner, Tracker: tracker})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = f.FetchPage(ctx, source.Request{Project: "ls", Kind: types.KindProgress})
	require.NoError(t, err)
	_, err = f.FetchPage(ctx, source.Request{Project: "ls", Kind: types.KindActivity})
	require.NoError(t, err)

	usage, err := tracker.GetUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, CostProgress, usage.ReservedUsed)
	assert.Equal(t, CostActivity, usage.SharedUsed)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestBudgetedFetcherGivesUpAfterMaxWait(t *testing.T) {
	client, _ := getTestRedisClient(t)
	tracker := newHourTracker(t, client, 2, 1)
	inner := &countingFetcher{}
	f, err := NewBudgetedFetcher(&BudgetedFetcherConfig{
		Fetcher: inner,
		Tracker: tracker,
		MaxWait: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = f.FetchPage(context.Background(), source.Request{Project: "ls", Kind: types.KindProgress})
	assert.ErrorIs(t, err, ErrMaxWaitExceeded)
	assert.Zero(t, inner.calls.Load())
}

func TestBudgetedFetcherHonorsCancel(t *testing.T) {
	client, _ := getTestRedisClient(t)
	tracker := newHourTracker(t, client, 10, 5)
	f, err := NewBudgetedFetcher(&BudgetedFetcherConfig{Fetcher: &countingFetcher{}, Tracker: tracker})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.FetchPage(ctx, source.Request{Project: "ls", Kind: types.KindDefinitions})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCostRegistry(t *testing.T) {
	r := NewCostRegistry(&CostRegistryConfig{
		DefaultCost: 7,
		Overrides:   map[types.SourceKind]int{types.KindActivity: 4, types.KindProgress: 0},
	})

	assert.Equal(t, CostDefinitions, r.GetCost(types.KindDefinitions))
	assert.Equal(t, CostProgress, r.GetCost(types.KindProgress))
	assert.Equal(t, 4, r.GetCost(types.KindActivity))
	assert.Equal(t, 7, r.GetCost("unknown"))

	r.SetCost(types.KindDefinitions, 9)
	r.SetCost(types.KindProgress, -1)
	assert.Equal(t, 9, r.GetCost(types.KindDefinitions))
	assert.Equal(t, CostProgress, r.GetCost(types.KindProgress))

	assert.Equal(t, PriorityHigh, PriorityOf(types.KindProgress))
	assert.Equal(t, PriorityLow, PriorityOf(types.KindActivity))
}
