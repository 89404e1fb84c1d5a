package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getTestRedisClient returns a client backed by an in-process Redis
func getTestRedisClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

// newHourTracker uses an hour-long window so a test never straddles two windows
func newHourTracker(t *testing.T, client redis.Cmdable, total, reserved int) *BudgetTracker {
	t.Helper()
	tracker, err := NewBudgetTracker(&BudgetTrackerConfig{
		Redis:          client,
		TotalBudget:    total,
		ReservedBudget: reserved,
		WindowSize:     time.Hour,
		KeyTTL:         2 * time.Hour,
	})
	require.NoError(t, err)
	return tracker
}

func TestNewBudgetTracker(t *testing.T) {
	client, _ := getTestRedisClient(t)

	tests := []struct {
		name    string
		cfg     *BudgetTrackerConfig
		wantErr string
	}{
		{name: "nil config", cfg: nil, wantErr: "configuration is required"},
		{name: "nil redis client", cfg: &BudgetTrackerConfig{}, wantErr: "redis client is required"},
		{name: "defaults", cfg: &BudgetTrackerConfig{Redis: client}},
		{name: "custom", cfg: &BudgetTrackerConfig{Redis: client, TotalBudget: 10, ReservedBudget: 4}},
		{name: "negative total", cfg: &BudgetTrackerConfig{Redis: client, TotalBudget: -1}, wantErr: "total budget cannot be negative"},
		{name: "reserved exceeds total", cfg: &BudgetTrackerConfig{Redis: client, TotalBudget: 10, ReservedBudget: 11}, wantErr: "cannot exceed total budget"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker, err := NewBudgetTracker(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, tracker)
		})
	}
}

func TestNewBudgetTrackerDefaults(t *testing.T) {
	client, _ := getTestRedisClient(t)
	tracker, err := NewBudgetTracker(&BudgetTrackerConfig{Redis: client})
	require.NoError(t, err)

	assert.Equal(t, DefaultTotalBudget, tracker.totalBudget)
	assert.Equal(t, DefaultReservedBudget, tracker.reservedBudget)
	assert.Equal(t, DefaultTotalBudget-DefaultReservedBudget, tracker.sharedBudget)
	assert.Equal(t, DefaultWindowSize, tracker.GetWindowSize())
}

func TestTryConsumePools(t *testing.T) {
	client, _ := getTestRedisClient(t)
	tracker := newHourTracker(t, client, 10, 6)
	ctx := context.Background()

	allowed, _ := tracker.TryConsume(ctx, 4, PriorityLow)
	assert.True(t, allowed)

	allowed, wait := tracker.TryConsume(ctx, 1, PriorityLow)
	assert.False(t, allowed, "shared pool is exhausted")
	assert.Greater(t, wait, time.Duration(0))

	allowed, _ = tracker.TryConsume(ctx, 6, PriorityHigh)
	assert.True(t, allowed)

	allowed, _ = tracker.TryConsume(ctx, 1, PriorityHigh)
	assert.False(t, allowed, "total budget is exhausted")

	usage, err := tracker.GetUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, usage.TotalUsed)
	assert.Equal(t, 6, usage.ReservedUsed)
	assert.Equal(t, 4, usage.SharedUsed)

	utilization, err := tracker.TotalUtilization(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, utilization, 0.001)
}

func TestTryConsumeZeroUnits(t *testing.T) {
	client, _ := getTestRedisClient(t)
	tracker := newHourTracker(t, client, 1, 1)

	allowed, wait := tracker.TryConsume(context.Background(), 0, PriorityLow)
	assert.True(t, allowed)
	assert.Zero(t, wait)
}

func TestTryConsumeDeniesWhenRedisIsDown(t *testing.T) {
	client, mr := getTestRedisClient(t)
	tracker := newHourTracker(t, client, 10, 5)
	mr.Close()

	allowed, wait := tracker.TryConsume(context.Background(), 1, PriorityHigh)
	assert.False(t, allowed)
	assert.Greater(t, wait, time.Duration(0))
}

func TestAvailableBudget(t *testing.T) {
	client, _ := getTestRedisClient(t)
	tracker := newHourTracker(t, client, 10, 6)
	ctx := context.Background()

	high, err := tracker.AvailableBudget(ctx, PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, 6, high)

	allowed, _ := tracker.TryConsume(ctx, 3, PriorityLow)
	require.True(t, allowed)

	low, err := tracker.AvailableBudget(ctx, PriorityLow)
	require.NoError(t, err)
	assert.Equal(t, 1, low)
}

func TestRecordKindUsage(t *testing.T) {
	client, mr := getTestRedisClient(t)
	tracker := newHourTracker(t, client, 10, 6)
	ctx := context.Background()

	require.NoError(t, tracker.RecordKindUsage(ctx, "progress", 3))
	require.NoError(t, tracker.RecordKindUsage(ctx, "progress", 2))
	require.NoError(t, tracker.RecordKindUsage(ctx, "", 2))

	keys := mr.Keys()
	require.Len(t, keys, 1)
	got, err := mr.Get(keys[0])
	require.NoError(t, err)
	assert.Equal(t, "5", got)
}

func TestPriorityString(t *testing.T) {
	assert.Equal(t, "high", PriorityHigh.String())
	assert.Equal(t, "low", PriorityLow.String())
	assert.Equal(t, "unknown", Priority(9).String())
}
