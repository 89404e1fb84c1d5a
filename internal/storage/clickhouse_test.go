package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge-gg/arcade-sub001/internal/config"
	"github.com/cartridge-gg/arcade-sub001/internal/normalize"
	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

// setupTestClickHouse connects and migrates, skipping when ClickHouse is not available
func setupTestClickHouse(t *testing.T) *ClickHouseDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, err := NewClickHouseDB(&config.ClickHouseConfig{
		Host:     "localhost",
		Port:     "9000",
		Database: "arcade",
		User:     "default",
		Password: os.Getenv("CLICKHOUSE_PASSWORD"),
	})
	if err != nil {
		t.Skipf("Skipping test - ClickHouse not available: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	_, err = RunClickHouseMigrations(context.Background(), db, "../../migrations/clickhouse")
	require.NoError(t, err)
	return db
}

func TestClickHouseOptions(t *testing.T) {
	opts := clickhouseOptions(&config.ClickHouseConfig{
		Host:     "ch.internal",
		Port:     "9440",
		Database: "arcade",
		User:     "reader",
		Password: "secret",
	})

	assert.Equal(t, []string{"ch.internal:9440"}, opts.Addr)
	assert.Equal(t, "arcade", opts.Auth.Database)
	assert.Equal(t, "reader", opts.Auth.Username)
	require.NotNil(t, opts.Compression)
	assert.Equal(t, connectTimeout, opts.DialTimeout)
}

func TestActivityRepository(t *testing.T) {
	db := setupTestClickHouse(t)
	repo := NewActivityRepository(db)
	ctx := testContext(t)

	project := "test-" + time.Now().Format("150405.000000")
	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond).UnixMilli()
	caller := normalize.MustAddress("0xa")

	events := []types.CallEvent{
		{ID: "e2", Caller: caller, Entrypoint: "attack", ExecutedAt: base + 1000},
		{ID: "e1", Caller: caller, Entrypoint: "move", ExecutedAt: base},
		{ID: "e3", Caller: caller, Entrypoint: "move", ExecutedAt: base + 2000},
	}
	require.NoError(t, repo.BatchInsert(ctx, project, events))
	require.NoError(t, repo.BatchInsert(ctx, project, events[:1]))

	page, err := repo.ListByProject(ctx, project, base, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "e1", page[0].ID)
	assert.Equal(t, "e2", page[1].ID)
	assert.Equal(t, caller, page[0].Caller)
	assert.Equal(t, base, page[0].ExecutedAt)

	rest, err := repo.ListByProject(ctx, project, base, 2, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)

	count, err := repo.CountByProject(ctx, project)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
}
