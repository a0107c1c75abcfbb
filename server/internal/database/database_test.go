package database

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pikaboard/pikausage/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.Migrate())
}

func TestRecordAndListScans(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

	for i := range 3 {
		require.NoError(t, db.RecordScan(ctx, model.ScanDiagnostics{
			ID:        fmt.Sprintf("scan-%d", i),
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			Duration:  1500 * time.Millisecond,
			Files:     4,
			Sessions:  3,
			Events:    10 + i,
			Malformed: 1,
			NonUsage:  7,
			Unpriced:  map[string]int64{"other": 40, "mistral": 2},
			Errors:    []string{"stat session file x: permission denied"},
		}))
	}

	runs, err := db.ListScans(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	assert.Equal(t, "scan-2", runs[0].ID)
	assert.Equal(t, "scan-0", runs[2].ID)

	latest := runs[0]
	assert.True(t, latest.StartedAt.Equal(base.Add(2*time.Minute)))
	assert.Equal(t, int64(1500), latest.DurationMs)
	assert.Equal(t, 4, latest.Files)
	assert.Equal(t, 3, latest.Sessions)
	assert.Equal(t, 12, latest.Events)
	assert.Equal(t, 1, latest.Malformed)
	assert.Equal(t, 7, latest.NonUsage)
	assert.Equal(t, int64(42), latest.UnpricedTokens)
	assert.Equal(t, 1, latest.Errors)

	runs, err = db.ListScans(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestListScansEmpty(t *testing.T) {
	db := openTestDB(t)

	runs, err := db.ListScans(context.Background(), 5)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestRecordScanPrunes(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := range keepScans + 5 {
		require.NoError(t, db.RecordScan(ctx, model.ScanDiagnostics{
			ID:        fmt.Sprintf("scan-%04d", i),
			StartedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM scan_runs").Scan(&count))
	assert.Equal(t, keepScans, count)

	runs, err := db.ListScans(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, keepScans)
	assert.Equal(t, fmt.Sprintf("scan-%04d", keepScans+4), runs[0].ID)
	assert.Equal(t, "scan-0005", runs[len(runs)-1].ID)
}
