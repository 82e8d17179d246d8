package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, ApplyMigrations(database))
	return database
}

func TestNewFileDatabaseUsesWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "executor.db")
	database, err := New(path)
	require.NoError(t, err)
	defer database.Close()
	assert.Equal(t, path, database.Path())

	var mode string
	require.NoError(t, database.DB.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	_, err = New("")
	assert.Error(t, err)
}

func TestApplyMigrationsIsRepeatable(t *testing.T) {
	database := newTestDB(t)
	require.NoError(t, ApplyMigrations(database))

	ok, err := columnExists(database.DB, "alerts", "side_defaulted")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKVStore(t *testing.T) {
	kv := newTestDB(t).KV()
	ctx := context.Background()

	_, found, err := kv.Get(ctx, "trading_config")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, kv.Set(ctx, "trading_config", []byte(`{"mode":"AUTO"}`)))
	require.NoError(t, kv.Set(ctx, "trading_config", []byte(`{"mode":"MANUAL"}`)))

	got, found, err := kv.Get(ctx, "trading_config")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"mode":"MANUAL"}`, string(got))
}

func pendingRecord(id string, ts int64) AlertRecord {
	return AlertRecord{
		ID: id, Symbol: "BTCUSDT", Side: "BUY", Quantity: "1", Price: "100",
		StopLoss: "0", TakeProfit: "0", Exchange: "binance", Strategy: "Unknown",
		Timestamp: ts, Status: "pending", ExecutedPrice: "0", Source: "foreground",
	}
}

func TestAlertLifecycle(t *testing.T) {
	q := newTestDB(t).Alerts()
	ctx := context.Background()

	rec := pendingRecord("a1", 1000)
	rec.SideDefaulted = true
	rec.Raw = `{"pair":"BTCUSDT"}`
	require.NoError(t, q.InsertAlert(ctx, rec))
	assert.ErrorIs(t, q.InsertAlert(ctx, rec), ErrDuplicate)

	exists, err := q.AlertExists(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := q.GetAlert(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "pending", got.Status)
	assert.True(t, got.SideDefaulted)
	assert.Equal(t, `{"pair":"BTCUSDT"}`, got.Raw)

	done, err := q.FinishAlert(ctx, "a1", AlertCompletion{Status: "executed", ExecutedPrice: "99.5", ExecutedAt: 2000, OrderID: "42"})
	require.NoError(t, err)
	assert.True(t, done)

	again, err := q.FinishAlert(ctx, "a1", AlertCompletion{Status: "failed", Error: "late"})
	require.NoError(t, err)
	assert.False(t, again, "terminal rows must not move")

	got, err = q.GetAlert(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "executed", got.Status)
	assert.Equal(t, "99.5", got.ExecutedPrice)
	assert.Equal(t, int64(2000), got.ExecutedAt)
	assert.Equal(t, "42", got.OrderID)
	assert.Empty(t, got.Error)

	_, err = q.GetAlert(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPruneAndStale(t *testing.T) {
	q := newTestDB(t).Alerts()
	ctx := context.Background()

	require.NoError(t, q.InsertAlert(ctx, pendingRecord("old-pending", 1)))
	require.NoError(t, q.InsertAlert(ctx, pendingRecord("new-pending", time.Now().UnixMilli())))
	finished := pendingRecord("finished", 2)
	finished.Exchange = "kraken"
	require.NoError(t, q.InsertAlert(ctx, finished))
	_, err := q.FinishAlert(ctx, "finished", AlertCompletion{Status: "ignored"})
	require.NoError(t, err)

	all, err := q.ListAlerts(ctx, AlertFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "new-pending", all[0].ID)

	kraken, err := q.ListAlerts(ctx, AlertFilter{Exchange: "kraken"})
	require.NoError(t, err)
	require.Len(t, kraken, 1)

	limited, err := q.ListAlerts(ctx, AlertFilter{Status: "pending", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	stale, err := q.CountPendingBefore(ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, stale)

	n, err := q.DeleteFinishedBefore(ctx, time.Now().Add(time.Minute).UnixMilli())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err = q.ListAlerts(ctx, AlertFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
