package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alert-executor/internal/alert"
	"alert-executor/internal/ledger"
	"alert-executor/pkg/db"
	"alert-executor/pkg/exchanges/common"
)

func newLedger(t *testing.T) ledger.Ledger {
	t.Helper()
	database, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.ApplyMigrations(database))
	return ledger.NewSQLite(database)
}

func seed(t *testing.T, l ledger.Ledger, id string, ts time.Time) {
	t.Helper()
	require.NoError(t, l.Store(context.Background(), alert.Alert{
		ID: id, Symbol: "BTCUSDT", Side: common.SideBuy, Quantity: decimal.NewFromInt(1),
		Exchange: "binance", Strategy: "s", Timestamp: ts, Status: alert.StatusPending,
	}))
}

func TestStaleCheckCountsOldPending(t *testing.T) {
	l := newLedger(t)
	now := time.Now()
	seed(t, l, "old", now.Add(-48*time.Hour))
	seed(t, l, "new", now)

	s := NewScheduler(context.Background(), l, time.Hour, 24*time.Hour, nil)
	assert.Equal(t, 1, s.RunStaleCheckNow())
}

func TestPruneKeepsPending(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	seed(t, l, "done", time.Now())
	seed(t, l, "waiting", time.Now())
	_, err := l.UpdateStatus(ctx, "done", ledger.Update{Status: alert.StatusIgnored})
	require.NoError(t, err)

	s := NewScheduler(ctx, l, time.Hour, time.Hour, nil)
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.Equal(t, 1, s.RunPruneNow())

	_, err = l.Get(ctx, "done")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	_, err = l.Get(ctx, "waiting")
	assert.NoError(t, err)
}

func TestRegisterAll(t *testing.T) {
	s := NewScheduler(context.Background(), newLedger(t), time.Hour, time.Hour, nil)
	require.NoError(t, s.RegisterAll("@daily", "@every 1h"))
	assert.Len(t, s.Cron.Entries(), 2)
	assert.Error(t, s.RegisterAll("not a spec", ""))

	s.Start()
	s.Stop()
}
