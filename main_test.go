package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alert-executor/internal/alert"
	"alert-executor/internal/ledger"
	"alert-executor/pkg/config"
	"alert-executor/pkg/db"
)

func TestOpenLedger(t *testing.T) {
	database, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.ApplyMigrations(database))
	ctx := context.Background()

	tests := []struct {
		backend string
		want    any
	}{
		{"", &ledger.SQLite{}},
		{"sqlite", &ledger.SQLite{}},
		{"blob", &ledger.Blob{}},
	}
	for _, tt := range tests {
		t.Run("backend "+tt.backend, func(t *testing.T) {
			l, closeLedger, err := openLedger(ctx, &config.Config{LedgerBackend: tt.backend}, database)
			require.NoError(t, err)
			defer closeLedger()
			assert.IsType(t, tt.want, l)

			id := "open-" + tt.backend
			require.NoError(t, l.Store(ctx, alert.Alert{ID: id, Symbol: "BTCUSDT", Exchange: "binance",
				Strategy: "x", Timestamp: time.Now(), Status: alert.StatusPending}))
			got, err := l.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, alert.StatusPending, got.Status)
		})
	}

	_, _, err = openLedger(ctx, &config.Config{LedgerBackend: "mongo"}, database)
	assert.ErrorContains(t, err, "unknown LEDGER_BACKEND")
}
