package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"alert-executor/internal/alert"
	"alert-executor/pkg/db"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    quantity NUMERIC NOT NULL,
    price NUMERIC NOT NULL,
    stop_loss NUMERIC NOT NULL DEFAULT 0,
    take_profit NUMERIC NOT NULL DEFAULT 0,
    exchange TEXT NOT NULL,
    strategy TEXT NOT NULL,
    ts BIGINT NOT NULL,
    status TEXT NOT NULL,
    executed_price NUMERIC NOT NULL DEFAULT 0,
    executed_at BIGINT NOT NULL DEFAULT 0,
    order_id TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    side_defaulted BOOLEAN NOT NULL DEFAULT FALSE,
    raw JSONB,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_status_ts ON alerts(status, ts);
CREATE TABLE IF NOT EXISTS alert_tombstones (
    id TEXT PRIMARY KEY,
    removed_at BIGINT NOT NULL
);
`

// Numerics are read back as text so decimals keep their exact digits.
const pgColumns = `id, symbol, side, quantity::text, price::text, stop_loss::text, take_profit::text, exchange,
	strategy, ts, status, executed_price::text, executed_at, order_id, error, source, side_defaulted,
	COALESCE(raw::text, ''), created_at, updated_at`

// Postgres keeps alerts in a shared PostgreSQL database.
type Postgres struct {
	Pool *pgxpool.Pool
}

// NewPostgres connects and creates the alerts table if needed.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	l := &Postgres{Pool: pool}
	if err := l.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return l, nil
}

// Migrate creates the schema.
func (l *Postgres) Migrate(ctx context.Context) error {
	if _, err := l.Pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (l *Postgres) Close() {
	l.Pool.Close()
}

func (l *Postgres) Store(ctx context.Context, a alert.Alert) error {
	// A tombstone is only written once its row is gone; until then the
	// primary key rejects the insert.
	if pruned, err := l.tombstoned(ctx, a.ID); err != nil {
		return err
	} else if pruned {
		return ErrDuplicate
	}
	r := toRecord(a)
	now := time.Now().UnixMilli()
	var raw any
	if r.Raw != "" {
		raw = r.Raw
	}
	tag, err := l.Pool.Exec(ctx, `
		INSERT INTO alerts (id, symbol, side, quantity, price, stop_loss, take_profit, exchange, strategy, ts,
			status, executed_price, executed_at, order_id, error, source, side_defaulted, raw, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $19)
		ON CONFLICT (id) DO NOTHING
	`, r.ID, r.Symbol, r.Side, r.Quantity, r.Price, r.StopLoss, r.TakeProfit, r.Exchange, r.Strategy, r.Timestamp,
		r.Status, r.ExecutedPrice, r.ExecutedAt, r.OrderID, r.Error, r.Source, r.SideDefaulted, raw, now)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

func (l *Postgres) UpdateStatus(ctx context.Context, id string, u Update) (alert.Alert, error) {
	if err := checkUpdate(u); err != nil {
		return alert.Alert{}, err
	}
	c := completion(u)
	row := l.Pool.QueryRow(ctx, `
		UPDATE alerts
		SET status = $1, executed_price = $2, executed_at = $3, order_id = $4, error = $5, updated_at = $6
		WHERE id = $7 AND status = 'pending'
		RETURNING `+pgColumns,
		c.Status, c.ExecutedPrice, c.ExecutedAt, c.OrderID, c.Error, time.Now().UnixMilli(), id)
	updated, err := scanPG(row)
	if err == nil {
		return fromRecord(updated), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return alert.Alert{}, fmt.Errorf("finish alert: %w", err)
	}
	current, err := l.Get(ctx, id)
	if err != nil {
		return alert.Alert{}, err
	}
	return settle(current, u)
}

func (l *Postgres) IsDuplicate(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := l.Pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM alerts WHERE id = $1)
			OR EXISTS (SELECT 1 FROM alert_tombstones WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("alert exists: %w", err)
	}
	return exists, nil
}

func (l *Postgres) tombstoned(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := l.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM alert_tombstones WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check tombstone: %w", err)
	}
	return exists, nil
}

func (l *Postgres) Get(ctx context.Context, id string) (alert.Alert, error) {
	r, err := scanPG(l.Pool.QueryRow(ctx, `SELECT `+pgColumns+` FROM alerts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return alert.Alert{}, ErrNotFound
	}
	if err != nil {
		return alert.Alert{}, fmt.Errorf("get alert: %w", err)
	}
	return fromRecord(r), nil
}

func (l *Postgres) List(ctx context.Context, f Filter) ([]alert.Alert, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Exchange != "" {
		args = append(args, f.Exchange)
		where = append(where, fmt.Sprintf("exchange = $%d", len(args)))
	}
	query := `SELECT ` + pgColumns + ` FROM alerts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC, created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := l.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []alert.Alert
	for rows.Next() {
		r, err := scanPG(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, fromRecord(r))
	}
	return out, rows.Err()
}

func (l *Postgres) CountStalePending(ctx context.Context, before time.Time) (int, error) {
	var n int
	err := l.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM alerts WHERE status = 'pending' AND ts < $1`, before.UnixMilli()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count stale pending: %w", err)
	}
	return n, nil
}

func (l *Postgres) Prune(ctx context.Context, before time.Time) (int, error) {
	tag, err := l.Pool.Exec(ctx, `
		WITH pruned AS (
			DELETE FROM alerts WHERE status <> 'pending' AND updated_at < $1 RETURNING id
		)
		INSERT INTO alert_tombstones (id, removed_at)
		SELECT id, $2::bigint FROM pruned
		ON CONFLICT (id) DO NOTHING`, before.UnixMilli(), time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune alerts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanPG(row pgx.Row) (db.AlertRecord, error) {
	var r db.AlertRecord
	err := row.Scan(&r.ID, &r.Symbol, &r.Side, &r.Quantity, &r.Price, &r.StopLoss, &r.TakeProfit, &r.Exchange,
		&r.Strategy, &r.Timestamp, &r.Status, &r.ExecutedPrice, &r.ExecutedAt, &r.OrderID, &r.Error, &r.Source,
		&r.SideDefaulted, &r.Raw, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}
