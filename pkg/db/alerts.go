package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// AlertRecord is one row of the alerts table. Decimals are kept as text and
// times as unix milliseconds; zero ExecutedAt means never executed.
type AlertRecord struct {
	ID            string
	Symbol        string
	Side          string
	Quantity      string
	Price         string
	StopLoss      string
	TakeProfit    string
	Exchange      string
	Strategy      string
	Timestamp     int64
	Status        string
	ExecutedPrice string
	ExecutedAt    int64
	OrderID       string
	Error         string
	Source        string
	SideDefaulted bool
	Raw           string
	CreatedAt     int64
	UpdatedAt     int64
}

// AlertFilter narrows ListAlerts. Empty fields match everything.
type AlertFilter struct {
	Status   string
	Exchange string
	Limit    int
}

// AlertCompletion carries the terminal fields written by FinishAlert.
type AlertCompletion struct {
	Status        string
	ExecutedPrice string
	ExecutedAt    int64
	OrderID       string
	Error         string
}

// AlertQueries groups the statements run against the alerts table.
type AlertQueries struct {
	db *sql.DB
}

const alertColumns = `id, symbol, side, quantity, price, stop_loss, take_profit, exchange, strategy, ts,
	status, executed_price, executed_at, order_id, error, source, side_defaulted, raw, created_at, updated_at`

// InsertAlert stores a new row. An existing or pruned id yields ErrDuplicate
// and leaves the table untouched.
func (q *AlertQueries) InsertAlert(ctx context.Context, r AlertRecord) error {
	now := time.Now().UnixMilli()
	if r.CreatedAt == 0 {
		r.CreatedAt = now
	}
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM alert_tombstones WHERE id = ?)
		ON CONFLICT(id) DO NOTHING
	`, r.ID, r.Symbol, r.Side, r.Quantity, r.Price, r.StopLoss, r.TakeProfit, r.Exchange, r.Strategy, r.Timestamp,
		r.Status, r.ExecutedPrice, r.ExecutedAt, r.OrderID, r.Error, r.Source, r.SideDefaulted, r.Raw, r.CreatedAt, now,
		r.ID)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

// GetAlert loads one row by id.
func (q *AlertQueries) GetAlert(ctx context.Context, id string) (AlertRecord, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	r, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return AlertRecord{}, ErrNotFound
	}
	if err != nil {
		return AlertRecord{}, fmt.Errorf("get alert: %w", err)
	}
	return r, nil
}

// AlertExists reports whether id has been stored, including pruned ids.
func (q *AlertQueries) AlertExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := q.db.QueryRowContext(ctx, `
		SELECT 1 FROM alerts WHERE id = ?
		UNION ALL
		SELECT 1 FROM alert_tombstones WHERE id = ?
		LIMIT 1
	`, id, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("alert exists: %w", err)
	}
	return true, nil
}

// FinishAlert moves a pending row to a terminal status. It returns false when
// the row was not pending (or does not exist); the caller decides which.
func (q *AlertQueries) FinishAlert(ctx context.Context, id string, c AlertCompletion) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE alerts
		SET status = ?, executed_price = ?, executed_at = ?, order_id = ?, error = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`, c.Status, c.ExecutedPrice, c.ExecutedAt, c.OrderID, c.Error, time.Now().UnixMilli(), id)
	if err != nil {
		return false, fmt.Errorf("finish alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finish alert: %w", err)
	}
	return n == 1, nil
}

// ListAlerts returns the newest rows first.
func (q *AlertQueries) ListAlerts(ctx context.Context, f AlertFilter) ([]AlertRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Exchange != "" {
		where = append(where, "exchange = ?")
		args = append(args, f.Exchange)
	}
	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC, created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []AlertRecord
	for rows.Next() {
		r, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountPendingBefore counts pending rows whose alert time is older than before (unix ms).
func (q *AlertQueries) CountPendingBefore(ctx context.Context, before int64) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alerts WHERE status = 'pending' AND ts < ?`, before).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count stale pending: %w", err)
	}
	return n, nil
}

// DeleteFinishedBefore removes terminal rows last updated before the cutoff
// (unix ms) and keeps a tombstone for each id. Pending rows are never pruned.
func (q *AlertQueries) DeleteFinishedBefore(ctx context.Context, before int64) (int64, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("prune alerts: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO alert_tombstones (id, removed_at)
		SELECT id, ? FROM alerts WHERE status <> 'pending' AND updated_at < ?
		ON CONFLICT(id) DO NOTHING
	`, time.Now().UnixMilli(), before); err != nil {
		return 0, fmt.Errorf("prune alerts: tombstones: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM alerts WHERE status <> 'pending' AND updated_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("prune alerts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune alerts: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("prune alerts: commit: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(s scanner) (AlertRecord, error) {
	var r AlertRecord
	err := s.Scan(&r.ID, &r.Symbol, &r.Side, &r.Quantity, &r.Price, &r.StopLoss, &r.TakeProfit, &r.Exchange,
		&r.Strategy, &r.Timestamp, &r.Status, &r.ExecutedPrice, &r.ExecutedAt, &r.OrderID, &r.Error, &r.Source,
		&r.SideDefaulted, &r.Raw, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}
