package ledger

import (
	"context"
	"errors"
	"time"

	"alert-executor/internal/alert"
	"alert-executor/pkg/db"
)

// SQLite keeps alerts in the local database file.
type SQLite struct {
	q *db.AlertQueries
}

// NewSQLite returns a ledger over an already migrated database.
func NewSQLite(database *db.Database) *SQLite {
	return &SQLite{q: database.Alerts()}
}

func (l *SQLite) Store(ctx context.Context, a alert.Alert) error {
	err := l.q.InsertAlert(ctx, toRecord(a))
	if errors.Is(err, db.ErrDuplicate) {
		return ErrDuplicate
	}
	return err
}

func (l *SQLite) UpdateStatus(ctx context.Context, id string, u Update) (alert.Alert, error) {
	if err := checkUpdate(u); err != nil {
		return alert.Alert{}, err
	}
	if _, err := l.q.FinishAlert(ctx, id, completion(u)); err != nil {
		return alert.Alert{}, err
	}
	current, err := l.Get(ctx, id)
	if err != nil {
		return alert.Alert{}, err
	}
	return settle(current, u)
}

func (l *SQLite) IsDuplicate(ctx context.Context, id string) (bool, error) {
	return l.q.AlertExists(ctx, id)
}

func (l *SQLite) Get(ctx context.Context, id string) (alert.Alert, error) {
	r, err := l.q.GetAlert(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return alert.Alert{}, ErrNotFound
	}
	if err != nil {
		return alert.Alert{}, err
	}
	return fromRecord(r), nil
}

func (l *SQLite) List(ctx context.Context, f Filter) ([]alert.Alert, error) {
	rows, err := l.q.ListAlerts(ctx, db.AlertFilter{Status: string(f.Status), Exchange: f.Exchange, Limit: f.Limit})
	if err != nil {
		return nil, err
	}
	out := make([]alert.Alert, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromRecord(r))
	}
	return out, nil
}

func (l *SQLite) CountStalePending(ctx context.Context, before time.Time) (int, error) {
	return l.q.CountPendingBefore(ctx, before.UnixMilli())
}

func (l *SQLite) Prune(ctx context.Context, before time.Time) (int, error) {
	n, err := l.q.DeleteFinishedBefore(ctx, before.UnixMilli())
	return int(n), err
}
