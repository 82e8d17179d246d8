// Package ledger is the durable record of every alert and its lifecycle.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"alert-executor/internal/alert"
)

var (
	ErrNotFound          = errors.New("alert not found")
	ErrDuplicate         = errors.New("alert already recorded")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Update carries the fields written when an alert leaves pending.
type Update struct {
	Status        alert.Status
	ExecutedPrice decimal.NullDecimal
	ExecutedAt    *time.Time
	OrderID       string
	Error         string
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Status   alert.Status
	Exchange string
	Limit    int
}

// Ledger stores alerts and enforces pending -> terminal as the only transition.
//
// UpdateStatus is safe for concurrent use across ids. Calling it again with the
// status an alert already holds is a successful no-op; any other change to a
// terminal alert returns ErrInvalidTransition.
type Ledger interface {
	Store(ctx context.Context, a alert.Alert) error
	UpdateStatus(ctx context.Context, id string, u Update) (alert.Alert, error)
	IsDuplicate(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) (alert.Alert, error)
	List(ctx context.Context, f Filter) ([]alert.Alert, error)
	// CountStalePending counts alerts still pending whose timestamp is before cutoff.
	CountStalePending(ctx context.Context, before time.Time) (int, error)
	// Prune deletes terminal alerts last touched before cutoff.
	Prune(ctx context.Context, before time.Time) (int, error)
}

func checkUpdate(u Update) error {
	if !u.Status.Terminal() {
		return ErrInvalidTransition
	}
	return nil
}

// settle resolves a conditional update that matched no pending row.
func settle(current alert.Alert, u Update) (alert.Alert, error) {
	if current.Status == u.Status {
		return current, nil
	}
	return current, ErrInvalidTransition
}
