// Package execution drives stored alerts through sizing, submission and
// normalization, and owns every status transition away from pending.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"alert-executor/internal/alert"
	"alert-executor/internal/events"
	"alert-executor/internal/ledger"
	"alert-executor/internal/monitor"
	"alert-executor/internal/risk"
	"alert-executor/internal/settings"
	"alert-executor/pkg/exchanges/common"
)

var (
	// ErrAlreadyProcessed means the alert is terminal; nothing was done.
	ErrAlreadyProcessed = errors.New("alert already processed")
	// ErrInFlight means another caller is executing the alert right now.
	ErrInFlight = errors.New("alert execution in progress")
)

// Router resolves exchange names and converts between canonical and wire forms.
type Router interface {
	Lookup(name string) (common.Adapter, error)
	Build(order common.SizedOrder, intent common.OrderIntent) (common.OrderRequest, error)
	Normalize(raw common.RawResponse) common.OrderResponse
}

// Submitter performs the exchange call.
type Submitter interface {
	Execute(ctx context.Context, req common.OrderRequest, creds common.Credentials, testMode bool) (common.RawResponse, error)
}

// Options tune the orchestrator.
type Options struct {
	// RejectAmbiguousSide fails alerts whose side was defaulted to BUY.
	RejectAmbiguousSide bool
}

// Orchestrator executes alerts at most once.
type Orchestrator struct {
	ledger    ledger.Ledger
	router    Router
	submitter Submitter
	bus       *events.Bus
	metrics   *monitor.SystemMetrics
	opts      Options
	inflight  *inFlight
	now       func() time.Time
	log       *zap.Logger
}

// NewOrchestrator wires the pipeline stages. bus and metrics may be nil.
func NewOrchestrator(l ledger.Ledger, router Router, submitter Submitter, bus *events.Bus,
	metrics *monitor.SystemMetrics, opts Options, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = monitor.NewSystemMetrics()
	}
	return &Orchestrator{
		ledger:    l,
		router:    router,
		submitter: submitter,
		bus:       bus,
		metrics:   metrics,
		opts:      opts,
		inflight:  newInFlight(),
		now:       time.Now,
		log:       log.Named("orchestrator"),
	}
}

// InFlight returns how many alerts are executing and the age of the oldest.
func (o *Orchestrator) InFlight() (int, time.Duration) {
	return o.inflight.Len(), o.inflight.OldestAge()
}

// Execute submits the stored alert with the given settings and records the
// outcome. Any failure after the alert is claimed ends in failed, so the
// returned alert is terminal whenever err is nil.
func (o *Orchestrator) Execute(ctx context.Context, a alert.Alert, snap settings.Snapshot) (alert.Alert, error) {
	current, release, err := o.claim(ctx, a.ID)
	if err != nil {
		return current, err
	}
	defer release()

	timer := monitor.NewTimer(o.metrics.ExecutionLatency)
	defer timer.Stop()

	resp, err := o.submit(ctx, current, snap)
	u := outcome(resp, err, o.now())
	if err != nil {
		o.log.Warn("execution failed", zap.String("alert_id", current.ID),
			zap.String("exchange", current.Exchange), zap.Error(err))
	} else {
		o.log.Info("order submitted", zap.String("alert_id", current.ID),
			zap.String("exchange", resp.Exchange), zap.String("order_id", resp.OrderID),
			zap.String("order_status", string(resp.Status)))
	}
	return o.finish(ctx, current, u), nil
}

// Ignore dismisses a pending alert with reason.
func (o *Orchestrator) Ignore(ctx context.Context, id, reason string) (alert.Alert, error) {
	current, release, err := o.claim(ctx, id)
	if err != nil {
		return current, err
	}
	defer release()
	o.log.Info("alert ignored", zap.String("alert_id", id), zap.String("reason", reason))
	return o.finish(ctx, current, ledger.Update{Status: alert.StatusIgnored, Error: reason}), nil
}

// claim checks the persisted status, marks id in flight and re-reads the
// status so a peer that finished in between is not executed twice.
func (o *Orchestrator) claim(ctx context.Context, id string) (alert.Alert, func(), error) {
	current, err := o.ledger.Get(ctx, id)
	if err != nil {
		return alert.Alert{}, nil, fmt.Errorf("load alert %s: %w", id, err)
	}
	if current.Status.Terminal() {
		return current, nil, ErrAlreadyProcessed
	}
	if !o.inflight.TryMark(id) {
		return current, nil, ErrInFlight
	}
	release := func() { o.inflight.Clear(id) }

	current, err = o.ledger.Get(ctx, id)
	if err != nil {
		release()
		return alert.Alert{}, nil, fmt.Errorf("reload alert %s: %w", id, err)
	}
	if current.Status.Terminal() {
		release()
		return current, nil, ErrAlreadyProcessed
	}
	return current, release, nil
}

// submit runs Sizer, Builder, Gateway and Normalizer; the first error aborts.
func (o *Orchestrator) submit(ctx context.Context, a alert.Alert, snap settings.Snapshot) (common.OrderResponse, error) {
	if a.SideDefaulted && o.opts.RejectAmbiguousSide {
		return common.OrderResponse{}, common.Invalid("side could not be determined from the alert")
	}
	adapter, err := o.router.Lookup(a.Exchange)
	if err != nil {
		return common.OrderResponse{}, err
	}
	a.Exchange = adapter.Name

	order, err := risk.Size(a, snap)
	if err != nil {
		return common.OrderResponse{}, err
	}
	req, err := o.router.Build(order, a.Intent())
	if err != nil {
		return common.OrderResponse{}, err
	}
	if err := ctx.Err(); err != nil {
		return common.OrderResponse{}, fmt.Errorf("before submission: %w", err)
	}

	protect := risk.ProtectionFor(a, snap.Config)
	o.log.Info("submitting order", zap.String("alert_id", a.ID),
		zap.String("exchange", req.Exchange), zap.String("client_order_id", req.ClientOrderID),
		zap.String("side", string(a.Side)), zap.Stringer("quantity", order.Quantity),
		zap.Stringer("price", order.Price), zap.Stringer("order_value", order.OrderValue),
		zap.Stringer("stop_loss", protect.StopLoss), zap.Stringer("take_profit", protect.TakeProfit),
		zap.Bool("test_mode", snap.Config.TestMode))

	// Once issued the call is not abandoned; only the gateway timeout bounds it.
	timer := monitor.NewTimer(o.metrics.GatewayLatency)
	raw, err := o.submitter.Execute(context.WithoutCancel(ctx), req, order.Credentials, snap.Config.TestMode)
	timer.Stop()
	if err != nil {
		return common.OrderResponse{}, err
	}
	return o.router.Normalize(raw), nil
}

// finish writes the terminal status and publishes the result. A failed write
// is logged, and the caller still gets the outcome it produced.
func (o *Orchestrator) finish(ctx context.Context, current alert.Alert, u ledger.Update) alert.Alert {
	updated, err := o.ledger.UpdateStatus(context.WithoutCancel(ctx), current.ID, u)
	if err != nil {
		o.metrics.IncrementErrors()
		o.log.Error("record outcome failed", zap.String("alert_id", current.ID),
			zap.String("status", string(u.Status)), zap.Error(err))
		updated = apply(current, u)
	}
	if o.bus != nil {
		o.bus.Publish(events.EventAlertUpdate, updated)
	}
	return updated
}

func outcome(resp common.OrderResponse, err error, now time.Time) ledger.Update {
	if err != nil {
		return ledger.Update{Status: alert.StatusFailed, Error: err.Error()}
	}
	u := ledger.Update{
		Status:  alert.StatusExecuted,
		OrderID: resp.OrderID,
		Error:   resp.Error,
	}
	if resp.Status.Failed() {
		u.Status = alert.StatusFailed
		if u.Error == "" {
			u.Error = fmt.Sprintf("%s: order %s", resp.Exchange, resp.Status)
		}
		return u
	}
	switch {
	case resp.ExecutedPrice.IsPositive():
		u.ExecutedPrice = decimal.NewNullDecimal(resp.ExecutedPrice)
	case resp.Price.IsPositive():
		u.ExecutedPrice = decimal.NewNullDecimal(resp.Price)
	}
	at := resp.Timestamp
	if at.IsZero() {
		at = now
	}
	u.ExecutedAt = &at
	return u
}

func apply(a alert.Alert, u ledger.Update) alert.Alert {
	a.Status = u.Status
	a.ExecutedPrice = u.ExecutedPrice
	a.ExecutedAt = u.ExecutedAt
	a.OrderID = u.OrderID
	a.Error = u.Error
	return a
}
