package execution

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"alert-executor/internal/alert"
	"alert-executor/internal/events"
	"alert-executor/internal/ledger"
	"alert-executor/internal/monitor"
	"alert-executor/internal/settings"
)

// ErrNotTradingAlert is returned for payloads that carry no trading signal.
var ErrNotTradingAlert = errors.New("payload is not a trading alert")

// SettingsSource hands out immutable settings snapshots.
type SettingsSource interface {
	Snapshot() settings.Snapshot
}

// Pipeline is the single path every entry point uses: normalize, store, then
// execute or hold for approval depending on mode.
type Pipeline struct {
	normalizer   *alert.Normalizer
	ledger       ledger.Ledger
	orchestrator *Orchestrator
	settings     SettingsSource
	bus          *events.Bus
	metrics      *monitor.SystemMetrics
	log          *zap.Logger
}

// NewPipeline creates a Pipeline. bus and metrics may be nil.
func NewPipeline(n *alert.Normalizer, l ledger.Ledger, o *Orchestrator, s SettingsSource,
	bus *events.Bus, metrics *monitor.SystemMetrics, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = monitor.NewSystemMetrics()
	}
	return &Pipeline{
		normalizer:   n,
		ledger:       l,
		orchestrator: o,
		settings:     s,
		bus:          bus,
		metrics:      metrics,
		log:          log.Named("pipeline"),
	}
}

// Handle ingests one payload. A redelivered alert returns the stored record
// with ledger.ErrDuplicate. In MANUAL mode the alert is returned pending.
func (p *Pipeline) Handle(ctx context.Context, payload map[string]any, source alert.Source) (alert.Alert, error) {
	if !alert.IsTradingAlert(payload) {
		return alert.Alert{}, ErrNotTradingAlert
	}
	a := p.normalizer.Normalize(payload)
	a.Source = source
	p.metrics.IncrementReceived()

	dup, err := p.ledger.IsDuplicate(ctx, a.ID)
	if err != nil {
		p.metrics.IncrementErrors()
		return a, fmt.Errorf("check duplicate: %w", err)
	}
	if dup {
		return p.duplicate(ctx, a)
	}
	if err := p.ledger.Store(ctx, a); err != nil {
		if errors.Is(err, ledger.ErrDuplicate) {
			return p.duplicate(ctx, a)
		}
		p.metrics.IncrementErrors()
		p.log.Error("store alert failed", zap.String("alert_id", a.ID), zap.Error(err))
		return a, fmt.Errorf("store alert: %w", err)
	}
	p.log.Info("alert received", zap.String("alert_id", a.ID), zap.String("symbol", a.Symbol),
		zap.String("side", string(a.Side)), zap.String("exchange", a.Exchange),
		zap.String("strategy", a.Strategy), zap.String("source", string(a.Source)),
		zap.Bool("side_defaulted", a.SideDefaulted))
	p.publish(a)

	snap := p.settings.Snapshot()
	if snap.Config.Mode != settings.ModeAuto {
		return a, nil
	}
	if !snap.Config.StrategyEnabled(a.Strategy) {
		return p.orchestrator.Ignore(ctx, a.ID, fmt.Sprintf("strategy %q is not enabled", a.Strategy))
	}
	return p.orchestrator.Execute(ctx, a, snap)
}

// Approve executes a pending alert on manual request.
func (p *Pipeline) Approve(ctx context.Context, id string) (alert.Alert, error) {
	a, err := p.ledger.Get(ctx, id)
	if err != nil {
		return alert.Alert{}, err
	}
	if a.Status.Terminal() {
		return a, ErrAlreadyProcessed
	}
	return p.orchestrator.Execute(ctx, a, p.settings.Snapshot())
}

// Dismiss ignores a pending alert on manual request.
func (p *Pipeline) Dismiss(ctx context.Context, id, reason string) (alert.Alert, error) {
	if reason == "" {
		reason = "dismissed by user"
	}
	return p.orchestrator.Ignore(ctx, id, reason)
}

func (p *Pipeline) duplicate(ctx context.Context, a alert.Alert) (alert.Alert, error) {
	p.metrics.IncrementDuplicates()
	p.log.Info("duplicate alert dropped", zap.String("alert_id", a.ID))
	stored, err := p.ledger.Get(ctx, a.ID)
	if err != nil {
		return a, ledger.ErrDuplicate
	}
	return stored, ledger.ErrDuplicate
}

func (p *Pipeline) publish(a alert.Alert) {
	if p.bus != nil {
		p.bus.Publish(events.EventAlertUpdate, a)
	}
}
