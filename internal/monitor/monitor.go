// Package monitor counts pipeline outcomes and exposes latency statistics.
package monitor

import (
	"context"

	"go.uber.org/zap"

	"alert-executor/internal/alert"
	"alert-executor/internal/events"
)

// Monitor watches alert updates and folds terminal outcomes into metrics.
type Monitor struct {
	Bus     *events.Bus
	Metrics *SystemMetrics
	Log     *zap.Logger
}

// Start consumes the bus until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	log := m.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("monitor")
	if m.Bus == nil || m.Metrics == nil {
		log.Warn("monitor not fully configured; skipping")
		return
	}
	stream, unsub := m.Bus.Subscribe(128, events.EventAlertUpdate)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-stream:
				if !ok {
					return
				}
				a, ok := msg.Data.(alert.Alert)
				if !ok {
					continue
				}
				m.observe(log, a)
			}
		}
	}()
}

func (m *Monitor) observe(log *zap.Logger, a alert.Alert) {
	switch a.Status {
	case alert.StatusExecuted:
		m.Metrics.IncrementExecuted()
	case alert.StatusIgnored:
		m.Metrics.IncrementIgnored()
	case alert.StatusFailed:
		m.Metrics.IncrementFailed()
		log.Warn("alert failed", zap.String("alert_id", a.ID),
			zap.String("exchange", a.Exchange), zap.String("error", a.Error))
	}
}
