package gateway

import (
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"alert-executor/pkg/exchanges/common"
)

// ErrGatewayUnhealthy is returned while an exchange's circuit is open.
var ErrGatewayUnhealthy = errors.New("gateway is unhealthy")

// Config holds configuration for the Manager.
type Config struct {
	FailureThreshold int           // consecutive failures before the circuit opens
	CircuitTimeout   time.Duration // how long the circuit stays open before one trial call
	UsageWindow      time.Duration // rate-limit window reported by usage headers
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		CircuitTimeout:   time.Minute,
		UsageWindow:      time.Minute,
	}
}

type exchangeState struct {
	failures    int
	openedAt    time.Time
	trialActive bool
	lastError   string
	lastSuccess time.Time
	lastFailure time.Time
	requests    int64
	errors      int64
	usage       *common.UsageMeter
}

// Manager tracks per-exchange health so one failing exchange cannot drag the
// others down: a circuit opens after repeated transport or server failures.
type Manager struct {
	mu     sync.Mutex
	states map[string]*exchangeState
	config Config
	log    *zap.Logger
	now    func() time.Time
}

// NewManager creates a Manager.
func NewManager(cfg Config, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.UsageWindow <= 0 {
		cfg.UsageWindow = time.Minute
	}
	return &Manager{
		states: make(map[string]*exchangeState),
		config: cfg,
		log:    log.Named("gateway_manager"),
		now:    time.Now,
	}
}

func (m *Manager) stateLocked(exchange string) *exchangeState {
	st, ok := m.states[exchange]
	if !ok {
		st = &exchangeState{}
		m.states[exchange] = st
	}
	return st
}

// Allow reports whether a call to exchange may proceed. After CircuitTimeout
// an open circuit lets exactly one trial call through.
func (m *Manager) Allow(exchange string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stateLocked(exchange)
	st.requests++
	if st.failures < m.config.FailureThreshold {
		return nil
	}
	if m.now().Sub(st.openedAt) < m.config.CircuitTimeout || st.trialActive {
		st.errors++
		return ErrGatewayUnhealthy
	}
	st.trialActive = true
	return nil
}

// RecordFailure counts a transport or server failure.
func (m *Manager) RecordFailure(exchange string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stateLocked(exchange)
	st.failures++
	st.errors++
	st.trialActive = false
	st.lastFailure = m.now()
	if err != nil {
		st.lastError = err.Error()
	}
	if st.failures >= m.config.FailureThreshold {
		st.openedAt = st.lastFailure
		if st.failures == m.config.FailureThreshold {
			m.log.Warn("circuit opened", zap.String("exchange", exchange), zap.Int("failures", st.failures), zap.Error(err))
		}
	}
}

// RecordSuccess resets the failure counter.
func (m *Manager) RecordSuccess(exchange string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stateLocked(exchange)
	if st.failures >= m.config.FailureThreshold {
		m.log.Info("circuit closed", zap.String("exchange", exchange))
	}
	st.failures = 0
	st.trialActive = false
	st.lastSuccess = m.now()
}

// RecordUsage stores a rate-limit usage header value.
func (m *Manager) RecordUsage(exchange, header string, limit int) {
	if header == "" || limit <= 0 {
		return
	}
	m.mu.Lock()
	st := m.stateLocked(exchange)
	if st.usage == nil {
		st.usage = common.NewUsageMeter(limit, m.config.UsageWindow)
	}
	meter := st.usage
	m.mu.Unlock()

	if pct := meter.Observe(header); pct >= 80 {
		m.log.Warn("rate limit usage high", zap.String("exchange", exchange), zap.Float64("percent", pct))
	}
}

// ExchangeHealth is a point-in-time view of one exchange.
type ExchangeHealth struct {
	Exchange    string        `json:"exchange"`
	Healthy     bool          `json:"healthy"`
	Failures    int           `json:"consecutiveFailures"`
	Requests    int64         `json:"requests"`
	Errors      int64         `json:"errors"`
	LastError   string        `json:"lastError,omitempty"`
	LastSuccess time.Time     `json:"lastSuccess,omitzero"`
	LastFailure time.Time     `json:"lastFailure,omitzero"`
	Usage       *common.Usage `json:"usage,omitempty"`
}

// PoolStats contains gateway statistics.
type PoolStats struct {
	Exchanges      []ExchangeHealth `json:"exchanges"`
	UnhealthyCount int              `json:"unhealthyCount"`
}

// Stats returns every exchange that has been called, sorted by name.
func (m *Manager) Stats() PoolStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := PoolStats{Exchanges: make([]ExchangeHealth, 0, len(m.states))}
	for name, st := range m.states {
		h := ExchangeHealth{
			Exchange:    name,
			Healthy:     st.failures < m.config.FailureThreshold,
			Failures:    st.failures,
			Requests:    st.requests,
			Errors:      st.errors,
			LastError:   st.lastError,
			LastSuccess: st.lastSuccess,
			LastFailure: st.lastFailure,
		}
		if st.usage != nil {
			u := st.usage.Snapshot()
			h.Usage = &u
		}
		if !h.Healthy {
			stats.UnhealthyCount++
		}
		stats.Exchanges = append(stats.Exchanges, h)
	}
	sort.Slice(stats.Exchanges, func(i, j int) bool { return stats.Exchanges[i].Exchange < stats.Exchanges[j].Exchange })
	return stats
}
