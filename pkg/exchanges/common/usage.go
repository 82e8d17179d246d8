package common

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Usage is the request weight an exchange last reported for its window.
type Usage struct {
	Used      int       `json:"used"`
	Peak      int       `json:"peak"`
	Limit     int       `json:"limit"`
	Percent   float64   `json:"percent"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// UsageMeter follows the weight counter an exchange returns in a response
// header (Binance X-MBX-USED-WEIGHT-1M, MEXC, ...). It only observes: the
// exchange is the authority on its own limit.
type UsageMeter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	usage  Usage
	now    func() time.Time
}

// NewUsageMeter tracks a counter with the given limit per window.
func NewUsageMeter(limit int, window time.Duration) *UsageMeter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &UsageMeter{limit: limit, window: window, now: time.Now}
}

// Observe records a header value such as "12" or "12/600" and returns the
// usage percentage. Unparsable values are ignored and return 0.
func (m *UsageMeter) Observe(header string) float64 {
	used, ok := parseUsage(header)
	if !ok {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if now.Sub(m.usage.UpdatedAt) >= m.window {
		m.usage.Peak = 0
	}
	m.usage.Used = used
	m.usage.Peak = max(m.usage.Peak, used)
	m.usage.Limit = m.limit
	m.usage.Percent = float64(used) / float64(m.limit) * 100
	m.usage.UpdatedAt = now
	return m.usage.Percent
}

// Snapshot returns the last observation. Once the window has passed without
// a new header the counter is reported as reset.
func (m *UsageMeter) Snapshot() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.usage
	u.Limit = m.limit
	if u.UpdatedAt.IsZero() || m.now().Sub(u.UpdatedAt) >= m.window {
		u.Used, u.Peak, u.Percent = 0, 0, 0
	}
	return u
}

func parseUsage(header string) (int, bool) {
	header = strings.TrimSpace(header)
	if i := strings.IndexByte(header, '/'); i > 0 {
		header = header[:i]
	}
	n, err := strconv.Atoi(header)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
