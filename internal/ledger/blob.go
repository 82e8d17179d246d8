package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"alert-executor/internal/alert"
	"alert-executor/internal/settings"
)

// DefaultBlobCapacity bounds the history kept in a single blob.
const DefaultBlobCapacity = 1000

// Blob keeps the whole alert history as one JSON list in the settings KV
// under the alert_history key. It suits single-process installs with no
// database; every write rewrites the list.
type Blob struct {
	kv       settings.KV
	capacity int

	mu         sync.Mutex
	entries    []blobEntry // newest first
	tombstones []string    // oldest first, at most capacity
	loaded     bool
}

type blobEntry struct {
	alert.Alert
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewBlob returns a blob ledger. capacity <= 0 uses DefaultBlobCapacity.
// When full, the oldest terminal alerts are dropped first; pending ones are kept.
// Dropped ids stay known as duplicates until capacity newer ones displace them.
func NewBlob(kv settings.KV, capacity int) *Blob {
	if capacity <= 0 {
		capacity = DefaultBlobCapacity
	}
	return &Blob{kv: kv, capacity: capacity}
}

func (l *Blob) Store(ctx context.Context, a alert.Alert) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.load(ctx); err != nil {
		return err
	}
	if l.known(a.ID) {
		return ErrDuplicate
	}
	next := append([]blobEntry{{Alert: a, UpdatedAt: time.Now()}}, l.entries...)
	kept, dropped := l.trim(next)
	return l.save(ctx, kept, dropped)
}

func (l *Blob) UpdateStatus(ctx context.Context, id string, u Update) (alert.Alert, error) {
	if err := checkUpdate(u); err != nil {
		return alert.Alert{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.load(ctx); err != nil {
		return alert.Alert{}, err
	}
	i := l.index(id)
	if i < 0 {
		return alert.Alert{}, ErrNotFound
	}
	current := l.entries[i].Alert
	if current.Status != alert.StatusPending {
		return settle(current, u)
	}

	current.Status = u.Status
	current.ExecutedPrice = u.ExecutedPrice
	current.ExecutedAt = u.ExecutedAt
	current.OrderID = u.OrderID
	current.Error = u.Error

	next := slices.Clone(l.entries)
	next[i] = blobEntry{Alert: current, UpdatedAt: time.Now()}
	if err := l.save(ctx, next, nil); err != nil {
		return alert.Alert{}, err
	}
	return current, nil
}

func (l *Blob) IsDuplicate(ctx context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.load(ctx); err != nil {
		return false, err
	}
	return l.known(id), nil
}

func (l *Blob) Get(ctx context.Context, id string) (alert.Alert, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.load(ctx); err != nil {
		return alert.Alert{}, err
	}
	i := l.index(id)
	if i < 0 {
		return alert.Alert{}, ErrNotFound
	}
	return l.entries[i].Alert, nil
}

func (l *Blob) List(ctx context.Context, f Filter) ([]alert.Alert, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.load(ctx); err != nil {
		return nil, err
	}
	// newest alert time first; ties keep insertion order (newest first)
	entries := slices.Clone(l.entries)
	slices.SortStableFunc(entries, func(a, b blobEntry) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	var out []alert.Alert
	for _, e := range entries {
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.Exchange != "" && !strings.EqualFold(e.Exchange, f.Exchange) {
			continue
		}
		out = append(out, e.Alert)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (l *Blob) CountStalePending(ctx context.Context, before time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.load(ctx); err != nil {
		return 0, err
	}
	n := 0
	for _, e := range l.entries {
		if e.Status == alert.StatusPending && e.Timestamp.Before(before) {
			n++
		}
	}
	return n, nil
}

func (l *Blob) Prune(ctx context.Context, before time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.load(ctx); err != nil {
		return 0, err
	}
	var (
		next    = make([]blobEntry, 0, len(l.entries))
		dropped []string
	)
	for _, e := range l.entries {
		if e.Status.Terminal() && e.UpdatedAt.Before(before) {
			dropped = append(dropped, e.ID)
			continue
		}
		next = append(next, e)
	}
	if len(dropped) == 0 {
		return 0, nil
	}
	if err := l.save(ctx, next, dropped); err != nil {
		return 0, err
	}
	return len(dropped), nil
}

func (l *Blob) load(ctx context.Context) error {
	if l.loaded {
		return nil
	}
	raw, found, err := l.kv.Get(ctx, settings.KeyAlertHistory)
	if err != nil {
		return fmt.Errorf("load alert history: %w", err)
	}
	var entries []blobEntry
	if found {
		if err := json.Unmarshal(raw, &entries); err != nil {
			return fmt.Errorf("decode alert history: %w", err)
		}
	}
	var tombstones []string
	raw, found, err = l.kv.Get(ctx, settings.KeyAlertTombstones)
	if err != nil {
		return fmt.Errorf("load alert tombstones: %w", err)
	}
	if found {
		if err := json.Unmarshal(raw, &tombstones); err != nil {
			return fmt.Errorf("decode alert tombstones: %w", err)
		}
	}
	l.entries = entries
	l.tombstones = tombstones
	l.loaded = true
	return nil
}

// save persists next and only then makes it current. Tombstones for dropped
// ids are written first, so a failure in between still reports duplicates.
func (l *Blob) save(ctx context.Context, next []blobEntry, dropped []string) error {
	tombstones := l.tombstones
	if len(dropped) > 0 {
		tombstones = append(slices.Clone(l.tombstones), dropped...)
		if over := len(tombstones) - l.capacity; over > 0 {
			tombstones = tombstones[over:]
		}
		raw, err := json.Marshal(tombstones)
		if err != nil {
			return fmt.Errorf("encode alert tombstones: %w", err)
		}
		if err := l.kv.Set(ctx, settings.KeyAlertTombstones, raw); err != nil {
			return fmt.Errorf("save alert tombstones: %w", err)
		}
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode alert history: %w", err)
	}
	if err := l.kv.Set(ctx, settings.KeyAlertHistory, raw); err != nil {
		return fmt.Errorf("save alert history: %w", err)
	}
	l.entries = next
	l.tombstones = tombstones
	return nil
}

func (l *Blob) trim(entries []blobEntry) ([]blobEntry, []string) {
	var dropped []string
	for len(entries) > l.capacity {
		oldest := -1
		for i := len(entries) - 1; i >= 0; i-- {
			if entries[i].Status.Terminal() {
				oldest = i
				break
			}
		}
		if oldest < 0 {
			break
		}
		dropped = append(dropped, entries[oldest].ID)
		entries = slices.Delete(entries, oldest, oldest+1)
	}
	return entries, dropped
}

// known reports whether id is held or was dropped recently.
func (l *Blob) known(id string) bool {
	return l.index(id) >= 0 || slices.Contains(l.tombstones, id)
}

func (l *Blob) index(id string) int {
	for i, e := range l.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}
