package execution

import (
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

// inFlight is the in-process registry of alerts currently executing.
// Marking is a single check-and-set per shard, so two callers can never
// both own the same id.
type inFlight struct {
	shards [numShards]*inFlightShard
}

type inFlightShard struct {
	mu    sync.Mutex
	items map[string]time.Time
}

func newInFlight() *inFlight {
	c := &inFlight{}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &inFlightShard{items: make(map[string]time.Time)}
	}
	return c
}

func (c *inFlight) shard(id string) *inFlightShard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return c.shards[h.Sum32()%numShards]
}

// TryMark claims id. It returns false when another caller holds it.
func (c *inFlight) TryMark(id string) bool {
	s := c.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.items[id]; busy {
		return false
	}
	s.items[id] = time.Now()
	return true
}

// Clear releases id.
func (c *inFlight) Clear(id string) {
	s := c.shard(id)
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

// Contains reports whether id is currently marked.
func (c *inFlight) Contains(id string) bool {
	s := c.shard(id)
	s.mu.Lock()
	_, ok := s.items[id]
	s.mu.Unlock()
	return ok
}

// Len returns total marked ids across all shards.
func (c *inFlight) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.Lock()
		total += len(s.items)
		s.mu.Unlock()
	}
	return total
}

// OldestAge returns how long the longest-running execution has been marked.
func (c *inFlight) OldestAge() time.Duration {
	var oldest time.Time
	for _, s := range c.shards {
		s.mu.Lock()
		for _, since := range s.items {
			if oldest.IsZero() || since.Before(oldest) {
				oldest = since
			}
		}
		s.mu.Unlock()
	}
	if oldest.IsZero() {
		return 0
	}
	return time.Since(oldest)
}
