// Package origins tracks which delegation origins were recently active.
package origins

import (
	"sort"
	"sync"
	"time"

	"github.com/keyward/vouch/core"
	"github.com/thejerf/abtime"
)

// DefaultCapacity bounds the tracked set when the caller does not.
const DefaultCapacity = 1000

// Tracker remembers the origins that recently had delegations prepared, up
// to a fixed capacity. The stalest origin is evicted when the cap is hit.
type Tracker struct {
	clock    abtime.AbstractTime
	capacity int

	mu   sync.Mutex
	seen map[core.Origin]time.Time
}

// NewTracker creates a tracker. Zero capacity means DefaultCapacity, a nil
// clock means the real one.
func NewTracker(capacity int, clock abtime.AbstractTime) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	return &Tracker{
		clock:    clock,
		capacity: capacity,
		seen:     make(map[core.Origin]time.Time),
	}
}

// Touch records activity for origin, evicting the stalest entry when full.
func (t *Tracker) Touch(origin core.Origin) {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.seen[origin]; !ok && len(t.seen) >= t.capacity {
		var stalest core.Origin
		var when time.Time
		for o, ts := range t.seen {
			if when.IsZero() || ts.Before(when) {
				stalest, when = o, ts
			}
		}
		delete(t.seen, stalest)
	}

	t.seen[origin] = now
}

// Origins lists the tracked origins, most recently active first.
func (t *Tracker) Origins() []core.Origin {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]core.Origin, 0, len(t.seen))
	for o := range t.seen {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := t.seen[out[i]], t.seen[out[j]]
		if ti.Equal(tj) {
			return out[i] < out[j]
		}
		return ti.After(tj)
	})
	return out
}

// Len reports how many origins are currently tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}
