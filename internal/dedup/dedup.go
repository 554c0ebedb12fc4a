package dedup

import "sync"

// Tracker remembers messages that were already examined during one
// retrieval and turned out not to carry a usable code, so later ticks do
// not fetch their bodies again. State lives only as long as the Tracker.
type Tracker struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{ids: make(map[string]struct{})}
}

// Seen reports whether id was marked.
func (t *Tracker) Seen(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.ids[id]
	return ok
}

// MarkSeen adds id. Empty IDs are ignored.
func (t *Tracker) MarkSeen(id string) {
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ids[id] = struct{}{}
}

// Count returns the number of tracked IDs.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ids)
}
