package watch

import "sync"

// defaultDedupCapacity bounds the dedup window. The original stream
// redelivers events on reconnect, so the window only needs to cover
// the recent past.
const defaultDedupCapacity = 10000

// dedupWindow is a bounded memory of recently seen (channel, ts)
// pairs. When the window overflows, the oldest half is dropped in one
// bulk eviction. After an eviction a true duplicate can be reported
// as new again; that false negative is an accepted trade-off of the
// bounded design, not a bug.
type dedupWindow struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	max   int
}

func newDedupWindow(max int) *dedupWindow {
	if max <= 0 {
		max = defaultDedupCapacity
	}
	return &dedupWindow{
		seen: make(map[string]struct{}, max),
		max:  max,
	}
}

// Seen records the pair on first observation and reports whether it
// was already present. An entry is never evicted before it has been
// reported as new once.
func (w *dedupWindow) Seen(channel, ts string) bool {
	key := channel + ":" + ts

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.seen[key]; ok {
		return true
	}

	w.seen[key] = struct{}{}
	w.order = append(w.order, key)

	if len(w.seen) > w.max {
		drop := w.max / 2
		for _, old := range w.order[:drop] {
			delete(w.seen, old)
		}
		w.order = append([]string(nil), w.order[drop:]...)
	}
	return false
}

// Len reports the current cardinality.
func (w *dedupWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}
