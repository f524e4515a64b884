package watcher

import (
	"sync"
	"time"
)

// dedupWindow coalesces repeated create events for one path. The first event
// passes; later ones inside the window are dropped. Expired entries are
// pruned by the session's cleanup loop.
type dedupWindow struct {
	mu       sync.Mutex
	duration time.Duration
	seen     map[string]time.Time
}

func newDedupWindow(duration time.Duration) *dedupWindow {
	return &dedupWindow{
		duration: duration,
		seen:     make(map[string]time.Time),
	}
}

func (window *dedupWindow) allow(path string, now time.Time) bool {
	if window == nil || window.duration <= 0 {
		return true
	}
	window.mu.Lock()
	defer window.mu.Unlock()
	if last, ok := window.seen[path]; ok && now.Sub(last) < window.duration {
		return false
	}
	window.seen[path] = now
	return true
}

func (window *dedupWindow) prune(now time.Time) int {
	if window == nil {
		return 0
	}
	window.mu.Lock()
	defer window.mu.Unlock()
	removed := 0
	for path, last := range window.seen {
		if now.Sub(last) >= window.duration {
			delete(window.seen, path)
			removed++
		}
	}
	return removed
}

func (window *dedupWindow) size() int {
	if window == nil {
		return 0
	}
	window.mu.Lock()
	defer window.mu.Unlock()
	return len(window.seen)
}
