// Package throttle decides whether a user-visible notification may fire. It
// combines a per-type minimum interval with a sliding window shared by all
// types; both must pass.
package throttle

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"latera/internal/buffer"
)

// Policy is an immutable throttle configuration.
type Policy struct {
	MinInterval time.Duration `json:"min_interval" toml:"min_interval" yaml:"min_interval"`
	MaxInWindow int           `json:"max_in_window" toml:"max_in_window" yaml:"max_in_window"`
	WindowSize  time.Duration `json:"window_size" toml:"window_size" yaml:"window_size"`
}

var (
	DefaultPolicy = Policy{MinInterval: time.Second, MaxInWindow: 10, WindowSize: time.Minute}
	StrictPolicy  = Policy{MinInterval: 5 * time.Second, MaxInWindow: 3, WindowSize: time.Minute}
)

const (
	PolicyNameDefault = "default"
	PolicyNameStrict  = "strict"
)

// PolicyByName resolves a named policy. An empty name selects the default.
func PolicyByName(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyNameDefault:
		return DefaultPolicy, nil
	case PolicyNameStrict:
		return StrictPolicy, nil
	default:
		return Policy{}, fmt.Errorf("unknown throttle policy %q", name)
	}
}

func (p Policy) Validate() error {
	if p.MinInterval < 0 {
		return fmt.Errorf("min interval must not be negative")
	}
	if p.MaxInWindow < 1 {
		return fmt.Errorf("max in window must be at least 1")
	}
	if p.WindowSize <= 0 {
		return fmt.Errorf("window size must be positive")
	}
	return nil
}

// Stats counts decisions since the throttle was created.
type Stats struct {
	Allowed    int64 `json:"allowed"`
	Suppressed int64 `json:"suppressed"`
	InWindow   int   `json:"in_window"`
}

// Throttle owns the timestamp queue (oldest first) and the last-fired time per
// notification type. It is safe for concurrent use.
type Throttle struct {
	mu         sync.Mutex
	policy     Policy
	clock      clock.Clock
	queue      *buffer.Ring[time.Time]
	last       map[string]time.Time
	allowed    int64
	suppressed int64
}

func New(policy Policy, clk clock.Clock) *Throttle {
	if clk == nil {
		clk = clock.New()
	}
	capacity := policy.MaxInWindow
	if capacity < 1 {
		capacity = 1
	}
	return &Throttle{
		policy: policy,
		clock:  clk,
		queue:  buffer.NewRing[time.Time](capacity),
		last:   make(map[string]time.Time),
	}
}

func (t *Throttle) Policy() Policy {
	return t.policy
}

// Allow reports whether a notification of kind may fire now and records it
// when it may.
func (t *Throttle) Allow(kind string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if last, ok := t.last[kind]; ok && now.Sub(last) < t.policy.MinInterval {
		t.suppressed++
		return false
	}

	cutoff := now.Add(-t.policy.WindowSize)
	t.queue.DropWhile(func(stamp time.Time) bool {
		return stamp.Before(cutoff)
	})
	if t.queue.Len() >= t.policy.MaxInWindow {
		t.suppressed++
		return false
	}

	t.queue.Add(now)
	t.last[kind] = now
	t.allowed++
	return true
}

func (t *Throttle) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		Allowed:    t.allowed,
		Suppressed: t.suppressed,
		InWindow:   t.queue.Len(),
	}
}
