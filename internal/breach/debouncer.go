// Package breach turns per-frame motion verdicts into rate-limited breach
// events.
package breach

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eliteGoblin/focusd/privguard/internal/domain"
)

// DefaultCooldown is the minimum spacing between two breach events.
const DefaultCooldown = 5 * time.Second

// Debouncer is the sole owner of breach timing state. The cooldown check and
// the state update happen under one lock, so concurrent reporters get at
// most one event per cooldown window.
type Debouncer struct {
	mu       sync.Mutex
	cooldown time.Duration
	state    domain.BreachState
	fired    bool
}

// NewDebouncer creates a debouncer. A non-positive cooldown uses
// DefaultCooldown.
func NewDebouncer(cooldown time.Duration) *Debouncer {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Debouncer{cooldown: cooldown}
}

// Report feeds one verdict observed at now. It returns an event only when
// the verdict is motion and the previous event is at least one cooldown old.
func (d *Debouncer) Report(v domain.MotionVerdict, now time.Time) (domain.BreachEvent, bool) {
	if !v.IsMotion {
		return domain.BreachEvent{}, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fired && now.Sub(d.state.LastTrigger) < d.cooldown {
		return domain.BreachEvent{}, false
	}

	d.fired = true
	d.state.LastTrigger = now
	d.state.Count++

	return domain.BreachEvent{
		ID:    uuid.NewString(),
		Count: d.state.Count,
		At:    now,
	}, true
}

// InCooldown reports whether a breach fired less than one cooldown before now.
func (d *Debouncer) InCooldown(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fired && now.Sub(d.state.LastTrigger) < d.cooldown
}

// State returns a copy of the timing state.
func (d *Debouncer) State() domain.BreachState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Cooldown returns the configured cooldown.
func (d *Debouncer) Cooldown() time.Duration {
	return d.cooldown
}
