// Package rate provides the rolling price history kept for every tradable
// asset. A Track records the most recent rates inside a bounded window and
// derives current/min/max from exactly that window.
//
// All rates use shopspring/decimal — never float64 for money.
package rate

import (
	"sync"

	"github.com/shopspring/decimal"
)

// DefaultWindow is the number of historical rates kept per asset.
const DefaultWindow = 10

// Config controls how much history a Track retains.
type Config struct {
	// Window is the maximum number of rates kept; the oldest entry is
	// evicted first once the window is full. Values < 1 fall back to
	// DefaultWindow.
	Window int
}

// DefaultConfig returns the standard 10-entry window.
func DefaultConfig() Config {
	return Config{Window: DefaultWindow}
}

// Track is a bounded FIFO of historical rates with derived current, min,
// and max. Min and max cover the trailing window only, not all time, so
// min <= current <= max does not generally hold across the asset's life.
//
// Track is safe for concurrent use. Append is atomic: current, history,
// and the derived min/max always describe the same window.
type Track struct {
	mu      sync.RWMutex
	window  int
	history []decimal.Decimal
	current decimal.Decimal
	min     decimal.Decimal
	max     decimal.Decimal
}

// NewTrack creates a Track seeded with an initial rate.
// Rates are not validated: zero and negative values are accepted.
func NewTrack(cfg Config, initial decimal.Decimal) *Track {
	window := cfg.Window
	if window < 1 {
		window = DefaultWindow
	}
	t := &Track{
		window:  window,
		history: make([]decimal.Decimal, 0, window),
	}
	t.append(initial)
	return t
}

// Append records a new rate: it becomes the current rate, joins the
// history (evicting the oldest entry when the window is full), and
// min/max are recomputed over the resulting window. Returns the new
// current rate.
func (t *Track) Append(r decimal.Decimal) decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.append(r)
	return t.current
}

// append assumes t.mu is held (or the Track is not yet shared).
func (t *Track) append(r decimal.Decimal) {
	if len(t.history) >= t.window {
		t.history = append(t.history[:0], t.history[1:]...)
	}
	t.history = append(t.history, r)
	t.current = r

	t.min = t.history[0]
	t.max = t.history[0]
	for _, h := range t.history[1:] {
		if h.LessThan(t.min) {
			t.min = h
		}
		if h.GreaterThan(t.max) {
			t.max = h
		}
	}
}

// Current returns the most recently appended rate.
func (t *Track) Current() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Min returns the lowest rate inside the trailing window.
func (t *Track) Min() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.min
}

// Max returns the highest rate inside the trailing window.
func (t *Track) Max() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.max
}

// History returns a copy of the trailing window in append order,
// oldest first.
func (t *Track) History() []decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]decimal.Decimal, len(t.history))
	copy(out, t.history)
	return out
}
