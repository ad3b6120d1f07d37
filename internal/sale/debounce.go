package sale

import (
	"sync"
	"time"
)

// DefaultDebounceWindow is how long a re-scan of the same code is
// suppressed. Camera scanning re-detects the same physical code across
// video frames; manual entry never goes through the debouncer.
const DefaultDebounceWindow = 2000 * time.Millisecond

// Debouncer keeps the single most-recent resolved code per session.
type Debouncer struct {
	window time.Duration

	mu       sync.Mutex
	lastCode string
	lastAt   time.Time
}

func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{window: window}
}

// ShouldProcess reports whether a resolution of code at now should go
// ahead: false only when the same code was recorded within the window.
func (d *Debouncer) ShouldProcess(code string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lastCode != code {
		return true
	}
	return now.Sub(d.lastAt) >= d.window
}

func (d *Debouncer) Record(code string, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastCode = code
	d.lastAt = now
}

// Reset clears the last-scan record; called on session end.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastCode = ""
	d.lastAt = time.Time{}
}
