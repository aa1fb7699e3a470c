package emergency

import (
	"sync"
	"time"
)

const (
	DefaultTriggerThreshold = 8
	DefaultTriggerWindow    = 3 * time.Second
)

// TriggerDetector turns a stream of physical button events into a
// discrete trigger signal: 'threshold' qualifying events with no gap
// of 'window' or more between consecutive events fires the trigger.
//
// Idle -> Counting(n) -> Triggered -> Idle
type TriggerDetector struct {
	mu sync.Mutex

	threshold int
	window    time.Duration
	onTrigger func()

	count      int
	resetTimer *time.Timer
}

func NewTriggerDetector(threshold int, window time.Duration, onTrigger func()) *TriggerDetector {
	if threshold <= 0 {
		threshold = DefaultTriggerThreshold
	}
	if window <= 0 {
		window = DefaultTriggerWindow
	}

	return &TriggerDetector{
		threshold: threshold,
		window:    window,
		onTrigger: onTrigger,
	}
}

// HandleKeyEvent records one qualifying input event and reports
// whether the event was consumed. Only the event that crosses the
// threshold is consumed; it fires the trigger and resets the counter.
func (d *TriggerDetector) HandleKeyEvent() bool {
	d.mu.Lock()

	// The reset timer is single-shot and always cancelled before
	// rescheduling so two timers never race.
	if d.resetTimer != nil {
		d.resetTimer.Stop()
		d.resetTimer = nil
	}

	d.count++
	if d.count >= d.threshold {
		d.count = 0
		d.mu.Unlock()

		go d.onTrigger()
		return true
	}

	d.resetTimer = time.AfterFunc(d.window, d.reset)
	d.mu.Unlock()

	return false
}

// Count returns the current number of events in the window.
func (d *TriggerDetector) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.count
}

func (d *TriggerDetector) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.count = 0
	d.resetTimer = nil
}
