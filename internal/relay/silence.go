package relay

import (
	"sync"
	"time"
)

const DefaultSilenceWindow = 1000 * time.Millisecond

type SilenceState int

const (
	StateIdle SilenceState = iota
	StateArmed
	StateFired
)

func (s SilenceState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateFired:
		return "fired"
	default:
		return "unknown"
	}
}

type silenceEvent int

const (
	evChunk silenceEvent = iota
	evTimeout
	evEndOfTurn
	evCancel
)

// transition is the whole silence state machine. fire reports whether the flush callback runs.
func transition(state SilenceState, ev silenceEvent) (next SilenceState, fire bool) {
	switch ev {
	case evChunk:
		return StateArmed, false
	case evTimeout:
		if state == StateArmed {
			return StateFired, true
		}
		return state, false
	case evEndOfTurn:
		return StateFired, true
	case evCancel:
		return StateIdle, false
	default:
		return state, false
	}
}

// Timer is the part of *time.Timer the detector needs.
type Timer interface {
	Stop() bool
}

type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealScheduler runs callbacks on time.AfterFunc goroutines.
var RealScheduler Scheduler = realScheduler{}

// SilenceDetector flushes an utterance after the stream has been quiet for the whole window,
// or immediately on an explicit end of turn.
type SilenceDetector struct {
	mu      sync.Mutex
	window  time.Duration
	sched   Scheduler
	onFire  func()
	state   SilenceState
	timer   Timer
	gen     uint64
	stopped bool
}

func NewSilenceDetector(window time.Duration, sched Scheduler, onFire func()) *SilenceDetector {
	if window <= 0 {
		window = DefaultSilenceWindow
	}
	if sched == nil {
		sched = RealScheduler
	}
	return &SilenceDetector{window: window, sched: sched, onFire: onFire}
}

func (d *SilenceDetector) State() SilenceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Touch restarts the window; called for every audio chunk.
func (d *SilenceDetector) Touch() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	d.cancelTimerLocked()
	d.state, _ = transition(d.state, evChunk)
	gen := d.gen
	d.timer = d.sched.AfterFunc(d.window, func() { d.expire(gen) })
}

// Trigger cancels the pending timer and fires on the caller's goroutine.
func (d *SilenceDetector) Trigger() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.cancelTimerLocked()
	var fire bool
	d.state, fire = transition(d.state, evEndOfTurn)
	d.mu.Unlock()

	if fire && d.onFire != nil {
		d.onFire()
	}
}

// Cancel drops the pending timer without firing.
func (d *SilenceDetector) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelTimerLocked()
	d.state, _ = transition(d.state, evCancel)
}

// Stop cancels the timer for good; later Touch/Trigger calls and stale timers do nothing.
func (d *SilenceDetector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelTimerLocked()
	d.state, _ = transition(d.state, evCancel)
	d.stopped = true
}

func (d *SilenceDetector) expire(gen uint64) {
	d.mu.Lock()
	if d.stopped || gen != d.gen {
		// superseded by a newer Touch or cancelled after the timer already started running
		d.mu.Unlock()
		return
	}
	var fire bool
	d.state, fire = transition(d.state, evTimeout)
	d.timer = nil
	d.mu.Unlock()

	if fire && d.onFire != nil {
		d.onFire()
	}
}

// cancelTimerLocked invalidates the current timer lifecycle.
func (d *SilenceDetector) cancelTimerLocked() {
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
