package proactor

import (
	"time"

	"github.com/oakfield-systems/edgelink-core/internal/link"
)

// loopTimers implements link.TimerManager by marshalling expiries onto
// the core queue, so timer callbacks are serialized with every other
// event and the link layer needs no locking.
//
// StartTimer and CancelTimer are called only from the core loop. The
// runtime timer goroutine touches nothing but Post.
type loopTimers struct {
	p *Proactor
}

// StartTimer schedules fn to run on the core loop after delay.
func (t loopTimers) StartTimer(delay time.Duration, fn func()) link.TimerHandle {
	return time.AfterFunc(delay, func() {
		t.p.Post(Event{Kind: KindTimerFired, Fn: fn, Enqueued: time.Now()})
	})
}

// CancelTimer stops a scheduled timer. A timer that already fired may
// still deliver its queue event; the link layer's callbacks treat that
// as a no-op.
func (t loopTimers) CancelTimer(handle TimerHandle) {
	if tm, ok := handle.(*time.Timer); ok {
		tm.Stop()
	}
}

// TimerHandle aliases the link layer's opaque handle type.
type TimerHandle = link.TimerHandle

// Timers returns the proactor's loop-marshalling timer manager. Hand
// this to link.NewLinks so ack timeouts fire on the core loop.
func (p *Proactor) Timers() link.TimerManager {
	return loopTimers{p: p}
}
