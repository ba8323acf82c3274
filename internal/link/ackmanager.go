package link

import (
	"time"
)

// TimerHandle is an opaque reference to a scheduled timer.
type TimerHandle any

// TimerManager is the timer collaborator the AckManager schedules
// through. The proactor's implementation fires callbacks on the core
// loop, so ack bookkeeping needs no locking; any implementation may
// fire a cancelled timer, which callbacks tolerate as a no-op.
type TimerManager interface {
	StartTimer(delay time.Duration, fn func()) TimerHandle
	CancelTimer(handle TimerHandle)
}

// AckWaitInfo records one outstanding "I expect an ack for this
// message id on this link" wait.
type AckWaitInfo struct {
	// LinkName is the link the message was published on.
	LinkName string

	// MessageID is the awaited message id.
	MessageID string

	// Context is caller-supplied opaque data handed back on timeout.
	Context any

	timer TimerHandle
}

// ackKey identifies a wait. At most one wait may be outstanding per key.
type ackKey struct {
	link      string
	messageID string
}

// TimeoutFunc is invoked when an ack wait times out. It runs in the
// timer manager's firing context (the core loop) and is responsible
// for link-state demotion and error reporting.
type TimeoutFunc func(AckWaitInfo)

// AckManager tracks outstanding acknowledgment timers.
//
// Thread Safety:
//   - NOT safe for concurrent use. All calls, including timer firings,
//     happen on the proactor core loop.
type AckManager struct {
	timers    TimerManager
	onTimeout TimeoutFunc
	waits     map[ackKey]*AckWaitInfo
}

// NewAckManager creates an AckManager scheduling through timers and
// reporting timeouts to onTimeout.
func NewAckManager(timers TimerManager, onTimeout TimeoutFunc) *AckManager {
	return &AckManager{
		timers:    timers,
		onTimeout: onTimeout,
		waits:     make(map[ackKey]*AckWaitInfo),
	}
}

// StartAckTimer schedules a timeout for (link, messageID) after delay.
// Any existing wait for the same key is cancelled and replaced, so at
// most one wait is ever outstanding per key.
func (m *AckManager) StartAckTimer(link, messageID string, context any, delay time.Duration) *AckWaitInfo {
	key := ackKey{link: link, messageID: messageID}
	if old, ok := m.waits[key]; ok {
		m.timers.CancelTimer(old.timer)
		delete(m.waits, key)
	}

	wait := &AckWaitInfo{LinkName: link, MessageID: messageID, Context: context}
	wait.timer = m.timers.StartTimer(delay, func() {
		m.fire(key, wait)
	})
	m.waits[key] = wait
	return wait
}

// CancelAckTimer cancels the wait for (link, messageID). Idempotent:
// returns the cancelled wait and true, or nil and false when no wait
// was outstanding.
func (m *AckManager) CancelAckTimer(link, messageID string) (*AckWaitInfo, bool) {
	key := ackKey{link: link, messageID: messageID}
	wait, ok := m.waits[key]
	if !ok {
		return nil, false
	}
	m.timers.CancelTimer(wait.timer)
	delete(m.waits, key)
	return wait, true
}

// CancelAckTimers bulk-cancels every wait on a link. Used on link
// disconnect: no ack is meaningful once the transport is gone.
// Returns the cancelled waits.
func (m *AckManager) CancelAckTimers(link string) []*AckWaitInfo {
	var cancelled []*AckWaitInfo
	for key, wait := range m.waits {
		if key.link != link {
			continue
		}
		m.timers.CancelTimer(wait.timer)
		delete(m.waits, key)
		cancelled = append(cancelled, wait)
	}
	return cancelled
}

// NumWaiting returns the number of outstanding waits across all links.
func (m *AckManager) NumWaiting() int {
	return len(m.waits)
}

// Waiting reports whether (link, messageID) has an outstanding wait.
func (m *AckManager) Waiting(link, messageID string) bool {
	_, ok := m.waits[ackKey{link: link, messageID: messageID}]
	return ok
}

// fire handles a timer expiry. The map check makes firing race-proof:
// a wait already removed by a cancel or replaced by a restart, whose
// timer fired anyway, is ignored, guaranteeing at most one callback
// invocation per StartAckTimer call.
func (m *AckManager) fire(key ackKey, wait *AckWaitInfo) {
	current, ok := m.waits[key]
	if !ok || current != wait {
		return
	}
	delete(m.waits, key)
	m.onTimeout(*wait)
}
