package link

// ReuploadTracker is the per-link sliding-window flow control for
// redelivering persisted events after a reconnection.
//
// Events persisted before the peer went away are redelivered in
// original order, but at most the window size may be re-sent and
// unacknowledged at any instant. Each ack for a tracked uid releases
// exactly one more from the waiting queue.
//
// Thread Safety:
//   - NOT safe for concurrent use. Owned by the proactor core loop.
type ReuploadTracker struct {
	window  int
	waiting []string
	unacked map[string]bool
}

// NewReuploadTracker creates a tracker with the given window size (the
// maximum number of unacknowledged re-sent events).
func NewReuploadTracker(window int) *ReuploadTracker {
	return &ReuploadTracker{
		window:  window,
		unacked: make(map[string]bool),
	}
}

// Start begins a reupload session over pending, the full ordered set
// of persisted-but-unacknowledged uids. It returns up to window uids
// to send immediately and remembers the remainder as waiting. Any
// previous session's bookkeeping is discarded.
func (r *ReuploadTracker) Start(pending []string) []string {
	r.unacked = make(map[string]bool, r.window)
	r.waiting = nil

	n := len(pending)
	if n > r.window {
		n = r.window
	}

	send := make([]string, n)
	copy(send, pending[:n])
	for _, uid := range send {
		r.unacked[uid] = true
	}

	if len(pending) > n {
		r.waiting = append(r.waiting, pending[n:]...)
	}
	return send
}

// ProcessAck records an ack for uid. If uid was part of the reupload
// batch it is removed from the unacknowledged set and, if any uids
// remain waiting, exactly one is released for sending. Acks for uids
// the tracker is not carrying return nil.
func (r *ReuploadTracker) ProcessAck(uid string) []string {
	if !r.unacked[uid] {
		return nil
	}
	delete(r.unacked, uid)

	if len(r.waiting) == 0 {
		return nil
	}
	next := r.waiting[0]
	r.waiting = r.waiting[1:]
	r.unacked[next] = true
	return []string{next}
}

// Reset abandons any session in progress. Used when the link drops or
// demotes: the next session rebuilds its view from the persister.
func (r *ReuploadTracker) Reset() {
	r.unacked = make(map[string]bool)
	r.waiting = nil
}

// Reuploading reports whether a reupload session is in progress: true
// while either the unacknowledged set or the waiting queue is non-empty.
func (r *ReuploadTracker) Reuploading() bool {
	return len(r.unacked) > 0 || len(r.waiting) > 0
}

// NumUnacked returns the number of re-sent, unacknowledged uids. The
// flow-control invariant is NumUnacked() <= window at every instant.
func (r *ReuploadTracker) NumUnacked() int {
	return len(r.unacked)
}

// NumWaiting returns the number of uids still queued for resending.
func (r *ReuploadTracker) NumWaiting() int {
	return len(r.waiting)
}

// Window returns the configured window size.
func (r *ReuploadTracker) Window() int {
	return r.window
}
