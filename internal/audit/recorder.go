package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oakfield-systems/edgelink-core/internal/message"
)

const (
	// recorderQueueSize bounds how many events may wait for the writer.
	recorderQueueSize = 256

	// insertTimeout bounds one audit insert.
	insertTimeout = 5 * time.Second

	// recorderStopWait bounds how long Stop waits for the writer to drain.
	recorderStopWait = 5 * time.Second
)

// Logger defines the logging interface for the audit layer.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Recorder writes domain events to the audit trail from its own
// goroutine, so the core loop never blocks on SQLite. Record never
// blocks; when the writer falls behind, events are dropped and counted.
type Recorder struct {
	repo   Repository
	logger Logger

	queue  chan message.Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	dropped atomic.Uint64
}

// NewRecorder starts the writer goroutine.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Recorder{
		repo:   repo,
		logger: logger,
		queue:  make(chan message.Event, recorderQueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Record queues an event for the audit trail. Safe for concurrent use.
func (r *Recorder) Record(ev message.Event) {
	select {
	case r.queue <- ev:
	default:
		n := r.dropped.Add(1)
		if n%100 == 1 {
			r.logger.Warn("audit recorder backlog full, dropping events", "dropped_total", n)
		}
	}
}

// Dropped returns how many events were discarded due to backlog.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Stop drains queued events, then stops the writer with a bounded wait.
func (r *Recorder) Stop() {
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(recorderStopWait):
		r.logger.Warn("audit recorder did not drain in time")
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for {
		select {
		case ev := <-r.queue:
			r.write(ev)
		case <-r.ctx.Done():
			// Drain whatever is already queued before exiting.
			for {
				select {
				case ev := <-r.queue:
					r.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(ev message.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	entry := FromMessageEvent(ev)
	if err := r.repo.Create(ctx, &entry); err != nil {
		r.logger.Error("audit insert failed", "kind", ev.Kind, "error", err)
	}
}

// FromMessageEvent maps a domain event onto an audit entry. The event
// uid becomes MessageID so an audit row can be matched against broker
// traffic and the durable store.
func FromMessageEvent(ev message.Event) CommEvent {
	entry := CommEvent{
		Link:      ev.Link,
		Kind:      string(ev.Kind),
		MessageID: ev.UID,
		Details:   ev.Details,
		CreatedAt: ev.Time,
	}
	if s, ok := ev.Details["summary"].(string); ok {
		entry.Summary = s
	}
	return entry
}
