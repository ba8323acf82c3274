package proactor

import (
	"context"
	"sync"
	"time"
)

// ioTask is one unit of blocking work queued for the runner thread.
type ioTask struct {
	name   string
	run    func(ctx context.Context) (any, error)
	onDone func(result any, err error)
}

// TaskRunner executes blocking or long-running work off the core loop
// on a dedicated goroutine, then marshals each completion back onto the
// loop as a KindIOResult event. The core loop must never block, so
// anything that can stall (subprocess invocations, outbound HTTP,
// slow disk) goes through here.
//
// Thread Safety:
//   - Submit and Stop are safe for concurrent use.
//   - onDone callbacks always run on the core loop.
type TaskRunner struct {
	post   func(Event) bool
	logger Logger

	tasks  chan ioTask
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// taskQueueSize bounds how much blocking work may stack up before
// Submit starts refusing; a deep backlog means the runner is wedged.
const taskQueueSize = 32

// newTaskRunner creates and starts the runner.
func newTaskRunner(post func(Event) bool, logger Logger) *TaskRunner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &TaskRunner{
		post:   post,
		logger: logger,
		tasks:  make(chan ioTask, taskQueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

// Submit queues work for the runner thread. run receives a context
// cancelled at shutdown; onDone, if non-nil, runs on the core loop with
// run's result. Returns ErrTaskRunnerStopped after Stop and
// ErrTaskQueueFull when the backlog is full.
func (r *TaskRunner) Submit(name string, run func(ctx context.Context) (any, error), onDone func(any, error)) error {
	select {
	case <-r.ctx.Done():
		return ErrTaskRunnerStopped
	default:
	}
	select {
	case r.tasks <- ioTask{name: name, run: run, onDone: onDone}:
		return nil
	default:
		return ErrTaskQueueFull
	}
}

// Stop cancels the running task's context and joins the runner with a
// bounded wait. Queued tasks that never started are dropped; their
// onDone callbacks are not invoked.
func (r *TaskRunner) Stop(wait time.Duration) {
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(wait):
		r.logger.Warn("io task runner did not stop in time", "wait", wait)
	}
}

func (r *TaskRunner) loop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case task := <-r.tasks:
			r.runOne(task)
		}
	}
}

func (r *TaskRunner) runOne(task ioTask) {
	result, err := task.run(r.ctx)
	if task.onDone == nil {
		if err != nil {
			r.logger.Warn("io task failed", "task", task.name, "error", err)
		}
		return
	}
	delivered := r.post(Event{
		Kind:     KindIOResult,
		Fn:       func() { task.onDone(result, err) },
		Enqueued: time.Now(),
	})
	if !delivered {
		r.logger.Warn("io task result dropped, loop stopped", "task", task.name)
	}
}
