package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oakfield-systems/edgelink-core/internal/message"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// fakeRepo captures created entries. When gate is non-nil, Create
// blocks until the gate closes.
type fakeRepo struct {
	mu      sync.Mutex
	entries []CommEvent
	gate    chan struct{}
}

func (f *fakeRepo) Create(_ context.Context, ev *CommEvent) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *ev)
	return nil
}

func (f *fakeRepo) List(context.Context, Filter) (*ListResult, error) {
	return &ListResult{Events: []CommEvent{}}, nil
}

func (f *fakeRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func TestRecorderWritesEvents(t *testing.T) {
	repo := &fakeRepo{}
	rec := NewRecorder(repo, nopLogger{})

	ev := message.NewCommEvent(message.KindMQTTConnect, "scada-12", "parent", nil)
	rec.Record(ev)
	rec.Stop()

	if got := repo.count(); got != 1 {
		t.Fatalf("entries = %d, want 1", got)
	}
	repo.mu.Lock()
	entry := repo.entries[0]
	repo.mu.Unlock()
	if entry.Kind != string(message.KindMQTTConnect) {
		t.Errorf("Kind = %q", entry.Kind)
	}
	if entry.Link != "parent" {
		t.Errorf("Link = %q", entry.Link)
	}
	if entry.MessageID != ev.UID {
		t.Errorf("MessageID = %q, want event uid %q", entry.MessageID, ev.UID)
	}
}

func TestRecorderStopDrains(t *testing.T) {
	repo := &fakeRepo{}
	rec := NewRecorder(repo, nopLogger{})

	for i := 0; i < 20; i++ {
		rec.Record(message.NewCommEvent(message.KindMQTTConnect, "scada-12", "parent", nil))
	}
	rec.Stop()

	if got := repo.count(); got != 20 {
		t.Errorf("entries after Stop = %d, want 20", got)
	}
}

func TestRecorderDropsWhenBacklogged(t *testing.T) {
	gate := make(chan struct{})
	repo := &fakeRepo{gate: gate}
	rec := NewRecorder(repo, nopLogger{})

	// One write can be in flight with recorderQueueSize queued behind
	// it; anything beyond that must drop rather than block.
	total := recorderQueueSize + 10
	for i := 0; i < total; i++ {
		rec.Record(message.NewCommEvent(message.KindMQTTConnect, "scada-12", "parent", nil))
	}
	dropped := rec.Dropped()
	if dropped == 0 {
		t.Fatal("expected drops with a blocked writer")
	}

	close(gate)
	rec.Stop()

	if got := repo.count(); uint64(got)+dropped != uint64(total) {
		t.Errorf("written %d + dropped %d != recorded %d", got, dropped, total)
	}
}

func TestFromMessageEventSummary(t *testing.T) {
	ev := message.NewProblemEvent("scada-12", "ack timeout", map[string]any{"message_id": "uid-1"})
	entry := FromMessageEvent(ev)

	if entry.Kind != string(message.KindProblem) {
		t.Errorf("Kind = %q", entry.Kind)
	}
	if entry.Summary != "ack timeout" {
		t.Errorf("Summary = %q", entry.Summary)
	}
	if entry.Details["message_id"] != "uid-1" {
		t.Errorf("Details = %v", entry.Details)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt not carried over")
	}
}

func TestRecorderStopIsBounded(t *testing.T) {
	repo := &fakeRepo{}
	rec := NewRecorder(repo, nopLogger{})

	done := make(chan struct{})
	go func() {
		rec.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(recorderStopWait + time.Second):
		t.Fatal("Stop() did not return")
	}
}
