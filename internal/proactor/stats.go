package proactor

import "time"

// Stats holds observational counters for the core loop. Mutated only
// by the loop goroutine; read via Snapshot. Never authoritative for
// correctness.
type Stats struct {
	// EventsProcessed counts dispatched events by kind.
	EventsProcessed map[EventKind]int

	// QueueHighWater is the deepest queue backlog observed at dispatch.
	QueueHighWater int

	// TimersFired counts timer callbacks run on the loop.
	TimersFired int

	// WatchdogChecks counts completed watchdog sweep cycles.
	WatchdogChecks int

	// LastDispatch is when the loop last finished a handler.
	LastDispatch time.Time

	// StartedAt is when the loop began consuming.
	StartedAt time.Time
}

func newStats() *Stats {
	return &Stats{EventsProcessed: make(map[EventKind]int)}
}

// StatsSnapshot is a copyable view of the loop's counters for
// diagnostics. All contained data is owned by the caller.
type StatsSnapshot struct {
	EventsProcessed map[EventKind]int `json:"events_processed"`
	QueueHighWater  int               `json:"queue_high_water"`
	TimersFired     int               `json:"timers_fired"`
	WatchdogChecks  int               `json:"watchdog_checks"`
	QueueDepth      int               `json:"queue_depth"`
	LastDispatch    time.Time         `json:"last_dispatch"`
	StartedAt       time.Time         `json:"started_at"`
	Uptime          string            `json:"uptime"`
}

func (s *Stats) snapshot(queueDepth int) StatsSnapshot {
	processed := make(map[EventKind]int, len(s.EventsProcessed))
	for k, v := range s.EventsProcessed {
		processed[k] = v
	}
	snap := StatsSnapshot{
		EventsProcessed: processed,
		QueueHighWater:  s.QueueHighWater,
		TimersFired:     s.TimersFired,
		WatchdogChecks:  s.WatchdogChecks,
		QueueDepth:      queueDepth,
		LastDispatch:    s.LastDispatch,
		StartedAt:       s.StartedAt,
	}
	if !s.StartedAt.IsZero() {
		snap.Uptime = time.Since(s.StartedAt).Round(time.Second).String()
	}
	return snap
}
