package link

import (
	"time"
)

// commEventLogSize bounds the per-link in-memory transition log.
const commEventLogSize = 50

// CommEventRecord is one entry in a link's in-memory transition log.
type CommEventRecord struct {
	Time  time.Time `json:"time"`
	Input Input     `json:"input"`
	Old   State     `json:"old"`
	New   State     `json:"new"`
}

// LinkStats holds per-link observational counters. Mutated only by the
// proactor core loop; never authoritative for correctness.
type LinkStats struct {
	// MessagesSent counts outbound envelopes by type.
	MessagesSent map[string]int

	// MessagesReceived counts inbound envelopes by type.
	MessagesReceived map[string]int

	// Timeouts counts ack timer expiries.
	Timeouts int

	// AcksReceived counts peer acknowledgments.
	AcksReceived int

	// ReuploadsStarted counts reupload sessions.
	ReuploadsStarted int

	// EventsReuploaded counts events re-sent during reupload sessions.
	EventsReuploaded int

	// LastSend and LastRecv are the link's message-timing record.
	LastSend time.Time
	LastRecv time.Time

	// CommEvents is a bounded log of recent state transitions,
	// newest last.
	CommEvents []CommEventRecord
}

// NewLinkStats creates zeroed stats.
func NewLinkStats() *LinkStats {
	return &LinkStats{
		MessagesSent:     make(map[string]int),
		MessagesReceived: make(map[string]int),
	}
}

// RecordSend counts one outbound envelope of the given type.
func (s *LinkStats) RecordSend(messageType string) {
	s.MessagesSent[messageType]++
	s.LastSend = time.Now().UTC()
}

// RecordRecv counts one inbound envelope of the given type.
func (s *LinkStats) RecordRecv(messageType string) {
	s.MessagesReceived[messageType]++
	s.LastRecv = time.Now().UTC()
}

// RecordTransition appends a transition to the bounded comm-event log.
func (s *LinkStats) RecordTransition(tr Transition) {
	s.CommEvents = append(s.CommEvents, CommEventRecord{
		Time:  time.Now().UTC(),
		Input: tr.Input,
		Old:   tr.Old,
		New:   tr.New,
	})
	if len(s.CommEvents) > commEventLogSize {
		s.CommEvents = s.CommEvents[len(s.CommEvents)-commEventLogSize:]
	}
}

// Snapshot is a copyable view of one link for diagnostics.
type Snapshot struct {
	Name             string            `json:"name"`
	Peer             string            `json:"peer"`
	Upstream         bool              `json:"upstream"`
	Downstream       bool              `json:"downstream"`
	State            State             `json:"state"`
	ActiveForSend    bool              `json:"active_for_send"`
	MessagesSent     map[string]int    `json:"messages_sent"`
	MessagesReceived map[string]int    `json:"messages_received"`
	Timeouts         int               `json:"timeouts"`
	AcksReceived     int               `json:"acks_received"`
	ReuploadsStarted int               `json:"reuploads_started"`
	EventsReuploaded int               `json:"events_reuploaded"`
	Reuploading      bool              `json:"reuploading"`
	LastSend         time.Time         `json:"last_send"`
	LastRecv         time.Time         `json:"last_recv"`
	CommEvents       []CommEventRecord `json:"comm_events"`
}

// snapshot builds a Snapshot from a link's current state. Map and
// slice fields are copied so the caller can hold the result off-loop.
func (l *Link) snapshot() Snapshot {
	sent := make(map[string]int, len(l.stats.MessagesSent))
	for k, v := range l.stats.MessagesSent {
		sent[k] = v
	}
	received := make(map[string]int, len(l.stats.MessagesReceived))
	for k, v := range l.stats.MessagesReceived {
		received[k] = v
	}
	events := make([]CommEventRecord, len(l.stats.CommEvents))
	copy(events, l.stats.CommEvents)

	return Snapshot{
		Name:             l.name,
		Peer:             l.peer,
		Upstream:         l.upstream,
		Downstream:       l.downstream,
		State:            l.state.State(),
		ActiveForSend:    l.state.ActiveForSend(),
		MessagesSent:     sent,
		MessagesReceived: received,
		Timeouts:         l.stats.Timeouts,
		AcksReceived:     l.stats.AcksReceived,
		ReuploadsStarted: l.stats.ReuploadsStarted,
		EventsReuploaded: l.stats.EventsReuploaded,
		Reuploading:      l.reupload.Reuploading(),
		LastSend:         l.stats.LastSend,
		LastRecv:         l.stats.LastRecv,
		CommEvents:       events,
	}
}
