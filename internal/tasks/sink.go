package tasks

import (
	"sync"

	"github.com/desertthunder/gamekeep/internal/models"
)

// Sink receives progress and terminal outcomes keyed by game.
type Sink interface {
	Progress(id models.GameIdentity, snap models.ProgressSnapshot)
	Finished(id models.GameIdentity, outcome models.OperationOutcome)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Progress(models.GameIdentity, models.ProgressSnapshot)  {}
func (NopSink) Finished(models.GameIdentity, models.OperationOutcome) {}

// Event is one notification delivered by a [ChannelSink]. Exactly one of Snapshot and Outcome is set.
type Event struct {
	Identity models.GameIdentity
	Snapshot *models.ProgressSnapshot
	Outcome  *models.OperationOutcome
}

// Terminal reports whether the event carries an outcome.
func (e Event) Terminal() bool { return e.Outcome != nil }

// ChannelSink forwards notifications over a buffered channel.
type ChannelSink struct {
	events chan Event
}

// NewChannelSink creates a sink whose channel holds buffer events.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{events: make(chan Event, buffer)}
}

// Events returns the receive side of the channel.
func (s *ChannelSink) Events() <-chan Event { return s.events }

// Progress sends without blocking. Snapshots are dropped while the buffer is full.
func (s *ChannelSink) Progress(id models.GameIdentity, snap models.ProgressSnapshot) {
	select {
	case s.events <- Event{Identity: id, Snapshot: &snap}:
	default:
	}
}

// Finished blocks until the outcome is accepted.
func (s *ChannelSink) Finished(id models.GameIdentity, outcome models.OperationOutcome) {
	s.events <- Event{Identity: id, Outcome: &outcome}
}

// runSink scopes a sink to one run. Once closed, late snapshots are dropped.
type runSink struct {
	id   models.GameIdentity
	sink Sink

	mu     sync.Mutex
	closed bool
}

func newRunSink(id models.GameIdentity, sink Sink) *runSink {
	return &runSink{id: id, sink: sink}
}

func (r *runSink) progress(snap models.ProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.sink.Progress(r.id, snap)
}

// finish closes the run and delivers the outcome exactly once.
func (r *runSink) finish(outcome models.OperationOutcome) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	r.sink.Finished(r.id, outcome)
}
