package events

import (
	"context"
	"sync"
)

// Recorder keeps published events in memory. It backs tests and local tooling.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

// Recorded is an event with its subject.
type Recorded struct {
	Subject string
	Event   Event
}

func (r *Recorder) Publish(_ context.Context, subject string, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{Subject: subject, Event: event})
	return nil
}

func (r *Recorder) Close() {}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.events...)
}

// Subjects returns the subjects published so far, in order.
func (r *Recorder) Subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Subject)
	}
	return out
}
