package testutil

import (
	"context"
	"sync"

	"declutter-go/internal/declutter"
)

// Event is one published event.
type Event struct {
	Subject string
	Payload any
}

// RecordingPublisher keeps published events in memory. Err, when set, is
// returned from every Publish after recording.
type RecordingPublisher struct {
	Err error

	mu     sync.Mutex
	events []Event
}

var _ declutter.EventPublisher = (*RecordingPublisher)(nil)

func (p *RecordingPublisher) Publish(_ context.Context, subject string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, Event{Subject: subject, Payload: payload})
	return p.Err
}

// Events returns the events published to subject, or all when subject is "".
func (p *RecordingPublisher) Events(subject string) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Event
	for _, e := range p.events {
		if subject == "" || e.Subject == subject {
			out = append(out, e)
		}
	}
	return out
}
