package modeler

import (
	"context"
	"sync"
)

// Scope identifies a modelling session, or context, and the digital twin that
// belongs to it. The modeler treats both as opaque.
type Scope interface {
	// ScopeID returns an identifier unique among the scopes of the process.
	ScopeID() string
	// DigitalTwin returns the engine-side digital twin of the scope. If it
	// implements EventSource, peers subscribe to its messages.
	DigitalTwin() any
}

// A Consumer receives the messages of a digital twin.
type Consumer func(ctx context.Context, msg Message)

// EventSource is implemented by digital twins that deliver their messages to
// registered consumers.
type EventSource interface {
	AddConsumer(c Consumer)
}

// Broadcaster is an EventSource delivering every message to all its consumers,
// in registration order. Digital twins may embed it.
//
// The zero value is ready to use. A Broadcaster is safe for concurrent use.
type Broadcaster struct {
	mu        sync.Mutex
	consumers []Consumer
}

func (b *Broadcaster) AddConsumer(c Consumer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consumers = append(b.consumers, c)
}

// Deliver hands msg to every consumer. It has the signature of a Consumer, so
// it can be passed to Stream.
func (b *Broadcaster) Deliver(ctx context.Context, msg Message) {
	b.mu.Lock()
	consumers := b.consumers[:len(b.consumers):len(b.consumers)]
	b.mu.Unlock()
	for _, c := range consumers {
		c(ctx, msg)
	}
}
