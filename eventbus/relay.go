package eventbus

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"

	"github.com/danielorbach/go-component"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"gocloud.dev/pubsub"
)

// Encode serialises e with gob. The concrete type of e must be registered with
// gob; the events declared by this package are.
func Encode(e Event) ([]byte, error) {
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(&e); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return b.Bytes(), nil
}

// Decode reconstructs an Event serialised by Encode.
func Decode(p []byte) (Event, error) {
	var e Event
	if err := gob.NewDecoder(bytes.NewReader(p)).Decode(&e); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	if e == nil {
		return nil, errors.New("gob decode: nil event")
	}
	return e, nil
}

// Forward returns a Subscriber sending every event it handles to topic, so a
// Relay in another process can republish them.
//
// Do not subscribe a Forward to a bus fed by a Relay of the same topic; events
// would circulate forever.
func Forward(topic *pubsub.Topic) Subscriber {
	return Func(func(ctx context.Context, e Event) error {
		body, err := Encode(e)
		if err != nil {
			return err
		}
		msg := &pubsub.Message{
			Body: body,
			Metadata: map[string]string{
				"event-id":   e.ID().String(),
				"event-type": e.Type().String(),
			},
		}
		if err := topic.Send(ctx, msg); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		return nil
	})
}

// Relay returns a component.Proc that receives events from sub and publishes
// them on bus.
//
// Every message is acknowledged, including those that fail to decode; such
// messages are logged and skipped so a single bad payload never blocks the
// stream.
func Relay(sub *pubsub.Subscription, bus *Bus) component.Proc {
	return func(l *component.L) {
		for l.Continue() {
			msg, err := sub.Receive(l.GraceContext())
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					// we're shutting down
					return
				}
				l.Fatal(fmt.Errorf("receive: %w", err))
			}
			msg.Ack()
			relayMessage(l.Context(), bus, msg)
		}
	}
}

func relayMessage(ctx context.Context, bus *Bus, msg *pubsub.Message) {
	e, err := Decode(msg.Body)
	if err != nil {
		component.Logger(ctx).Error("Couldn't decode relayed event, message skipped",
			slog.Any("error", err),
			slog.String("msg-id", msg.LoggableID),
		)
		return
	}
	relayedEvents.Add(ctx, 1, metric.WithAttributes(attribute.String(eventTypeKey, e.Type().String())))
	bus.Publish(ctx, e)
}
