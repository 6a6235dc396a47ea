package modeler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/danielorbach/go-component"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gocloud.dev/pubsub"
)

// kindMetadata is the pubsub metadata key carrying the Kind of an encoded
// message, so brokers may filter without decoding bodies.
const kindMetadata = "kind"

// Notifier publishes the messages of a digital twin to a pubsub topic. It is
// the engine-side counterpart of Stream.
type Notifier struct {
	topic *pubsub.Topic
}

// NewNotifier returns a Notifier sending to topic.
func NewNotifier(topic *pubsub.Topic) *Notifier {
	return &Notifier{topic: topic}
}

// Notify encodes msg and sends it to the topic.
func (n *Notifier) Notify(ctx context.Context, msg Message) error {
	ctx, span := tracer.Start(ctx, "Notifier.Notify", trace.WithAttributes(
		attribute.Stringer("message.kind", msg.Kind()),
	))
	defer span.End()

	body, err := Encode(msg)
	if err != nil {
		span.RecordError(err)
		return err
	}
	err = n.topic.Send(ctx, &pubsub.Message{
		Body:     body,
		Metadata: map[string]string{kindMetadata: msg.Kind().String()},
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Stream returns a component.Proc that continuously receives messages from sub,
// decodes them and hands them to c (usually Peer.ProcessMessage or
// Broadcaster.Deliver).
//
// Every message is acknowledged, even one that fails to decode; otherwise we
// might get stuck receiving the same broken message. Decoding failures are
// logged at error level.
func Stream(sub *pubsub.Subscription, c Consumer) component.Proc {
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
			consume(l.Context(), c, msg)
		}
	}
}

// consume decodes a single pubsub message and hands it to c.
func consume(ctx context.Context, c Consumer, msg *pubsub.Message) {
	m, err := Decode(msg.Body)
	if err != nil {
		decodeFailures.Add(ctx, 1)
		component.Logger(ctx).Error("Couldn't decode digital-twin message, message skipped",
			slog.Any("error", err),
			slog.String("msg-id", msg.LoggableID),
			slog.String("declared-kind", msg.Metadata[kindMetadata]),
		)
		return
	}
	c(ctx, m)
}
