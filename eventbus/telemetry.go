package eventbus

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("github.com/go-digitaltwin/go-modeler/eventbus")
var meter = otel.Meter("github.com/go-digitaltwin/go-modeler/eventbus")

// eventTypeKey labels records with the published event's type path.
const eventTypeKey = "event.type"

var (
	// deliveries counts the events handed to subscribers, one per subscriber per
	// matching type.
	deliveries metric.Int64Counter
	// subscriberFaults counts the deliveries that ended with an error or a panic.
	subscriberFaults metric.Int64Counter
	// relayedEvents counts the events received by Relay and republished locally.
	relayedEvents metric.Int64Counter
)

func init() {
	var err error
	deliveries, err = meter.Int64Counter(
		"eventbus.deliveries",
		metric.WithDescription("The number of events delivered to subscribers."),
	)
	if err != nil {
		panic("eventbus: failed to init 'eventbus.deliveries' instrument")
	}

	subscriberFaults, err = meter.Int64Counter(
		"eventbus.subscriber.faults",
		metric.WithDescription("The number of deliveries where the subscriber returned an error or panicked."),
	)
	if err != nil {
		panic("eventbus: failed to init 'eventbus.subscriber.faults' instrument")
	}

	relayedEvents, err = meter.Int64Counter(
		"eventbus.relayed",
		metric.WithDescription("The number of events received from a pubsub subscription and republished on a bus."),
	)
	if err != nil {
		panic("eventbus: failed to init 'eventbus.relayed' instrument")
	}
}

func measurePublish(ctx context.Context, t *Type, delivered, faults int) {
	attrs := attribute.NewSet(attribute.String(eventTypeKey, t.String()))
	deliveries.Add(ctx, int64(delivered), metric.WithAttributeSet(attrs))
	if faults > 0 {
		subscriberFaults.Add(ctx, int64(faults), metric.WithAttributeSet(attrs))
	}
}
