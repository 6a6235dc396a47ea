package modeler

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("github.com/go-digitaltwin/go-modeler")
var meter = otel.Meter("github.com/go-digitaltwin/go-modeler")

const (
	// messageKind is the attribute key associating each record with the Kind of
	// the dispatched message, so dispatches can be analysed per kind as well as
	// collectively.
	messageKind = "message.kind"
)

var (
	// dispatchDuration measures the duration of a single Peer.ProcessMessage,
	// including every viewer callback.
	//
	// Each record is associated with the messageKind.
	dispatchDuration metric.Float64Histogram
	// unhandledMessages counts messages outside the closed set a Peer
	// dispatches.
	unhandledMessages metric.Int64Counter
	// viewerFaults counts viewer callbacks that panicked.
	viewerFaults metric.Int64Counter
	// decodeFailures counts pubsub messages Stream could not decode.
	decodeFailures metric.Int64Counter
)

func init() {
	var err error
	dispatchDuration, err = meter.Float64Histogram(
		"peer.dispatch.duration",
		metric.WithDescription("The duration of dispatching a single digital-twin message to the viewers of a peer."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic("modeler: failed to init 'peer.dispatch.duration' instrument")
	}

	unhandledMessages, err = meter.Int64Counter(
		"peer.messages.unhandled",
		metric.WithDescription("The number of digital-twin messages outside the set a peer dispatches."),
	)
	if err != nil {
		panic("modeler: failed to init 'peer.messages.unhandled' instrument")
	}

	viewerFaults, err = meter.Int64Counter(
		"peer.viewer.faults",
		metric.WithDescription("The number of viewer callbacks that panicked."),
	)
	if err != nil {
		panic("modeler: failed to init 'peer.viewer.faults' instrument")
	}

	decodeFailures, err = meter.Int64Counter(
		"stream.decode.failures",
		metric.WithDescription("The number of pubsub messages that could not be decoded into digital-twin messages."),
	)
	if err != nil {
		panic("modeler: failed to init 'stream.decode.failures' instrument")
	}
}

// measureDispatch records the duration of a dispatch, labelled with the kind
// of the dispatched message.
//
// We use floating-point division for higher precision than the Milliseconds
// method provides.
func measureDispatch(ctx context.Context, kind Kind, d time.Duration) {
	attrs := attribute.NewSet(attribute.String(messageKind, kind.String()))
	dispatchDuration.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributeSet(attrs))
}
