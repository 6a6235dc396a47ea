package neo4jview

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("github.com/go-digitaltwin/go-modeler/neo4jview")
var meter = otel.Meter("github.com/go-digitaltwin/go-modeler/neo4jview")

var (
	// mirroredGraphs counts the knowledge graphs written to the database.
	mirroredGraphs metric.Int64Counter
	// mirrorFailures counts the knowledge graphs that could not be written.
	// Viewer callbacks cannot return errors, so this counter (and the log) is
	// the only trace a failed write leaves.
	mirrorFailures metric.Int64Counter
)

func init() {
	var err error
	mirroredGraphs, err = meter.Int64Counter(
		"neo4jview.graphs.mirrored",
		metric.WithDescription("The number of knowledge graphs mirrored into neo4j."),
	)
	if err != nil {
		panic(fmt.Sprintf("neo4jview: failed to init 'neo4jview.graphs.mirrored' instrument: %v", err))
	}

	mirrorFailures, err = meter.Int64Counter(
		"neo4jview.graphs.failed",
		metric.WithDescription("The number of knowledge graphs that failed to mirror into neo4j."),
	)
	if err != nil {
		panic(fmt.Sprintf("neo4jview: failed to init 'neo4jview.graphs.failed' instrument: %v", err))
	}
}
