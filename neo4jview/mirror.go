package neo4jview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/danielorbach/go-component"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-digitaltwin/go-modeler"
)

// ErrClosed is returned by Mirror.Write after Cleanup.
var ErrClosed = errors.New("neo4jview: mirror is cleaned up")

// Mirror is a modeler.Viewer persisting every committed knowledge graph into a
// Neo4j database. It only reacts to KnowledgeGraphCommitted; the remaining
// callbacks are no-ops.
//
// Writes are serialised, so the last mirrored graph is always the last one
// committed. A Mirror is safe for concurrent use.
type Mirror struct {
	modeler.UnimplementedViewer

	ctx      context.Context // carries the logger, and bounds every write
	driver   neo4j.DriverWithContext
	database string

	mu     sync.Mutex
	last   modeler.GraphHash
	closed bool
}

// NewMirror returns a Mirror writing to database through d. The database must
// have been prepared with Bootstrap.
//
// Viewer callbacks carry no context, so ctx is used for each write: its logger
// (see component.Logger) reports failed writes, and cancelling it aborts them.
// The Mirror does not own d; closing the driver is left to the caller.
func NewMirror(ctx context.Context, d neo4j.DriverWithContext, database string) *Mirror {
	return &Mirror{
		ctx:      ctx,
		driver:   d,
		database: database,
	}
}

// KnowledgeGraphCommitted writes g to the database. Failures are logged at
// error level and counted.
func (m *Mirror) KnowledgeGraphCommitted(g modeler.KnowledgeGraph) {
	if err := m.Write(m.ctx, g); err != nil && !errors.Is(err, ErrClosed) {
		component.Logger(m.ctx).Error("Failed to mirror knowledge graph into neo4j",
			slog.Any("error", err),
			slog.String("neo4j.database", m.database),
			slog.String("graph", g.Hash().String()),
		)
	}
}

// Cleanup stops the Mirror: graphs committed afterwards are ignored.
func (m *Mirror) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

// Last returns the content address of the last graph written, and false if no
// graph was written yet.
func (m *Mirror) Last() (modeler.GraphHash, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, !m.last.IsZero()
}

// Write merges the nodes and edges of g into the database and records the
// commit, all in a single transaction. It returns ErrClosed after Cleanup.
func (m *Mirror) Write(ctx context.Context, g modeler.KnowledgeGraph) (err error) {
	hash := g.Hash()
	ctx, span := tracer.Start(ctx, "Mirror.Write", trace.WithAttributes(
		attribute.String("neo4j.database", m.database),
		attribute.Stringer("graph", hash),
		attribute.Int("graph.nodes", len(g.Nodes)),
		attribute.Int("graph.edges", len(g.Edges)),
	))
	defer func() {
		if err != nil && !errors.Is(err, ErrClosed) {
			mirrorFailures.Add(ctx, 1)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	s := m.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: m.database, AccessMode: neo4j.AccessModeWrite})
	defer func() { _ = s.Close(ctx) }()

	_, err = s.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, writeGraph(ctx, tx, g, hash)
	})
	if err != nil {
		return fmt.Errorf("execute write: %w", err)
	}
	m.last = hash
	mirroredGraphs.Add(ctx, 1)
	return nil
}

func writeGraph(ctx context.Context, tx neo4j.ManagedTransaction, g modeler.KnowledgeGraph, hash modeler.GraphHash) error {
	nodes := make([]map[string]any, len(g.Nodes))
	for i, n := range g.Nodes {
		nodes[i] = map[string]any{"id": n.ID, "kind": n.Kind, "label": n.Label}
	}
	result, err := tx.Run(ctx, `
		UNWIND $nodes AS node
		MERGE (n:`+EntityLabel+` {id: node.id})
		ON CREATE SET n._created_at = datetime()
		SET n.kind = node.kind, n.label = node.label, n._last_modified = datetime()
		RETURN count(n) AS nodes
	`, map[string]any{"nodes": nodes})
	if err != nil {
		return fmt.Errorf("merge nodes: %w", err)
	}
	if err := expectCount(ctx, result, "nodes", len(nodes)); err != nil {
		return fmt.Errorf("merge nodes: %w", err)
	}

	edges := make([]map[string]any, len(g.Edges))
	for i, e := range g.Edges {
		edges[i] = map[string]any{"from": e.From, "to": e.To, "relation": e.Relation}
	}
	result, err = tx.Run(ctx, `
		UNWIND $edges AS edge
		MATCH (a:`+EntityLabel+` {id: edge.from}), (b:`+EntityLabel+` {id: edge.to})
		MERGE (a)-[r:RELATES {relation: edge.relation}]->(b)
		RETURN count(r) AS edges
	`, map[string]any{"edges": edges})
	if err != nil {
		return fmt.Errorf("merge edges: %w", err)
	}
	// An edge whose endpoints are not part of the graph matches nothing, so a
	// short count means the graph refers to unknown nodes.
	if err := expectCount(ctx, result, "edges", len(edges)); err != nil {
		return fmt.Errorf("merge edges: %w", err)
	}

	ca, err := hash.MarshalText()
	if err != nil {
		return fmt.Errorf("marshal graph hash: %w", err)
	}
	_, err = tx.Run(ctx, `
		MERGE (c:`+CommitLabel+` {hash: $hash})
		SET c.committed_at = $committed, c.nodes = $nodes, c.edges = $edges
	`, map[string]any{
		"hash":      string(ca),
		"committed": g.Committed,
		"nodes":     len(g.Nodes),
		"edges":     len(g.Edges),
	})
	if err != nil {
		return fmt.Errorf("merge commit: %w", err)
	}
	return nil
}

// expectCount consumes the single record of result and checks its key column
// holds want.
func expectCount(ctx context.Context, result neo4j.ResultWithContext, key string, want int) error {
	record, err := result.Single(ctx)
	if err != nil {
		return fmt.Errorf("query single result: %w", err)
	}
	got, err := getRecordProperty[int64](record, key)
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if got != int64(want) {
		return fmt.Errorf("wrote %d %s instead of %d", got, key, want)
	}
	return nil
}

var errPropertyNotFound = errors.New("property not found")

type unexpectedPropertyTypeError struct {
	Type reflect.Type
}

func (e unexpectedPropertyTypeError) Error() string {
	return fmt.Sprintf("unexpected property type %v", e.Type)
}

func getRecordProperty[T any](record *neo4j.Record, key string) (value T, err error) {
	prop, exists := record.Get(key)
	if !exists {
		return value, errPropertyNotFound
	}
	v, ok := prop.(T)
	if !ok {
		return value, unexpectedPropertyTypeError{Type: reflect.TypeOf(prop)}
	}
	return v, nil
}
