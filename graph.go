package modeler

import (
	"cmp"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"time"
)

// KnowledgeGraph is the payload of a KnowledgeGraphCommitted message: the
// observations, actuators and provenance records a digital twin has committed,
// as a directed graph.
type KnowledgeGraph struct {
	Nodes     []Node
	Edges     []Edge
	Committed time.Time // UTC; the graph is accurate up to this instant
}

// Node is a vertex of a KnowledgeGraph. Its ID is unique within the graph.
type Node struct {
	ID    string
	Kind  string // e.g. "observation", "actuator", "activity"
	Label string
}

// Edge is a directed, labelled relation between two nodes of a KnowledgeGraph.
type Edge struct {
	From, To string
	Relation string
}

// Hash computes a content address over the nodes and edges of g. The order in
// which nodes and edges appear does not affect the result, nor does the commit
// time.
func (g KnowledgeGraph) Hash() GraphHash {
	h := sha1.New()

	nodes := slices.Clone(g.Nodes)
	slices.SortFunc(nodes, func(a, b Node) int {
		return cmp.Or(
			strings.Compare(a.ID, b.ID),
			strings.Compare(a.Kind, b.Kind),
			strings.Compare(a.Label, b.Label),
		)
	})
	for _, n := range nodes {
		// length-prefixed to tell apart ("ab","c") from ("a","bc")
		fmt.Fprintf(h, "n%d:%s%d:%s%d:%s", len(n.ID), n.ID, len(n.Kind), n.Kind, len(n.Label), n.Label)
	}

	edges := slices.Clone(g.Edges)
	slices.SortFunc(edges, func(a, b Edge) int {
		return cmp.Or(
			strings.Compare(a.From, b.From),
			strings.Compare(a.To, b.To),
			strings.Compare(a.Relation, b.Relation),
		)
	})
	for _, e := range edges {
		fmt.Fprintf(h, "e%d:%s%d:%s%d:%s", len(e.From), e.From, len(e.To), e.To, len(e.Relation), e.Relation)
	}

	var sum GraphHash
	h.Sum(sum[:0])
	return sum
}

// GraphHash is the content address of a KnowledgeGraph.
type GraphHash [sha1.Size]byte

func (h GraphHash) String() string { return "graph(" + hex.EncodeToString(h[:]) + ")" }
func (h GraphHash) IsZero() bool   { return h == GraphHash{} }

func (h GraphHash) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h[:])), nil
}

func (h *GraphHash) UnmarshalText(text []byte) error {
	if hex.DecodedLen(len(text)) != len(h) {
		return fmt.Errorf("graph hash: invalid length %d", len(text))
	}
	_, err := hex.Decode(h[:], text)
	return err
}

// Observation is the payload of observation-submission messages.
type Observation struct {
	URN        string
	Name       string
	Observable string
	Submitted  time.Time
}

// ActivityOutcome enumerates how an activity ended.
type ActivityOutcome int

const (
	OutcomeUnknown ActivityOutcome = iota // still running, or not reported
	OutcomeSucceeded
	OutcomeFailed
	OutcomeAborted
)

func (o ActivityOutcome) String() string {
	switch o {
	case OutcomeUnknown:
		return "unknown"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeAborted:
		return "aborted"
	default:
		return fmt.Sprintf("ActivityOutcome(%d)", int(o))
	}
}

// Activity is the payload of activity messages: a unit of work performed by
// the digital twin, possibly nested in a parent activity.
type Activity struct {
	ID          string
	Parent      string // empty for top-level activities
	Description string
	Start, End  time.Time
	Outcome     ActivityOutcome
}

// Schedule is the payload of ScheduleModified: the temporal extent the digital
// twin simulates and the instants it has scheduled transitions at.
type Schedule struct {
	Start, End  time.Time
	Resolution  time.Duration
	Transitions []time.Time
}
