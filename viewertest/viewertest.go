/*
Package viewertest provides test doubles for the collaborators of a
[modeler.Peer]: viewers that record their calls, UI-backed viewers with an
[modeler.Attachment], and scopes whose digital twin is an in-memory
[modeler.EventSource].

It also carries Messages, one sample message of every kind a Peer accepts, and
Run, a suite checking that a viewer implementation tolerates all of them.
*/
package viewertest

import (
	"sync"
	"testing"
	"time"

	"github.com/go-digitaltwin/go-modeler"
)

// Call records a single viewer callback.
type Call struct {
	Method string
	Arg    any // nil for Cleanup
}

// Abort is the Arg recorded for SubmissionAborted.
type Abort struct {
	Observation modeler.Observation
	Reason      string
}

// Recorder is a modeler.Viewer remembering every call it receives.
//
// A Recorder is safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *Recorder) record(method string, arg any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Method: method, Arg: arg})
}

func (r *Recorder) KnowledgeGraphCommitted(g modeler.KnowledgeGraph) {
	r.record("KnowledgeGraphCommitted", g)
}
func (r *Recorder) SubmissionStarted(o modeler.Observation) { r.record("SubmissionStarted", o) }
func (r *Recorder) SubmissionAborted(o modeler.Observation, reason string) {
	r.record("SubmissionAborted", Abort{Observation: o, Reason: reason})
}
func (r *Recorder) SubmissionFinished(o modeler.Observation) { r.record("SubmissionFinished", o) }
func (r *Recorder) ActivityStarted(a modeler.Activity)       { r.record("ActivityStarted", a) }
func (r *Recorder) ActivityFinished(a modeler.Activity)      { r.record("ActivityFinished", a) }
func (r *Recorder) ScheduleModified(s modeler.Schedule)      { r.record("ScheduleModified", s) }
func (r *Recorder) Cleanup()                                 { r.record("Cleanup", nil) }

// Calls returns a copy of the recorded calls, in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Count returns how many times method was called.
func (r *Recorder) Count(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for _, c := range r.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Element is a Recorder backed by a UI element.
type Element struct {
	Recorder
	attachment modeler.Attachment
}

// NewElement returns an Element whose attachment is attached if attached is
// true.
func NewElement(attached bool) *Element {
	e := new(Element)
	if attached {
		e.attachment.Attach()
	}
	return e
}

func (e *Element) Attachment() *modeler.Attachment { return &e.attachment }

// Twin is a digital twin delivering messages to its consumers synchronously.
type Twin struct {
	modeler.Broadcaster
}

// Scope is a modeler.Scope with a Twin.
type Scope struct {
	ID   string
	Twin *Twin
}

// NewScope returns a Scope identified by id with a fresh Twin.
func NewScope(id string) *Scope {
	return &Scope{ID: id, Twin: new(Twin)}
}

func (s *Scope) ScopeID() string  { return s.ID }
func (s *Scope) DigitalTwin() any { return s.Twin }

// Messages returns one sample message of every kind a Peer accepts.
func Messages() []modeler.Message {
	at := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	obs := modeler.Observation{
		URN:        "im.hydrology:runoff",
		Name:       "runoff",
		Observable: "hydrology:Runoff",
		Submitted:  at,
	}
	act := modeler.Activity{
		ID:          "activity-1",
		Description: "Resolve runoff",
		Start:       at,
	}
	return []modeler.Message{
		modeler.KnowledgeGraphCommitted{Graph: modeler.KnowledgeGraph{
			Nodes: []modeler.Node{
				{ID: "ctx", Kind: "observation", Label: "region"},
				{ID: "runoff", Kind: "observation", Label: "runoff"},
			},
			Edges:     []modeler.Edge{{From: "ctx", To: "runoff", Relation: "contains"}},
			Committed: at,
		}},
		modeler.ContextualizationStarted{Observation: obs},
		modeler.ContextualizationSucceeded{Observation: obs},
		modeler.ContextualizationAborted{Observation: obs, Reason: "cancelled"},
		modeler.SubmissionStarted{Observation: obs},
		modeler.SubmissionAborted{Observation: obs, Reason: "cancelled"},
		modeler.SubmissionFinished{Observation: obs},
		modeler.ActivityStarted{Activity: act},
		modeler.ActivityFinished{Activity: modeler.Activity{
			ID:          act.ID,
			Description: act.Description,
			Start:       act.Start,
			End:         at.Add(time.Minute),
			Outcome:     modeler.OutcomeSucceeded,
		}},
		modeler.ScheduleModified{Schedule: modeler.Schedule{
			Start:       at,
			End:         at.AddDate(1, 0, 0),
			Resolution:  24 * time.Hour,
			Transitions: []time.Time{at, at.AddDate(0, 6, 0)},
		}},
	}
}

// Run hands every sample of Messages to the viewer returned by newViewer, each
// in its own subtest, the way a Peer would. A viewer passes if it handles them
// all without panicking; implementations should add their own checks of the
// effects.
func Run(t *testing.T, newViewer func(t *testing.T) modeler.Viewer) {
	t.Helper()
	v := newViewer(t)
	for _, msg := range Messages() {
		t.Run(msg.Kind().String(), func(t *testing.T) {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("%T panicked handling %T: %v", v, msg, r)
				}
			}()
			if err := modeler.Notify(v, msg); err != nil {
				t.Fatal("Notify():", err)
			}
		})
	}
}
