package modeler

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
)

// Kind is the discriminant of a Message.
type Kind int

const (
	KindUnknown Kind = iota
	KindKnowledgeGraphCommitted
	KindContextualizationStarted
	KindContextualizationSucceeded
	KindContextualizationAborted
	KindSubmissionStarted
	KindSubmissionAborted
	KindSubmissionFinished
	KindActivityStarted
	KindActivityFinished
	KindScheduleModified
)

var kindNames = map[Kind]string{
	KindUnknown:                    "unknown",
	KindKnowledgeGraphCommitted:    "knowledge-graph-committed",
	KindContextualizationStarted:   "contextualization-started",
	KindContextualizationSucceeded: "contextualization-succeeded",
	KindContextualizationAborted:   "contextualization-aborted",
	KindSubmissionStarted:          "submission-started",
	KindSubmissionAborted:          "submission-aborted",
	KindSubmissionFinished:         "submission-finished",
	KindActivityStarted:            "activity-started",
	KindActivityFinished:           "activity-finished",
	KindScheduleModified:           "schedule-modified",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Message is a notification emitted by a digital twin. Each concrete message
// type owns its payload, so the Kind always agrees with the payload carried.
//
// The set of messages is closed: a Peer handles exactly the types declared in
// this file, as values (not pointers). Anything else is reported as an
// UnhandledMessageError.
type Message interface {
	Kind() Kind
}

// Register the messages with gob, so they can travel as Message interface
// values (see Encode, Notifier and Stream).
func init() {
	gob.Register(KnowledgeGraphCommitted{})
	gob.Register(ContextualizationStarted{})
	gob.Register(ContextualizationSucceeded{})
	gob.Register(ContextualizationAborted{})
	gob.Register(SubmissionStarted{})
	gob.Register(SubmissionAborted{})
	gob.Register(SubmissionFinished{})
	gob.Register(ActivityStarted{})
	gob.Register(ActivityFinished{})
	gob.Register(ScheduleModified{})
}

// KnowledgeGraphCommitted notifies that the digital twin committed its
// knowledge graph.
type KnowledgeGraphCommitted struct {
	Graph KnowledgeGraph
}

// ContextualizationStarted, ContextualizationSucceeded and
// ContextualizationAborted track the resolution of an observation within a
// context.
type ContextualizationStarted struct {
	Observation Observation
}

type ContextualizationSucceeded struct {
	Observation Observation
}

type ContextualizationAborted struct {
	Observation Observation
	Reason      string
}

// SubmissionStarted, SubmissionAborted and SubmissionFinished track an
// observation submitted to the digital twin.
type SubmissionStarted struct {
	Observation Observation
}

type SubmissionAborted struct {
	Observation Observation
	Reason      string
}

type SubmissionFinished struct {
	Observation Observation
}

// ActivityStarted and ActivityFinished track activities of the digital twin.
type ActivityStarted struct {
	Activity Activity
}

type ActivityFinished struct {
	Activity Activity
}

// ScheduleModified notifies that the simulated schedule has changed.
type ScheduleModified struct {
	Schedule Schedule
}

func (KnowledgeGraphCommitted) Kind() Kind    { return KindKnowledgeGraphCommitted }
func (ContextualizationStarted) Kind() Kind   { return KindContextualizationStarted }
func (ContextualizationSucceeded) Kind() Kind { return KindContextualizationSucceeded }
func (ContextualizationAborted) Kind() Kind   { return KindContextualizationAborted }
func (SubmissionStarted) Kind() Kind          { return KindSubmissionStarted }
func (SubmissionAborted) Kind() Kind          { return KindSubmissionAborted }
func (SubmissionFinished) Kind() Kind         { return KindSubmissionFinished }
func (ActivityStarted) Kind() Kind            { return KindActivityStarted }
func (ActivityFinished) Kind() Kind           { return KindActivityFinished }
func (ScheduleModified) Kind() Kind           { return KindScheduleModified }

// An UnhandledMessageError reports a message outside the closed set of
// messages a Peer dispatches.
type UnhandledMessageError struct {
	Kind Kind
	Type string // Go type of the message, e.g. "*modeler.ActivityStarted"
}

func (e *UnhandledMessageError) Error() string {
	return fmt.Sprintf("unhandled digital-twin message %v (type %s)", e.Kind, e.Type)
}

func newUnhandledMessageError(msg Message) *UnhandledMessageError {
	if msg == nil {
		return &UnhandledMessageError{Kind: KindUnknown, Type: "<nil>"}
	}
	return &UnhandledMessageError{Kind: msg.Kind(), Type: fmt.Sprintf("%T", msg)}
}

// Encode serialises msg with gob.
func Encode(msg Message) ([]byte, error) {
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(&msg); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return b.Bytes(), nil
}

// Decode reconstructs a Message serialised by Encode.
func Decode(p []byte) (Message, error) {
	var msg Message
	if err := gob.NewDecoder(bytes.NewReader(p)).Decode(&msg); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	if msg == nil {
		return nil, errors.New("gob decode: nil message")
	}
	return msg, nil
}
