// Package modeler connects the digital twins of modelling sessions to the
// views of a modeler application.
//
// A digital twin emits a stream of messages (see Message) about its knowledge
// graph, the observations submitted to it, its activities and its schedule. A
// Peer receives the messages of one scope, either directly from an EventSource
// or through a pubsub subscription (see Stream), and fans them out to the
// registered viewers (see Viewer).
//
// Viewers backed by UI elements report their lifecycle through an Attachment;
// the Peer forgets them, after a final Cleanup, once their element is detached.
//
// Application-wide notifications that do not originate from a digital twin
// travel on an eventbus.Bus instead.
package modeler
