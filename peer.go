package modeler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/danielorbach/go-component"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Peer routes the messages of one scope's digital twin to a dynamic set of
// viewers.
//
// Create a single Peer per scope; NewPeer does not detect duplicates, and two
// peers of the same scope deliver every message twice. Peers.For enforces the
// rule for callers that cannot track their peers.
//
// A Peer has no explicit teardown: it lives as long as its scope.
type Peer struct {
	scope  Scope
	strict bool

	mu      sync.RWMutex
	viewers map[Viewer]*registration
	graph   Viewer
	asset   *Observation
}

// A registration is one Register call of a viewer. A viewer unregistered and
// registered again gets a new registration, so a detach observed for the old one
// cannot remove the new one.
type registration struct {
	stop func() // stops observing the attachment; nil if the viewer has none
}

// An Option configures a Peer.
type Option func(*Peer)

// WithStrict makes the Peer panic on messages outside the closed set it
// dispatches, instead of logging them. Enable it in development builds and
// tests.
func WithStrict(strict bool) Option {
	return func(p *Peer) {
		p.strict = strict
	}
}

// NewPeer returns a Peer for scope. If the digital twin of the scope is an
// EventSource, the Peer registers ProcessMessage as one of its consumers.
func NewPeer(scope Scope, opts ...Option) *Peer {
	p := &Peer{
		scope:   scope,
		viewers: make(map[Viewer]*registration),
	}
	for _, opt := range opts {
		opt(p)
	}
	if src, ok := scope.DigitalTwin().(EventSource); ok {
		src.AddConsumer(p.ProcessMessage)
	}
	return p
}

// Scope returns the scope of p.
func (p *Peer) Scope() Scope { return p.scope }

// Register adds v to the viewers of p; registering a viewer twice has no
// further effect.
//
// If v is an Element with a non-nil Attachment, p observes it: once the element
// transitions from attached to detached, p calls v.Cleanup and then removes v.
// This happens exactly once per registration. Viewers without an Attachment
// stay registered until their owner calls Unregister.
//
// Register panics if v is not comparable, which includes struct viewers whose
// interface fields hold slices or maps. Prefer pointers.
func (p *Peer) Register(v Viewer) {
	if v == nil {
		panic("modeler: register nil viewer")
	}
	if !hashable(v) {
		panic(fmt.Sprintf("modeler: register viewer of incomparable type %T", v))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, dup := p.viewers[v]; dup {
		return
	}
	reg := new(registration)
	if el, ok := v.(Element); ok {
		if a := el.Attachment(); a != nil {
			reg.stop = a.OnDetach(func() { p.detached(v, reg) })
		}
	}
	p.viewers[v] = reg
}

// detached cleans up after a viewer whose element left the visible hierarchy.
// It does nothing unless reg is still the current registration of v.
func (p *Peer) detached(v Viewer, reg *registration) {
	p.mu.RLock()
	current := p.viewers[v] == reg
	p.mu.RUnlock()
	if !current {
		return
	}
	v.Cleanup()
	// Cleanup may have unregistered v, and registered it again.
	p.mu.Lock()
	if p.viewers[v] == reg {
		delete(p.viewers, v)
	}
	p.mu.Unlock()
}

// hashable reports whether v can be used as a map key, checking the values
// held by interface fields as well as the type.
func hashable(v Viewer) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	m := make(map[Viewer]bool, 1)
	m[v] = true
	return m[v]
}

// Unregister removes v from the viewers of p, without calling Cleanup. It is a
// no-op if v is not registered.
func (p *Peer) Unregister(v Viewer) {
	p.mu.Lock()
	reg, ok := p.viewers[v]
	delete(p.viewers, v)
	p.mu.Unlock()
	if ok && reg.stop != nil {
		reg.stop()
	}
}

// Viewers returns a snapshot of the registered viewers, in no particular order.
func (p *Peer) Viewers() []Viewer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	viewers := make([]Viewer, 0, len(p.viewers))
	for v := range p.viewers {
		viewers = append(viewers, v)
	}
	return viewers
}

// Context returns the observation currently used as the context of the scope,
// and false if none was set.
func (p *Peer) Context() (Observation, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.asset == nil {
		return Observation{}, false
	}
	return *p.asset, true
}

// SetContext sets the observation used as the context of the scope.
func (p *Peer) SetContext(asset Observation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asset = &asset
}

// KnowledgeGraphView returns the viewer set as the knowledge-graph view of the
// scope, or nil.
func (p *Peer) KnowledgeGraphView() Viewer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.graph
}

// SetKnowledgeGraphView records v as the knowledge-graph view of the scope and
// registers it. Setting nil forgets the previous view, without unregistering
// it.
func (p *Peer) SetKnowledgeGraphView(v Viewer) {
	p.mu.Lock()
	p.graph = v
	p.mu.Unlock()
	if v != nil {
		p.Register(v)
	}
}

// ProcessMessage dispatches msg to the viewers registered when the dispatch
// starts. It has the signature of a Consumer.
//
// Contextualization messages, and submissions that started or aborted, are
// accepted but not forwarded. Messages outside the closed set declared by this
// package are logged at error level, or cause a panic if p is strict.
//
// A viewer that panics is logged and skipped; the remaining viewers still
// receive msg.
func (p *Peer) ProcessMessage(ctx context.Context, msg Message) {
	kind := KindUnknown
	if msg != nil {
		kind = msg.Kind()
	}
	ctx, span := tracer.Start(ctx, "Peer.ProcessMessage", trace.WithAttributes(
		attribute.String("scope.id", p.scope.ScopeID()),
		attribute.Stringer("message.kind", kind),
	))
	defer span.End()
	logger := component.Logger(ctx).With(
		slog.String("scope-id", p.scope.ScopeID()),
		slog.String("message-kind", kind.String()),
	)

	defer func(start time.Time) {
		measureDispatch(ctx, kind, time.Since(start))
	}(time.Now())

	notify, ok := callbackFor(msg)
	if !ok {
		err := newUnhandledMessageError(msg)
		span.SetStatus(codes.Error, err.Error())
		unhandledMessages.Add(ctx, 1)
		if p.strict {
			panic(err)
		}
		logger.Error("Digital twin sent an unhandled message, message skipped", slog.Any("error", err))
		return
	}
	if notify == nil || !forwarded(msg) {
		return
	}
	for _, v := range p.Viewers() {
		p.notify(ctx, logger, v, notify)
	}
}

// Notify calls the method of v that corresponds to msg, on the calling
// goroutine, including the submission starts and aborts a Peer does not
// forward. Contextualization messages are ignored. For messages outside the
// closed set, Notify returns an *UnhandledMessageError.
func Notify(v Viewer, msg Message) error {
	notify, ok := callbackFor(msg)
	if !ok {
		return newUnhandledMessageError(msg)
	}
	if notify != nil {
		notify(v)
	}
	return nil
}

// forwarded reports whether a Peer hands msg to its viewers. Viewers learn of
// a submission once it finishes.
func forwarded(msg Message) bool {
	switch msg.(type) {
	case SubmissionStarted, SubmissionAborted:
		return false
	}
	return true
}

// callbackFor returns the viewer callback for msg, or nil if msg has no
// matching Viewer method. It reports false if msg is outside the closed
// set of messages.
func callbackFor(msg Message) (notify func(Viewer), ok bool) {
	switch m := msg.(type) {
	case KnowledgeGraphCommitted:
		return func(v Viewer) { v.KnowledgeGraphCommitted(m.Graph) }, true
	case ContextualizationStarted, ContextualizationSucceeded, ContextualizationAborted:
		// Reserved for tracking contextualised objects and aspects.
		return nil, true
	case SubmissionStarted:
		return func(v Viewer) { v.SubmissionStarted(m.Observation) }, true
	case SubmissionAborted:
		return func(v Viewer) { v.SubmissionAborted(m.Observation, m.Reason) }, true
	case SubmissionFinished:
		return func(v Viewer) { v.SubmissionFinished(m.Observation) }, true
	case ActivityFinished:
		return func(v Viewer) { v.ActivityFinished(m.Activity) }, true
	case ActivityStarted:
		return func(v Viewer) { v.ActivityStarted(m.Activity) }, true
	case ScheduleModified:
		return func(v Viewer) { v.ScheduleModified(m.Schedule) }, true
	default:
		return nil, false
	}
}

func (p *Peer) notify(ctx context.Context, logger *slog.Logger, v Viewer, notify func(Viewer)) {
	defer func() {
		if r := recover(); r != nil {
			viewerFaults.Add(ctx, 1)
			logger.Error("Viewer panicked while handling message",
				slog.Any("panic", r),
				slog.String("viewer", fmt.Sprintf("%T", v)),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	notify(v)
}
