// Package eventbus provides an in-process, many-to-many broadcast of typed
// events.
//
// Subscribers register for a Type and receive every event whose Type is that
// type or one of its subtypes (see Type.Is). The hierarchy of types is explicit:
// it is declared with NewType, never inferred from Go types.
//
// A Bus is usually constructed once by the application's composition root and
// passed to the components that need it. Default returns a process-wide Bus for
// code that cannot be handed one.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/danielorbach/go-component"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrInvalidArgument is returned by Subscribe for a nil type, a nil subscriber,
// or a subscriber that cannot be compared for identity.
var ErrInvalidArgument = errors.New("eventbus: invalid argument")

// A Subscriber handles events delivered by a Bus.
//
// Subscribers are identified by interface equality, so their dynamic value must
// be comparable. Prefer pointers: a struct subscriber whose interface fields
// later come to hold slices or maps makes Publish and Unsubscribe panic. Wrap
// plain functions with Func.
//
// HandleEvent may be called concurrently by multiple publishers. Subscribers
// touching UI state must marshal to the UI thread on their own.
type Subscriber interface {
	HandleEvent(ctx context.Context, e Event) error
}

type funcSubscriber struct {
	fn func(ctx context.Context, e Event) error
}

func (s *funcSubscriber) HandleEvent(ctx context.Context, e Event) error { return s.fn(ctx, e) }

// Func returns a Subscriber calling fn. Each call to Func returns a distinct
// Subscriber; keep the result to unsubscribe later.
func Func(fn func(ctx context.Context, e Event) error) Subscriber {
	return &funcSubscriber{fn: fn}
}

// A Fault reports a subscriber that failed to handle an event, either by
// returning an error or by panicking.
type Fault struct {
	Event      Event
	Subscriber Subscriber
	Err        error
}

// PanicError wraps the value recovered from a panicking subscriber.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("subscriber panic: %v", e.Value)
}

// A FaultHandler is called for every Fault during Publish. It is called on the
// publishing goroutine, after the faulty subscriber returned and before the
// next subscriber is called.
type FaultHandler func(ctx context.Context, f Fault)

// An Option configures a Bus.
type Option func(*Bus)

// WithFaultHandler replaces the default FaultHandler, which logs faults at
// error level using the logger of the publishing context.
func WithFaultHandler(h FaultHandler) Option {
	return func(b *Bus) {
		b.onFault = h
	}
}

// Bus is a registry of subscribers by event Type.
//
// All methods are safe for concurrent use. A Publish in progress delivers to
// the subscribers registered when it reached their type; concurrent changes
// to the registry apply to later publications.
type Bus struct {
	registry sync.Map // *Type -> *subscriberSet
	onFault  FaultHandler
}

// New returns an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{onFault: logFault}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var (
	defaultBus  *Bus
	defaultOnce sync.Once
)

// Default returns the process-wide Bus, creating it on first use. It lives for
// the lifetime of the process.
func Default() *Bus {
	defaultOnce.Do(func() {
		defaultBus = New()
	})
	return defaultBus
}

// Subscribe registers s to receive events of type t and its subtypes.
// Subscribing the same subscriber to the same type more than once has no
// further effect.
func (b *Bus) Subscribe(t *Type, s Subscriber) error {
	if t == nil {
		return fmt.Errorf("%w: nil event type", ErrInvalidArgument)
	}
	if s == nil {
		return fmt.Errorf("%w: nil subscriber", ErrInvalidArgument)
	}
	if !hashable(s) {
		return fmt.Errorf("%w: subscriber of incomparable type %T", ErrInvalidArgument, s)
	}
	v, _ := b.registry.LoadOrStore(t, new(subscriberSet))
	v.(*subscriberSet).add(s)
	return nil
}

// Unsubscribe removes s from every type it is subscribed to. It is a no-op if
// s was never subscribed.
func (b *Bus) Unsubscribe(s Subscriber) {
	if s == nil {
		return
	}
	b.registry.Range(func(_, v any) bool {
		v.(*subscriberSet).remove(s)
		return true
	})
}

// UnsubscribeType removes s from every registered type that t is (see
// Type.Is). This mirrors the matching rule of Publish: after
// UnsubscribeType(t, s), s no longer receives events of type t.
//
// Subscriptions of s to subtypes of t are left untouched.
func (b *Bus) UnsubscribeType(t *Type, s Subscriber) {
	if t == nil || s == nil {
		return
	}
	b.registry.Range(func(k, v any) bool {
		if t.Is(k.(*Type)) {
			v.(*subscriberSet).remove(s)
		}
		return true
	})
}

// Publish delivers e to the subscribers of every registered type that e's Type
// is. A subscriber registered under several matching types receives e once per
// such type. The order of delivery is unspecified.
//
// Each delivery is isolated: errors returned and panics raised by a subscriber
// are handed to the bus FaultHandler and never reach the publisher or prevent
// delivery to the remaining subscribers.
func (b *Bus) Publish(ctx context.Context, e Event) {
	if e == nil {
		panic("eventbus: publish nil event")
	}
	t := e.Type()
	ctx, span := tracer.Start(ctx, "eventbus.Publish", trace.WithAttributes(
		attribute.String("event.type", t.String()),
		attribute.Stringer("event.id", e.ID()),
	))
	defer span.End()

	var delivered, faults int
	b.registry.Range(func(k, v any) bool {
		if !t.Is(k.(*Type)) {
			return true
		}
		for _, s := range v.(*subscriberSet).load() {
			if !b.deliver(ctx, e, s) {
				faults++
			}
			delivered++
		}
		return true
	})
	span.SetAttributes(attribute.Int("event.deliveries", delivered))
	measurePublish(ctx, t, delivered, faults)
}

// deliver calls s with e and reports whether it handled e without fault.
func (b *Bus) deliver(ctx context.Context, e Event, s Subscriber) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.onFault(ctx, Fault{Event: e, Subscriber: s, Err: &PanicError{Value: r, Stack: debug.Stack()}})
			ok = false
		}
	}()
	if err := s.HandleEvent(ctx, e); err != nil {
		b.onFault(ctx, Fault{Event: e, Subscriber: s, Err: err})
		return false
	}
	return true
}

// hashable reports whether x can be compared for identity. Besides the type
// of x, it checks the values held by interface fields, which may be slices or
// maps even though the struct type itself is comparable.
func hashable(x any) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	m := make(map[any]bool, 1)
	m[x] = true
	return m[x]
}

func logFault(ctx context.Context, f Fault) {
	component.Logger(ctx).Error("Subscriber failed to handle event",
		slog.Any("error", f.Err),
		slog.String("event-type", f.Event.Type().String()),
		slog.Any("event-id", f.Event.ID()),
		slog.String("subscriber", fmt.Sprintf("%T", f.Subscriber)),
	)
}

// A subscriberSet is a copy-on-write set of subscribers. Readers load an
// immutable snapshot without locking; writers are serialised by mu.
type subscriberSet struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[[]Subscriber]
}

func (s *subscriberSet) load() []Subscriber {
	if p := s.snapshot.Load(); p != nil {
		return *p
	}
	return nil
}

func (s *subscriberSet) add(x Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.load()
	if slices.Contains(cur, x) {
		return
	}
	next := make([]Subscriber, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, x)
	s.snapshot.Store(&next)
}

func (s *subscriberSet) remove(x Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.load()
	i := slices.Index(cur, x)
	if i < 0 {
		return
	}
	next := slices.Concat(cur[:i], cur[i+1:])
	s.snapshot.Store(&next)
}
