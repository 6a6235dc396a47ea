package modeler_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"github.com/go-digitaltwin/go-modeler"
	"github.com/go-digitaltwin/go-modeler/viewertest"
)

func TestKnowledgeGraphCommittedFanOut(t *testing.T) {
	scope := viewertest.NewScope("scope-x")
	peer := modeler.NewPeer(scope, modeler.WithStrict(true))
	var v1, v2, late viewertest.Recorder
	peer.Register(&v1)
	peer.Register(&v2)

	graph := modeler.KnowledgeGraph{
		Nodes: []modeler.Node{{ID: "region", Kind: "observation", Label: "Tanzania"}},
	}
	scope.Twin.Deliver(context.Background(), modeler.KnowledgeGraphCommitted{Graph: graph})
	peer.Register(&late)

	want := []viewertest.Call{{Method: "KnowledgeGraphCommitted", Arg: graph}}
	for name, v := range map[string]*viewertest.Recorder{"v1": &v1, "v2": &v2} {
		if diff := cmp.Diff(want, v.Calls()); diff != "" {
			t.Errorf("Viewer %s calls differ (-want +got): %s", name, diff)
		}
	}
	if calls := late.Calls(); len(calls) != 0 {
		t.Errorf("Viewer registered after dispatch received %v", calls)
	}
}

func TestDispatchByKind(t *testing.T) {
	messages := viewertest.Messages()
	tests := []struct {
		kind   modeler.Kind
		method string // empty if the kind is not forwarded
	}{
		{modeler.KindKnowledgeGraphCommitted, "KnowledgeGraphCommitted"},
		{modeler.KindContextualizationStarted, ""},
		{modeler.KindContextualizationSucceeded, ""},
		{modeler.KindContextualizationAborted, ""},
		{modeler.KindSubmissionStarted, ""},
		{modeler.KindSubmissionAborted, ""},
		{modeler.KindSubmissionFinished, "SubmissionFinished"},
		{modeler.KindActivityStarted, "ActivityStarted"},
		{modeler.KindActivityFinished, "ActivityFinished"},
		{modeler.KindScheduleModified, "ScheduleModified"},
	}
	if len(tests) != len(messages) {
		t.Fatalf("Testing %d kinds, but viewertest.Messages() has %d", len(tests), len(messages))
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			i := slices.IndexFunc(messages, func(m modeler.Message) bool { return m.Kind() == tt.kind })
			if i < 0 {
				t.Fatal("No sample message of kind", tt.kind)
			}
			peer := modeler.NewPeer(viewertest.NewScope(t.Name()), modeler.WithStrict(true))
			var v viewertest.Recorder
			peer.Register(&v)
			peer.ProcessMessage(context.Background(), messages[i])

			calls := v.Calls()
			switch {
			case tt.method == "" && len(calls) != 0:
				t.Errorf("Kind %v is not forwarded, but viewer received %v", tt.kind, calls)
			case tt.method != "" && (len(calls) != 1 || calls[0].Method != tt.method):
				t.Errorf("Viewer received %v; want a single %s", calls, tt.method)
			}
		})
	}
}

// bogus is a message outside the closed set a Peer dispatches.
type bogus struct{}

func (bogus) Kind() modeler.Kind { return modeler.Kind(99) }

func TestUnhandledMessage(t *testing.T) {
	unhandled := []modeler.Message{
		bogus{},
		&modeler.ActivityStarted{}, // pointers are not part of the closed set
		nil,
	}

	t.Run("Strict", func(t *testing.T) {
		for _, msg := range unhandled {
			func() {
				defer func() {
					r := recover()
					var err *modeler.UnhandledMessageError
					if e, ok := r.(error); !ok || !errors.As(e, &err) {
						t.Errorf("ProcessMessage(%T) panicked with %v; want *UnhandledMessageError", msg, r)
					}
				}()
				peer := modeler.NewPeer(viewertest.NewScope("strict"), modeler.WithStrict(true))
				peer.ProcessMessage(context.Background(), msg)
			}()
		}
	})

	t.Run("Lenient", func(t *testing.T) {
		peer := modeler.NewPeer(viewertest.NewScope("lenient"))
		var v viewertest.Recorder
		peer.Register(&v)
		for _, msg := range unhandled {
			peer.ProcessMessage(context.Background(), msg)
		}
		if calls := v.Calls(); len(calls) != 0 {
			t.Errorf("Viewer received %v from unhandled messages", calls)
		}
	})

	t.Run("Notify", func(t *testing.T) {
		var v viewertest.Recorder
		err := modeler.Notify(&v, bogus{})
		var uerr *modeler.UnhandledMessageError
		if !errors.As(err, &uerr) || uerr.Kind != modeler.Kind(99) {
			t.Errorf("Notify() = %v; want *UnhandledMessageError of Kind(99)", err)
		}
	})
}

func TestDetachCleansUpOnce(t *testing.T) {
	scope := viewertest.NewScope("scope-x")
	peer := modeler.NewPeer(scope)
	v := viewertest.NewElement(true)
	peer.Register(v)

	v.Attachment().Detach()
	if n := v.Count("Cleanup"); n != 1 {
		t.Fatalf("Cleanup called %d times after detaching; want 1", n)
	}
	if slices.Contains(peer.Viewers(), modeler.Viewer(v)) {
		t.Fatal("Peer still holds the detached viewer")
	}

	// Detaching again, or re-attaching and detaching, no longer concerns the peer.
	v.Attachment().Detach()
	v.Attachment().Attach()
	v.Attachment().Detach()
	if n := v.Count("Cleanup"); n != 1 {
		t.Errorf("Cleanup called %d times in total; want 1", n)
	}

	scope.Twin.Deliver(context.Background(), viewertest.Messages()[0])
	if n := v.Count("KnowledgeGraphCommitted"); n != 0 {
		t.Errorf("Detached viewer received %d messages", n)
	}
}

func TestNeverAttachedElement(t *testing.T) {
	peer := modeler.NewPeer(viewertest.NewScope("scope-x"))
	v := viewertest.NewElement(false)
	peer.Register(v)

	// The element was never attached, so this is not a removal from the
	// visible hierarchy.
	v.Attachment().Detach()
	if n := v.Count("Cleanup"); n != 0 {
		t.Fatalf("Cleanup called %d times for a never attached element", n)
	}
	if !slices.Contains(peer.Viewers(), modeler.Viewer(v)) {
		t.Fatal("Peer dropped a never attached viewer")
	}

	v.Attachment().Attach()
	v.Attachment().Detach()
	if n := v.Count("Cleanup"); n != 1 {
		t.Errorf("Cleanup called %d times after attach and detach; want 1", n)
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	scope := viewertest.NewScope("scope-x")
	peer := modeler.NewPeer(scope)
	v := viewertest.NewElement(true)
	peer.Register(v)
	peer.Register(v)

	scope.Twin.Deliver(context.Background(), modeler.ActivityStarted{Activity: modeler.Activity{ID: "a"}})
	if n := v.Count("ActivityStarted"); n != 1 {
		t.Errorf("Viewer registered twice received %d deliveries; want 1", n)
	}
	v.Attachment().Detach()
	if n := v.Count("Cleanup"); n != 1 {
		t.Errorf("Viewer registered twice cleaned up %d times; want 1", n)
	}
}

func TestUnregister(t *testing.T) {
	scope := viewertest.NewScope("scope-x")
	peer := modeler.NewPeer(scope)
	v := viewertest.NewElement(true)
	peer.Register(v)
	peer.Unregister(v)
	peer.Unregister(v) // no-op

	v.Attachment().Detach()
	scope.Twin.Deliver(context.Background(), modeler.ActivityStarted{})
	if calls := v.Calls(); len(calls) != 0 {
		t.Errorf("Unregistered viewer received %v", calls)
	}
}

// selfish is a viewer that changes the registrations of its peer while it
// handles a message.
type selfish struct {
	modeler.UnimplementedViewer
	peer  *modeler.Peer
	join  modeler.Viewer
	leave modeler.Viewer
}

func (s *selfish) ActivityStarted(modeler.Activity) {
	s.peer.Register(s.join)
	s.peer.Unregister(s.leave)
}

func TestRegistrationDuringDispatch(t *testing.T) {
	scope := viewertest.NewScope("scope-x")
	peer := modeler.NewPeer(scope)
	var joiner, leaver viewertest.Recorder
	peer.Register(&selfish{peer: peer, join: &joiner, leave: &leaver})
	peer.Register(&leaver)

	scope.Twin.Deliver(context.Background(), modeler.ActivityStarted{})
	// The leaver was part of the snapshot, so it may or may not have been
	// notified before it was removed, but never twice.
	if n := leaver.Count("ActivityStarted"); n > 1 {
		t.Errorf("Leaving viewer received %d deliveries", n)
	}
	if n := joiner.Count("ActivityStarted"); n != 0 {
		t.Errorf("Viewer joining during dispatch received %d deliveries; want 0", n)
	}

	scope.Twin.Deliver(context.Background(), modeler.ActivityStarted{})
	if n := joiner.Count("ActivityStarted"); n != 1 {
		t.Errorf("Joined viewer received %d deliveries; want 1", n)
	}
}

// panicky is a viewer that cannot handle schedules.
type panicky struct {
	modeler.UnimplementedViewer
}

func (*panicky) ScheduleModified(modeler.Schedule) { panic("cannot draw timeline") }

func TestViewerPanicIsIsolated(t *testing.T) {
	scope := viewertest.NewScope("scope-x")
	peer := modeler.NewPeer(scope, modeler.WithStrict(true))
	var healthy viewertest.Recorder
	peer.Register(&panicky{})
	peer.Register(&healthy)

	scope.Twin.Deliver(context.Background(), modeler.ScheduleModified{})
	if n := healthy.Count("ScheduleModified"); n != 1 {
		t.Errorf("Healthy viewer received %d deliveries; want 1", n)
	}
}

func TestRegisterIncomparableViewer(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Register() of an incomparable viewer did not panic")
		}
	}()
	modeler.NewPeer(viewertest.NewScope("scope-x")).Register(incomparable{})
}

type incomparable struct {
	modeler.UnimplementedViewer
	tags []string
}

// boxed has a comparable type, but its value is not comparable when payload
// holds a slice.
type boxed struct {
	modeler.UnimplementedViewer
	payload any
}

func TestRegisterViewerWithIncomparableField(t *testing.T) {
	peer := modeler.NewPeer(viewertest.NewScope("scope-x"))
	peer.Register(boxed{payload: 1}) // comparable value: accepted

	defer func() {
		if recover() == nil {
			t.Error("Register() of a viewer holding a slice did not panic")
		}
	}()
	peer.Register(boxed{payload: []string{"tag"}})
}

// rejoiner is an element that, when cleaned up the first time, registers with
// its peer again after being re-attached.
type rejoiner struct {
	*viewertest.Element
	peer     *modeler.Peer
	rejoined bool
}

func (r *rejoiner) Cleanup() {
	r.Element.Cleanup()
	if r.rejoined {
		return
	}
	r.rejoined = true
	r.peer.Unregister(r)
	r.Attachment().Attach()
	r.peer.Register(r)
}

func TestRegisterDuringCleanup(t *testing.T) {
	scope := viewertest.NewScope("scope-x")
	peer := modeler.NewPeer(scope)
	v := &rejoiner{Element: viewertest.NewElement(true), peer: peer}
	peer.Register(v)

	v.Attachment().Detach()
	if !slices.Contains(peer.Viewers(), modeler.Viewer(v)) {
		t.Fatalf("Viewer registered again during cleanup was dropped; Viewers() = %v", peer.Viewers())
	}
	scope.Twin.Deliver(context.Background(), modeler.ActivityStarted{})
	if n := v.Count("ActivityStarted"); n != 1 {
		t.Errorf("Viewer registered again received %d deliveries; want 1", n)
	}

	// The second registration observes the attachment on its own.
	v.Attachment().Detach()
	if n := v.Count("Cleanup"); n != 2 {
		t.Errorf("Cleanup called %d times; want 2", n)
	}
	if len(peer.Viewers()) != 0 {
		t.Errorf("Peer holds %d viewers after the second detach; want 0", len(peer.Viewers()))
	}
}

func TestNotifySubmissionLifecycle(t *testing.T) {
	obs := modeler.Observation{URN: "im.hydrology:runoff"}
	messages := []modeler.Message{
		modeler.SubmissionStarted{Observation: obs},
		modeler.SubmissionAborted{Observation: obs, Reason: "cancelled"},
		modeler.SubmissionFinished{Observation: obs},
	}

	var direct viewertest.Recorder
	for _, msg := range messages {
		if err := modeler.Notify(&direct, msg); err != nil {
			t.Fatalf("Notify(%v): %v", msg.Kind(), err)
		}
	}
	want := []viewertest.Call{
		{Method: "SubmissionStarted", Arg: obs},
		{Method: "SubmissionAborted", Arg: viewertest.Abort{Observation: obs, Reason: "cancelled"}},
		{Method: "SubmissionFinished", Arg: obs},
	}
	if diff := cmp.Diff(want, direct.Calls()); diff != "" {
		t.Error("Notified calls differ (-want +got):", diff)
	}

	// A Peer only forwards the end of a submission.
	scope := viewertest.NewScope("scope-x")
	peer := modeler.NewPeer(scope, modeler.WithStrict(true))
	var registered viewertest.Recorder
	peer.Register(&registered)
	for _, msg := range messages {
		scope.Twin.Deliver(context.Background(), msg)
	}
	if diff := cmp.Diff(want[2:], registered.Calls()); diff != "" {
		t.Error("Forwarded calls differ (-want +got):", diff)
	}
}

func TestPeersFor(t *testing.T) {
	peers := modeler.NewPeers(modeler.WithStrict(true))
	x := viewertest.NewScope("scope-x")
	y := viewertest.NewScope("scope-y")

	px := peers.For(x)
	if peers.For(x) != px {
		t.Fatal("For() returned a second peer for the same scope")
	}
	if peers.For(y) == px {
		t.Fatal("For() returned the same peer for different scopes")
	}
	if got, ok := peers.Lookup("scope-x"); !ok || got != px {
		t.Errorf("Lookup(scope-x) = %p, %t; want %p, true", got, ok, px)
	}

	var v viewertest.Recorder
	px.Register(&v)
	x.Twin.Deliver(context.Background(), modeler.ActivityFinished{})
	if n := v.Count("ActivityFinished"); n != 1 {
		t.Errorf("Viewer received %d deliveries; want 1", n)
	}

	peers.Forget("scope-x")
	if _, ok := peers.Lookup("scope-x"); ok {
		t.Error("Lookup() found a forgotten scope")
	}
}

// Constructing two peers for one scope is not prevented; each subscribes to the
// digital twin, so a viewer registered with both sees every message twice.
func TestTwoPeersForOneScope(t *testing.T) {
	scope := viewertest.NewScope("scope-x")
	p1 := modeler.NewPeer(scope)
	p2 := modeler.NewPeer(scope)
	var v viewertest.Recorder
	p1.Register(&v)
	p2.Register(&v)

	scope.Twin.Deliver(context.Background(), modeler.SubmissionFinished{})
	if n := v.Count("SubmissionFinished"); n != 2 {
		t.Errorf("Viewer received %d deliveries; want 2", n)
	}
}

func TestContextAndKnowledgeGraphView(t *testing.T) {
	scope := viewertest.NewScope("scope-x")
	peer := modeler.NewPeer(scope)
	if peer.Scope() != modeler.Scope(scope) {
		t.Error("Scope() differs from the constructing scope")
	}

	if _, ok := peer.Context(); ok {
		t.Error("Context() of a new peer is set")
	}
	asset := modeler.Observation{URN: "im.geography:Tanzania", Name: "Tanzania"}
	peer.SetContext(asset)
	if got, ok := peer.Context(); !ok || got != asset {
		t.Errorf("Context() = %v, %t; want %v, true", got, ok, asset)
	}

	var view viewertest.Recorder
	peer.SetKnowledgeGraphView(&view)
	if peer.KnowledgeGraphView() != modeler.Viewer(&view) {
		t.Error("KnowledgeGraphView() differs from the view set")
	}
	scope.Twin.Deliver(context.Background(), viewertest.Messages()[0])
	if n := view.Count("KnowledgeGraphCommitted"); n != 1 {
		t.Errorf("Knowledge-graph view received %d graphs; want 1", n)
	}
}

func TestConcurrentRegistrationAndDispatch(t *testing.T) {
	scope := viewertest.NewScope("scope-x")
	peer := modeler.NewPeer(scope, modeler.WithStrict(true))
	var stable viewertest.Recorder
	peer.Register(&stable)

	const rounds = 100
	var g errgroup.Group
	g.Go(func() error {
		for range rounds {
			scope.Twin.Deliver(context.Background(), modeler.ActivityStarted{})
		}
		return nil
	})
	g.Go(func() error {
		for range rounds {
			v := viewertest.NewElement(true)
			peer.Register(v)
			v.Attachment().Detach()
		}
		return nil
	})
	g.Go(func() error {
		for range rounds {
			var v viewertest.Recorder
			peer.Register(&v)
			peer.Unregister(&v)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if n := stable.Count("ActivityStarted"); n != rounds {
		t.Errorf("Stable viewer received %d deliveries; want %d", n, rounds)
	}
	if got := peer.Viewers(); len(got) != 1 {
		t.Errorf("Peer holds %d viewers after churn; want 1", len(got))
	}
}

func TestViewerSuite(t *testing.T) {
	t.Run("Recorder", func(t *testing.T) {
		viewertest.Run(t, func(*testing.T) modeler.Viewer { return new(viewertest.Recorder) })
	})
	t.Run("UnimplementedViewer", func(t *testing.T) {
		viewertest.Run(t, func(*testing.T) modeler.Viewer { return modeler.UnimplementedViewer{} })
	})
}
