package modeler_test

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/danielorbach/go-component"
	"gocloud.dev/pubsub/mempubsub"

	"github.com/go-digitaltwin/go-modeler"
	"github.com/go-digitaltwin/go-modeler/viewertest"
)

// activityLog is a viewer printing the activities of a digital twin.
type activityLog struct {
	modeler.UnimplementedViewer
}

func (activityLog) ActivityStarted(a modeler.Activity) {
	fmt.Println("started:", a.Description)
}

func (activityLog) ActivityFinished(a modeler.Activity) {
	fmt.Println("finished:", a.Description, a.Outcome)
}

func ExamplePeer() {
	// A scope whose digital twin delivers its messages in-process.
	scope := viewertest.NewScope("hydrology")
	peer := modeler.NewPeer(scope)
	peer.Register(activityLog{})

	ctx := context.Background()
	act := modeler.Activity{ID: "1", Description: "resolve runoff"}
	scope.Twin.Deliver(ctx, modeler.ActivityStarted{Activity: act})
	act.Outcome = modeler.OutcomeSucceeded
	scope.Twin.Deliver(ctx, modeler.ActivityFinished{Activity: act})
	// Output:
	// started: resolve runoff
	// finished: resolve runoff succeeded
}

func ExampleStream() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	topic := mempubsub.NewTopic()
	defer topic.Shutdown(context.Background())
	sub := mempubsub.NewSubscription(topic, time.Minute)
	defer sub.Shutdown(context.Background())

	// The digital twin publishes through a Notifier...
	act := modeler.Activity{ID: "1", Description: "resolve runoff"}
	if err := modeler.NewNotifier(topic).Notify(ctx, modeler.ActivityStarted{Activity: act}); err != nil {
		panic(err)
	}

	// ...and the modeler streams its messages into the peer of the scope. This
	// example stops after the first message.
	peer := modeler.NewPeer(viewertest.NewScope("hydrology"))
	peer.Register(activityLog{})
	component.RunProc(modeler.Stream(sub, func(ctx context.Context, msg modeler.Message) {
		peer.ProcessMessage(ctx, msg)
		cancel()
	}), component.WithContext(ctx), component.WithName("stream"))
	// Output:
	// started: resolve runoff
}

// ExampleStream_component shows a component.Descriptor receiving the messages
// of a remote digital twin and dispatching them to the peer of its scope. It is
// for illustration only and is not executed.
func ExampleStream_component() {
	const twinMessages = "hydrology-twin.messages"
	peers := modeler.NewPeers()

	d := &component.Descriptor{
		Name: "hydrology-modeler",
		Doc:  "....",
		Bootstrap: func(l *component.L, target component.Linker, options any) error {
			logger := component.Logger(l.Context())

			logger.Debug("Opening interest subscription...", slog.String("topic-name", twinMessages))
			messages, err := target.LinkInterest(l.GraceContext(), twinMessages)
			if err != nil {
				return fmt.Errorf("open interest %q: %w", twinMessages, err)
			}
			l.CleanupBackground(messages.Shutdown)
			logger.Info("Interest subscription opened successfully")

			peer := peers.For(viewertest.NewScope("hydrology"))
			l.Fork("stream", modeler.Stream(messages, peer.ProcessMessage))
			return nil
		},
		Interests: []string{twinMessages},
	}

	fmt.Print(d)
}
