// Command modeler mirrors the knowledge graphs of a remote digital twin into
// Neo4j.
//
// Usage:
//
//	modeler bootstrap --config modeler.yaml
//	modeler mirror --config modeler.yaml
//
// The subscription URL selects a gocloud.dev pubsub driver; this binary links
// the in-memory driver only (mem://), deployments add theirs with a blank
// import.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/danielorbach/go-component"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/spf13/cobra"
	"gocloud.dev/pubsub"
	_ "gocloud.dev/pubsub/mempubsub"

	"github.com/go-digitaltwin/go-modeler"
	"github.com/go-digitaltwin/go-modeler/internal/config"
	"github.com/go-digitaltwin/go-modeler/neo4jview"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "modeler:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var path string
	cfg := config.Defaults()

	root := &cobra.Command{
		Use:           "modeler",
		Short:         "Mirror digital-twin knowledge graphs into neo4j",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&path, "config", "", "configuration file (.yaml, .json or .toml)")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug|info|warn|error")
	root.PersistentFlags().StringVar(&cfg.Neo4j.URI, "neo4j-uri", cfg.Neo4j.URI, "bolt or neo4j URI of the database server")
	root.PersistentFlags().StringVar(&cfg.Neo4j.Database, "database", cfg.Neo4j.Database, "database receiving the mirrored graphs")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if path != "" {
			loaded, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			// Flags given explicitly win over the file.
			flags := cmd.Flags()
			for name, field := range map[string]func(*config.Config) *string{
				"log-level":    func(c *config.Config) *string { return &c.LogLevel },
				"neo4j-uri":    func(c *config.Config) *string { return &c.Neo4j.URI },
				"database":     func(c *config.Config) *string { return &c.Neo4j.Database },
				"subscription": func(c *config.Config) *string { return &c.Subscription },
				"scope":        func(c *config.Config) *string { return &c.Scope },
			} {
				if flags.Changed(name) {
					*field(&loaded) = *field(&cfg)
				}
			}
			if flags.Changed("strict") {
				loaded.Strict = cfg.Strict
			}
			cfg = loaded
		}
		level, err := cfg.Level()
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
		cmd.SetContext(component.InjectLogger(cmd.Context(), logger))
		return nil
	}

	root.AddCommand(&cobra.Command{
		Use:   "bootstrap",
		Short: "Create the database and its constraints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return bootstrap(cmd.Context(), cfg)
		},
	})

	mirror := &cobra.Command{
		Use:   "mirror",
		Short: "Receive digital-twin messages and mirror committed graphs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return mirror(cmd.Context(), cfg)
		},
	}
	mirror.Flags().StringVar(&cfg.Subscription, "subscription", cfg.Subscription, "pubsub subscription URL")
	mirror.Flags().StringVar(&cfg.Scope, "scope", cfg.Scope, "scope of the mirrored digital twin")
	mirror.Flags().BoolVar(&cfg.Strict, "strict", cfg.Strict, "panic on unknown messages")
	root.AddCommand(mirror)

	return root
}

func openDriver(ctx context.Context, cfg config.Config) (neo4j.DriverWithContext, error) {
	auth := neo4j.NoAuth()
	if cfg.Neo4j.Username != "" {
		auth = neo4j.BasicAuth(cfg.Neo4j.Username, cfg.Neo4j.Password, "")
	}
	d, err := neo4j.NewDriverWithContext(cfg.Neo4j.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("open neo4j driver: %w", err)
	}
	if err := d.VerifyConnectivity(ctx); err != nil {
		_ = d.Close(ctx)
		return nil, fmt.Errorf("verify connectivity: %w", err)
	}
	return d, nil
}

func bootstrap(ctx context.Context, cfg config.Config) error {
	d, err := openDriver(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close(context.Background()) }()

	if err := neo4jview.Bootstrap(ctx, d, cfg.Neo4j.Database); err != nil {
		return fmt.Errorf("bootstrap %q: %w", cfg.Neo4j.Database, err)
	}
	component.Logger(ctx).Info("Database is ready", slog.String("neo4j.database", cfg.Neo4j.Database))
	return nil
}

// scope is a modelling session known only by its identifier; its digital twin
// lives in another process and reaches us through pubsub.
type scope string

func (s scope) ScopeID() string  { return string(s) }
func (s scope) DigitalTwin() any { return nil }

func mirror(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := component.Logger(ctx).With(slog.String("scope-id", cfg.Scope))

	d, err := openDriver(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close(context.Background()) }()

	sub, err := pubsub.OpenSubscription(ctx, cfg.Subscription)
	if err != nil {
		return fmt.Errorf("open subscription %q: %w", cfg.Subscription, err)
	}
	defer func() { _ = sub.Shutdown(context.Background()) }()

	peer := modeler.NewPeer(scope(cfg.Scope), modeler.WithStrict(cfg.Strict))
	m := neo4jview.NewMirror(ctx, d, cfg.Neo4j.Database)
	peer.SetKnowledgeGraphView(m)

	logger.Info("Mirroring digital twin", slog.String("subscription", cfg.Subscription), slog.String("neo4j.database", cfg.Neo4j.Database))
	// The proc stops once ctx is cancelled by an interrupt.
	component.RunProc(modeler.Stream(sub, peer.ProcessMessage),
		component.WithContext(ctx),
		component.WithName("stream"),
	)
	if last, ok := m.Last(); ok {
		logger.Info("Stopped mirroring", slog.String("last-graph", last.String()))
	}
	return nil
}
