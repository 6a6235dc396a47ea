package neo4jview

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Labels written by a Mirror.
const (
	EntityLabel = "Entity"
	CommitLabel = "Commit"
)

// Bootstrap creates the database name, if it does not exist yet, and the
// uniqueness constraints a Mirror relies on: entities are unique by id and
// commits by hash. Without them, concurrent MERGEs may duplicate nodes.
//
// Bootstrap is idempotent.
func Bootstrap(ctx context.Context, d neo4j.DriverWithContext, name string) error {
	if err := createDatabase(ctx, d, name); err != nil {
		return fmt.Errorf("create database: %w", err)
	}

	s := d.NewSession(ctx, neo4j.SessionConfig{DatabaseName: name})
	defer func() { _ = s.Close(ctx) }()

	constraints := map[string]string{
		EntityLabel: "id",
		CommitLabel: "hash",
	}
	_, err := s.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for label, key := range constraints {
			_, err := tx.Run(ctx, `
				CREATE CONSTRAINT IF NOT EXISTS
				FOR (n:`+label+`)
				REQUIRE n.`+key+` IS UNIQUE
			`, nil)
			if err != nil {
				return nil, fmt.Errorf("unique constraint: label %v: %w", label, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("create constraints: %w", err)
	}
	return s.Close(ctx)
}

func createDatabase(ctx context.Context, d neo4j.DriverWithContext, name string) error {
	if name == "" {
		panic("neo4jview: database name must not be empty")
	}
	if name == "neo4j" {
		panic("neo4jview: database name must not be neo4j: reserved for system database")
	}
	if strings.HasPrefix(name, "system") || strings.HasPrefix(name, "_") {
		panic("neo4jview: names that begin with an underscore or with the prefix system are reserved for internal use")
	}

	s := d.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer func() { _ = s.Close(ctx) }()

	_, err := s.Run(ctx, `CREATE DATABASE $name IF NOT EXISTS WAIT`, map[string]any{
		"name": name,
	})
	return err
}
