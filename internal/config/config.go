// Package config loads the configuration of the modeler command.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds the runtime parameters of the modeler command. Zero values mean
// unspecified; see Defaults.
type Config struct {
	// Scope identifies the modelling session whose digital twin is mirrored.
	Scope string `json:"scope" yaml:"scope" toml:"scope"`
	// Subscription is a gocloud.dev pubsub URL, e.g. "mem://twin".
	Subscription string `json:"subscription" yaml:"subscription" toml:"subscription"`
	// Strict makes the peer panic on unknown messages.
	Strict   bool   `json:"strict" yaml:"strict" toml:"strict"`
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
	Neo4j    Neo4j  `json:"neo4j" yaml:"neo4j" toml:"neo4j"`
}

// Neo4j locates the database mirrored graphs are written to.
type Neo4j struct {
	URI      string `json:"uri" yaml:"uri" toml:"uri"`
	Username string `json:"username" yaml:"username" toml:"username"`
	Password string `json:"password" yaml:"password" toml:"password"`
	Database string `json:"database" yaml:"database" toml:"database"`
}

// Defaults returns the configuration used when no file is given.
func Defaults() Config {
	return Config{
		Scope:    "default",
		LogLevel: "info",
		Neo4j: Neo4j{
			URI:      "neo4j://localhost:7687",
			Database: "twin",
		},
	}
}

// Load reads the configuration file at path over Defaults. The format follows
// the extension: .yaml, .yml, .json or .toml.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first missing parameter needed to mirror a digital
// twin.
func (c Config) Validate() error {
	switch {
	case c.Subscription == "":
		return errors.New("missing subscription url")
	case c.Scope == "":
		return errors.New("missing scope")
	case c.Neo4j.URI == "":
		return errors.New("missing neo4j uri")
	case c.Neo4j.Database == "":
		return errors.New("missing neo4j database")
	}
	return nil
}

// Level parses LogLevel, defaulting to info.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level: %w", err)
	}
	return l, nil
}
