// Package config provides configuration management for mdcollate.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/solatis/mdcollate/internal/aggregate"
	"github.com/solatis/mdcollate/internal/schema"
	"github.com/solatis/mdcollate/internal/types"
)

// EngineConfig bounds and tunes aggregation runs.
type EngineConfig struct {
	MaxDocuments  int
	SkipNull      bool
	SkipUndefined bool
	PreserveOrder bool
}

// ServerConfig holds configuration for the gRPC aggregation service.
type ServerConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
}

// StoreConfig locates the run store. An empty DBURL disables persistence.
type StoreConfig struct {
	DBURL string
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string
	Format string
}

// Config is the full mdcollate configuration.
type Config struct {
	Engine EngineConfig
	// Extensions maps logical extension names to the schema key spelling,
	// e.g. "frontmatter-part" -> "x-part".
	Extensions map[string]string
	Server     ServerConfig
	Store      StoreConfig
	Log        LogConfig
}

// Default returns configuration with default values.
func Default() *Config {
	opts := aggregate.DefaultOptions()
	return &Config{
		Engine: EngineConfig{
			MaxDocuments:  types.DefaultMaxDocuments,
			SkipNull:      opts.SkipNull,
			SkipUndefined: opts.SkipUndefined,
			PreserveOrder: opts.PreserveOrder,
		},
		Extensions: map[string]string{},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           50051,
			RequestTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// AggregationOptions converts the engine section to aggregation options.
func (c *Config) AggregationOptions() aggregate.Options {
	return aggregate.Options{
		SkipNull:      c.Engine.SkipNull,
		SkipUndefined: c.Engine.SkipUndefined,
		PreserveOrder: c.Engine.PreserveOrder,
	}
}

// Registry builds the extension key registry from the extensions section.
func (c *Config) Registry() (schema.Registry, error) {
	reg, err := schema.NewRegistry(c.Extensions)
	if err != nil {
		return schema.Registry{}, fmt.Errorf("extensions: %w", err)
	}
	return reg, nil
}

// Addr returns the server listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
