package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// environment > config file > defaults precedence; CLI flags are applied by the
// caller on the returned Config.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults matching Default
	def := Default()
	v.SetDefault("engine.max_documents", def.Engine.MaxDocuments)
	v.SetDefault("engine.skip_null", def.Engine.SkipNull)
	v.SetDefault("engine.skip_undefined", def.Engine.SkipUndefined)
	v.SetDefault("engine.preserve_order", def.Engine.PreserveOrder)
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.request_timeout", def.Server.RequestTimeout.String())
	v.SetDefault("store.db_url", "")
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)

	// Bind environment variables with MDC_ prefix
	v.SetEnvPrefix("MDC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Engine: EngineConfig{
			MaxDocuments:  v.GetInt("engine.max_documents"),
			SkipNull:      v.GetBool("engine.skip_null"),
			SkipUndefined: v.GetBool("engine.skip_undefined"),
			PreserveOrder: v.GetBool("engine.preserve_order"),
		},
		Extensions: v.GetStringMapString("extensions"),
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
		},
		Store: StoreConfig{
			DBURL: v.GetString("store.db_url"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port range, positive limits, log settings and the
// extension key overrides.
func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.Server.RequestTimeout)
	}
	if cfg.Engine.MaxDocuments < 0 {
		return fmt.Errorf("max_documents must not be negative, got %d", cfg.Engine.MaxDocuments)
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be debug, info, warn or error, got %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json, got %q", cfg.Log.Format)
	}
	if _, err := cfg.Registry(); err != nil {
		return err
	}
	return nil
}
