// Package config loads the relgraph command configuration.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"github.com/syssam/relgraph/graph"
)

// EnvPrefix is the prefix of environment variable overrides, e.g.
// RELGRAPH_DATABASE_DSN.
const EnvPrefix = "RELGRAPH"

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database" validate:"required"`
	Graph    GraphConfig    `mapstructure:"graph" yaml:"graph"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Access   AccessConfig   `mapstructure:"access" yaml:"access"`
	Models   []string       `mapstructure:"models" yaml:"models" validate:"required,min=1,dive,required"`
	Seed     SeedConfig     `mapstructure:"seed" yaml:"seed"`
	Generate GenerateConfig `mapstructure:"generate" yaml:"generate"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Dialect string `mapstructure:"dialect" yaml:"dialect" validate:"required,oneof=sqlite mysql postgres"`
	DSN     string `mapstructure:"dsn" yaml:"dsn" validate:"required"`
}

// GraphConfig contains association graph settings.
type GraphConfig struct {
	EagerDepth int `mapstructure:"eager_depth" yaml:"eager_depth" validate:"min=0,max=8"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
}

// AccessConfig configures the default access model.
type AccessConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	StaticSalt string `mapstructure:"static_salt" yaml:"static_salt" validate:"required_if=Enabled true,omitempty,hexadecimal,len=32"`
}

// SeedConfig contains the seed file patterns.
type SeedConfig struct {
	Files       []string `mapstructure:"files" yaml:"files"`
	Strict      bool     `mapstructure:"strict" yaml:"strict"`
	Concurrency int      `mapstructure:"concurrency" yaml:"concurrency" validate:"min=1,max=64"`
}

// GenerateConfig contains the code generation output settings.
type GenerateConfig struct {
	Output  string `mapstructure:"output" yaml:"output" validate:"required"`
	Package string `mapstructure:"package" yaml:"package" validate:"required"`
	Docs    bool   `mapstructure:"docs" yaml:"docs"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Dialect: "sqlite",
			DSN:     "file:relgraph.db?_pragma=foreign_keys(1)",
		},
		Graph: GraphConfig{
			EagerDepth: graph.DefaultDepth,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Models: []string{"models/**/*.yaml"},
		Seed: SeedConfig{
			Files:       []string{"data/**/*.yaml"},
			Concurrency: 4,
		},
		Generate: GenerateConfig{
			Output:  "relgraphsession",
			Package: "relgraphsession",
			Docs:    true,
		},
	}
}

// Load reads the configuration file at path. Values missing from the file
// keep their defaults, and RELGRAPH_ environment variables override both.
// An empty path loads only defaults and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Database.DSN = interpolate(cfg.Database.DSN)
	cfg.Access.StaticSalt = interpolate(cfg.Access.StaticSalt)

	if err := NewValidator().Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadWithDefaults loads the file at path, or only the defaults and the
// environment when the file does not exist.
func LoadWithDefaults(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Load("")
	}
	return Load(path)
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("database.dialect", d.Database.Dialect)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("graph.eager_depth", d.Graph.EagerDepth)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("access.enabled", d.Access.Enabled)
	v.SetDefault("access.static_salt", d.Access.StaticSalt)
	v.SetDefault("models", d.Models)
	v.SetDefault("seed.files", d.Seed.Files)
	v.SetDefault("seed.strict", d.Seed.Strict)
	v.SetDefault("seed.concurrency", d.Seed.Concurrency)
	v.SetDefault("generate.output", d.Generate.Output)
	v.SetDefault("generate.package", d.Generate.Package)
	v.SetDefault("generate.docs", d.Generate.Docs)
}

var envVar = regexp.MustCompile(`\$\{([^}]+)\}`)

// interpolate replaces ${VAR} with the value of the environment variable.
// Unset variables are left as is.
func interpolate(s string) string {
	return envVar.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Logger builds a slog logger writing to w at the configured level and format.
func (c LogConfig) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
