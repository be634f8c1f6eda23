// Package config loads the opsgraph service configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/opsgraph/errors"
	gateway "github.com/c360/opsgraph/gateway/http"
	"github.com/c360/opsgraph/graphstore"
	"github.com/c360/opsgraph/ingest"
)

// envPrefix namespaces all override variables, e.g. OPSGRAPH_NEO4J_URI
const envPrefix = "OPSGRAPH_"

// NATSConfig holds the NATS connection settings
type NATSConfig struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

// SetDefaults applies default values for unset fields
func (c *NATSConfig) SetDefaults() {
	if c.URL == "" {
		c.URL = "nats://localhost:4222"
	}
	if c.Name == "" {
		c.Name = "opsgraph"
	}
}

// OpenAIConfig holds the language model settings. An empty APIKey disables
// the LLM fallback and the copilot answers from templates only.
type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// Config is the complete service configuration
type Config struct {
	LogLevel string            `yaml:"log_level"`
	NATS     NATSConfig        `yaml:"nats"`
	Neo4j    graphstore.Config `yaml:"neo4j"`
	OpenAI   OpenAIConfig      `yaml:"openai"`
	Gateway  gateway.Config    `yaml:"gateway"`
	Ingest   ingest.Config     `yaml:"ingest"`
}

// SetDefaults applies defaults across all sections
func (c *Config) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.NATS.SetDefaults()
	c.Neo4j.SetDefaults()
	c.Gateway.SetDefaults()
	c.Ingest.SetDefaults()
}

// Validate checks the configuration for completeness
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("unknown log level %q", c.LogLevel))
	}
	if err := c.Neo4j.Validate(); err != nil {
		return err
	}
	if err := c.Ingest.Validate(); err != nil {
		return err
	}
	if c.NATS.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "NATS URL")
	}
	return nil
}

// Load reads the configuration file, applies environment overrides, fills
// defaults, and validates. A missing file is not an error: the service can
// run entirely from environment variables.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env-only configuration
		case err != nil:
			return nil, errors.WrapFatal(err, "Config", "Load", fmt.Sprintf("read %s", path))
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.WrapInvalid(err, "Config", "Load", fmt.Sprintf("parse %s", path))
			}
		}
	}

	cfg.applyEnv()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays OPSGRAPH_* environment variables onto the config.
// Environment always wins over the file.
func (c *Config) applyEnv() {
	overlayString(&c.LogLevel, "LOG_LEVEL")

	overlayString(&c.NATS.URL, "NATS_URL")
	overlayString(&c.NATS.Name, "NATS_NAME")

	overlayString(&c.Neo4j.URI, "NEO4J_URI")
	overlayString(&c.Neo4j.Username, "NEO4J_USERNAME")
	overlayString(&c.Neo4j.Password, "NEO4J_PASSWORD")
	overlayString(&c.Neo4j.Database, "NEO4J_DATABASE")

	overlayString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	overlayString(&c.OpenAI.Model, "OPENAI_MODEL")

	overlayString(&c.Gateway.Addr, "GATEWAY_ADDR")
	overlayFloat(&c.Gateway.RateLimit, "GATEWAY_RATE_LIMIT")
	overlayInt(&c.Gateway.RateBurst, "GATEWAY_RATE_BURST")

	overlayString(&c.Ingest.Stream, "INGEST_STREAM")
	overlayString(&c.Ingest.DurablePrefix, "INGEST_DURABLE_PREFIX")
}

func overlayString(target *string, key string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		*target = v
	}
}

func overlayInt(target *int, key string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func overlayFloat(target *float64, key string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}
