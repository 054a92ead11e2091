package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/carebridge/concierge/pkg/core"
	"github.com/carebridge/concierge/pkg/errors"
)

type Config struct {
	Log          LogConfig          `koanf:"log"`
	LLM          LLMConfig          `koanf:"llm"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
	Agent        AgentConfig        `koanf:"agent"`
	Audit        AuditConfig        `koanf:"audit"`
	Capabilities []CapabilityConfig `koanf:"capabilities"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider    string  `koanf:"provider"` // endpoint, ollama
	Model       string  `koanf:"model"`
	BaseURL     string  `koanf:"base_url"`
	APIKeyEnv   string  `koanf:"api_key_env"`
	Temperature float64 `koanf:"temperature"`
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // none, stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

type AgentConfig struct {
	MaxRounds         int           `koanf:"max_rounds"`
	TurnTimeout       time.Duration `koanf:"turn_timeout"`
	InvocationTimeout time.Duration `koanf:"invocation_timeout"`
}

type AuditConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// CapabilityConfig declares one backend capability.
type CapabilityConfig struct {
	ID            string        `koanf:"id"`
	Category      string        `koanf:"category"` // structured-query, function-execution, document-qa
	Protocol      string        `koanf:"protocol"` // mcp, serving
	Endpoint      string        `koanf:"endpoint"`
	CredentialEnv string        `koanf:"credential_env"`
	Timeout       time.Duration `koanf:"timeout"`
}

// Descriptor converts the config entry into a core capability descriptor.
func (c CapabilityConfig) Descriptor() core.Descriptor {
	return core.Descriptor{
		ID:            c.ID,
		Category:      core.Category(c.Category),
		Endpoint:      c.Endpoint,
		CredentialEnv: c.CredentialEnv,
		Timeout:       c.Timeout,
	}
}

// Load reads configuration from the optional YAML file at path and
// CONCIERGE_* environment variables, then validates it.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	k.Set("log.level", "info")
	k.Set("log.format", "text")
	k.Set("llm.provider", "ollama")
	k.Set("llm.model", "qwen2.5:7b-instruct")
	k.Set("llm.base_url", "http://localhost:11434")
	k.Set("telemetry.exporter", "none")
	k.Set("agent.max_rounds", 3)
	k.Set("agent.turn_timeout", "60s")
	k.Set("agent.invocation_timeout", "15s")
	k.Set("audit.enabled", false)

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.New(errors.CodeConfiguration, "loading config file", err).
				WithContext("path", path)
		}
	}

	// 2. Load from ENV (CONCIERGE_LLM_PROVIDER -> llm.provider)
	if err := k.Load(env.Provider("CONCIERGE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "CONCIERGE_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, errors.New(errors.CodeConfiguration, "loading environment", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.New(errors.CodeConfiguration, "unmarshaling config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fails fast on missing or invalid capability declarations.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Capabilities))
	for i := range c.Capabilities {
		cap := &c.Capabilities[i]
		if cap.ID == "" {
			return errors.New(errors.CodeConfiguration, "capability id is required", nil).
				WithContext("index", i)
		}
		if seen[cap.ID] {
			return errors.New(errors.CodeConfiguration, "duplicate capability id", nil).
				WithContext("id", cap.ID)
		}
		seen[cap.ID] = true
		if !core.ValidCategory(core.Category(cap.Category)) {
			return errors.New(errors.CodeConfiguration, "unknown capability category", nil).
				WithContext("id", cap.ID).
				WithContext("category", cap.Category)
		}
		if cap.Endpoint == "" {
			return errors.New(errors.CodeConfiguration, "capability endpoint is required", nil).
				WithContext("id", cap.ID)
		}
		switch cap.Protocol {
		case "":
			cap.Protocol = "mcp"
		case "mcp", "serving":
		default:
			return errors.New(errors.CodeConfiguration, "unknown capability protocol", nil).
				WithContext("id", cap.ID).
				WithContext("protocol", cap.Protocol)
		}
		if cap.Timeout == 0 {
			cap.Timeout = 10 * time.Second
		}
	}
	if c.Agent.MaxRounds <= 0 {
		c.Agent.MaxRounds = 3
	}
	if c.Audit.Enabled && c.Audit.Path == "" {
		return errors.New(errors.CodeConfiguration, "audit path is required when audit is enabled", nil)
	}
	return nil
}
