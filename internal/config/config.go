package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is read when Load is called without a path.
const DefaultPath = "config.yaml"

// EnvPrefix selects environment overrides. Nested keys use a double
// underscore: SIDEBAR_GATE__TENANT__ALLOW_HASH -> gate.tenant.allow_hash.
const EnvPrefix = "SIDEBAR_"

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Storage StorageConfig `koanf:"storage"`
	Gate    GateConfig    `koanf:"gate"`
	Host    HostConfig    `koanf:"host"`
	LLM     LLMConfig     `koanf:"llm"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	Tracing        bool          `koanf:"tracing"`

	// AllowPrivateUpstreams lets the host and model clients reach private
	// addresses, e.g. a local mock during development.
	AllowPrivateUpstreams bool `koanf:"allow_private_upstreams"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, redis, memory
	SQLite SQLiteConfig `koanf:"sqlite"`
	Redis  RedisConfig  `koanf:"redis"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Prefix   string        `koanf:"prefix"`
	TTL      time.Duration `koanf:"ttl"`
}

type GateConfig struct {
	Rules     RulesConfig     `koanf:"rules"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Tenant    TenantConfig    `koanf:"tenant"`
	Audit     AuditConfig     `koanf:"audit"`
}

// RulesConfig overrides the host context rules. Empty lists keep the defaults.
type RulesConfig struct {
	HostDomains []string `koanf:"host_domains"`
	DevOrigins  []string `koanf:"dev_origins"`
	ClientAllow []string `koanf:"client_allow"`
	ClientDeny  []string `koanf:"client_deny"`
}

type RateLimitConfig struct {
	MaxRequests int           `koanf:"max_requests"`
	Window      time.Duration `koanf:"window"`
	Cooldown    time.Duration `koanf:"cooldown"`
}

type TenantConfig struct {
	AllowHash     string        `koanf:"allow_hash"`
	Restriction   string        `koanf:"restriction"`
	Timeout       time.Duration `koanf:"timeout"`
	TimeoutPolicy string        `koanf:"timeout_policy"` // allow, deny
}

type AuditConfig struct {
	Capacity int    `koanf:"capacity"`
	Key      string `koanf:"key"`
}

// HostConfig points the host bridge at the email host's REST API.
type HostConfig struct {
	BaseURL string        `koanf:"base_url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// LLMConfig selects the model. Output length and temperature come from the
// analysis preset.
type LLMConfig struct {
	BaseURL        string `koanf:"base_url"`
	APIKey         string `koanf:"api_key"`
	Model          string `koanf:"model"`
	MaxInputTokens int    `koanf:"max_input_tokens"`
}

var defaults = map[string]any{
	"server.port":                  8080,
	"server.request_timeout":       "60s",
	"storage.type":                 "sqlite",
	"storage.sqlite.path":          "sidebar-gate.db",
	"storage.redis.addr":           "localhost:6379",
	"gate.rate_limit.max_requests": 10,
	"gate.rate_limit.window":       "1m",
	"gate.rate_limit.cooldown":     "5m",
	"gate.tenant.allow_hash":       "348387cf",
	"gate.tenant.restriction":      "the authorized organization",
	"gate.tenant.timeout":          "5s",
	"gate.tenant.timeout_policy":   "allow",
	"gate.audit.capacity":          50,
	"gate.audit.key":               "security_logs",
	"host.base_url":                "https://public.missiveapp.com/v1",
	"host.timeout":                 "10s",
	"llm.base_url":                 "https://api.openai.com/v1",
	"llm.model":                    "gpt-4o-mini",
	"llm.max_input_tokens":         6000,
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads the YAML file at path (DefaultPath when empty), applies
// SIDEBAR_ environment overrides and fills defaults. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Host.APIKey = substituteEnvVars(cfg.Host.APIKey)
	cfg.LLM.APIKey = substituteEnvVars(cfg.LLM.APIKey)
	cfg.Storage.Redis.Password = substituteEnvVars(cfg.Storage.Redis.Password)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the gate cannot run with.
func (c *Config) Validate() error {
	var problems []string

	switch c.Storage.Type {
	case "sqlite", "redis", "memory":
	default:
		problems = append(problems, fmt.Sprintf("unknown storage.type %q", c.Storage.Type))
	}
	if strings.TrimSpace(c.Gate.Tenant.AllowHash) == "" {
		problems = append(problems, "gate.tenant.allow_hash is required")
	}
	switch c.Gate.Tenant.TimeoutPolicy {
	case "allow", "deny":
	default:
		problems = append(problems, fmt.Sprintf("gate.tenant.timeout_policy must be allow or deny, got %q", c.Gate.Tenant.TimeoutPolicy))
	}
	if c.Gate.RateLimit.MaxRequests <= 0 {
		problems = append(problems, "gate.rate_limit.max_requests must be positive")
	}
	if c.Gate.RateLimit.Window <= 0 {
		problems = append(problems, "gate.rate_limit.window must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
