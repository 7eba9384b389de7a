// Package config loads the process-wide AI orchestration settings. A Config is
// built once at startup and treated as read-only afterwards.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/johnayoung/jazamiti-consensus/internal/provider"
)

// Defaults applied before any file or environment override.
const (
	DefaultConsensusThreshold = 2
	DefaultFallbackProvider   = provider.OpenAIID
	DefaultTemperature        = 0.1
	DefaultMaxTokens          = 1000
	DefaultTimeout            = 60 * time.Second
)

var defaultModels = map[provider.ID]string{
	provider.OpenAIID: "gpt-4o",
	provider.GeminiID: "gemini-1.5-pro",
	provider.ClaudeID: "claude-3-5-sonnet-20241022",
}

// envPrefixes maps each backend to the prefix of its environment variables.
var envPrefixes = map[provider.ID]string{
	provider.OpenAIID: "OPENAI",
	provider.GeminiID: "GEMINI",
	provider.ClaudeID: "CLAUDE",
}

// ProviderConfig holds the settings for one AI backend.
type ProviderConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled"`
	APIKey      string        `yaml:"api_key" json:"-"`
	Model       string        `yaml:"model" json:"model" validate:"required"`
	Temperature float64       `yaml:"temperature" json:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens" validate:"gt=0"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
	BaseURL     string        `yaml:"base_url" json:"base_url,omitempty" validate:"omitempty,url"`
	// RateLimit caps requests per second to the backend; zero means unlimited.
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit,omitempty" validate:"gte=0"`
}

// Settings returns the model parameters an adapter is bound to.
func (p ProviderConfig) Settings() provider.Settings {
	return provider.Settings{
		Model:       p.Model,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}
}

// Config is the full orchestration configuration.
type Config struct {
	Providers          map[provider.ID]ProviderConfig
	ConsensusThreshold int
	FallbackProvider   provider.ID
}

// Orchestration is the engine-facing view of Config.
type Orchestration struct {
	Enabled            []provider.ID `json:"enabled"`
	ConsensusThreshold int           `json:"consensus_threshold"`
	FallbackProvider   provider.ID   `json:"fallback_provider"`
}

// Default returns a configuration with every backend disabled and the
// documented model defaults.
func Default() Config {
	cfg := Config{
		Providers:          make(map[provider.ID]ProviderConfig, len(provider.KnownIDs)),
		ConsensusThreshold: DefaultConsensusThreshold,
		FallbackProvider:   DefaultFallbackProvider,
	}
	for _, id := range provider.KnownIDs {
		cfg.Providers[id] = ProviderConfig{
			Model:       defaultModels[id],
			Temperature: DefaultTemperature,
			MaxTokens:   DefaultMaxTokens,
			Timeout:     DefaultTimeout,
		}
	}
	return cfg
}

// Orchestration returns the enabled backends in canonical order together
// with the threshold and fallback settings.
func (c Config) Orchestration() Orchestration {
	o := Orchestration{
		ConsensusThreshold: c.ConsensusThreshold,
		FallbackProvider:   c.FallbackProvider,
	}
	for _, id := range provider.KnownIDs {
		if c.Providers[id].Enabled {
			o.Enabled = append(o.Enabled, id)
		}
	}
	return o
}

// LoadOptions controls where Load reads settings from.
type LoadOptions struct {
	// File is an optional YAML file applied on top of the defaults.
	File string
	// EnvFile is a dotenv file merged into the process environment when it
	// exists. Variables already set in the environment win.
	EnvFile string
}

// Load builds the configuration from defaults, then File, then the
// environment (including EnvFile).
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	if opts.File != "" {
		var err error
		if cfg, err = LoadFile(opts.File, cfg); err != nil {
			return Config{}, err
		}
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", opts.EnvFile, err)
		}
	}

	return FromEnv(os.Getenv, cfg)
}

type fileProvider struct {
	Enabled     *bool          `yaml:"enabled"`
	APIKey      *string        `yaml:"api_key"`
	Model       *string        `yaml:"model"`
	Temperature *float64       `yaml:"temperature"`
	MaxTokens   *int           `yaml:"max_tokens"`
	Timeout     *time.Duration `yaml:"timeout"`
	BaseURL     *string        `yaml:"base_url"`
	RateLimit   *float64       `yaml:"rate_limit"`
}

type fileConfig struct {
	ConsensusThreshold *int                          `yaml:"consensus_threshold"`
	FallbackProvider   *provider.ID                  `yaml:"fallback_provider"`
	Providers          map[provider.ID]*fileProvider `yaml:"providers"`
}

// LoadFile overlays the YAML file at path onto base. Keys absent from the
// file keep their base values.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	cfg := base.clone()
	if fc.ConsensusThreshold != nil {
		cfg.ConsensusThreshold = *fc.ConsensusThreshold
	}
	if fc.FallbackProvider != nil {
		cfg.FallbackProvider = *fc.FallbackProvider
	}
	for id, fp := range fc.Providers {
		if fp == nil {
			continue
		}
		pc := cfg.Providers[id]
		setIf(&pc.Enabled, fp.Enabled)
		setIf(&pc.APIKey, fp.APIKey)
		setIf(&pc.Model, fp.Model)
		setIf(&pc.Temperature, fp.Temperature)
		setIf(&pc.MaxTokens, fp.MaxTokens)
		setIf(&pc.Timeout, fp.Timeout)
		setIf(&pc.BaseURL, fp.BaseURL)
		setIf(&pc.RateLimit, fp.RateLimit)
		cfg.Providers[id] = pc
	}
	return cfg, nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// FromEnv overlays environment variables onto base. Unset variables keep
// the base value; malformed numbers are reported as errors.
//
// Per backend (OPENAI, GEMINI, CLAUDE): ENABLE_<P>, <P>_API_KEY, <P>_MODEL,
// <P>_TEMPERATURE, <P>_MAX_TOKENS, <P>_TIMEOUT, <P>_BASE_URL, <P>_RATE_LIMIT. Global:
// CONSENSUS_THRESHOLD, FALLBACK_MODEL.
func FromEnv(getenv func(string) string, base Config) (Config, error) {
	cfg := base.clone()
	var errs []error

	lookup := func(key string) (string, bool) {
		v := strings.TrimSpace(getenv(key))
		return v, v != ""
	}
	getInt := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s=%q", key, v))
				return
			}
			*dst = n
		}
	}
	getFloat := func(key string, dst *float64) {
		if v, ok := lookup(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s=%q", key, v))
				return
			}
			*dst = f
		}
	}
	getDuration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s=%q", key, v))
				return
			}
			*dst = d
		}
	}
	getString := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	for _, id := range provider.KnownIDs {
		prefix := envPrefixes[id]
		pc := cfg.Providers[id]
		if v, ok := lookup("ENABLE_" + prefix); ok {
			pc.Enabled = v == "true"
		}
		getString(prefix+"_API_KEY", &pc.APIKey)
		getString(prefix+"_MODEL", &pc.Model)
		getFloat(prefix+"_TEMPERATURE", &pc.Temperature)
		getInt(prefix+"_MAX_TOKENS", &pc.MaxTokens)
		getDuration(prefix+"_TIMEOUT", &pc.Timeout)
		getString(prefix+"_BASE_URL", &pc.BaseURL)
		getFloat(prefix+"_RATE_LIMIT", &pc.RateLimit)
		cfg.Providers[id] = pc
	}

	getInt("CONSENSUS_THRESHOLD", &cfg.ConsensusThreshold)
	if v, ok := lookup("FALLBACK_MODEL"); ok {
		cfg.FallbackProvider = provider.ID(v)
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

func (c Config) clone() Config {
	out := c
	out.Providers = make(map[provider.ID]ProviderConfig, len(c.Providers))
	for id, pc := range c.Providers {
		out.Providers[id] = pc
	}
	return out
}
