// Package config loads and validates runtime configuration from file,
// environment and defaults. Validation runs before a session starts; a bad
// configuration is never discovered mid-conversation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/suda-labs/suda/internal/planner"
	"github.com/suda-labs/suda/internal/provider"
)

// ConfigurationError marks a problem that must abort session start.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// Provider selects and configures the generation backend.
type Provider struct {
	Type            string `mapstructure:"type"`
	Model           string `mapstructure:"model"`
	APIKey          string `mapstructure:"api_key"`
	APIKeyFile      string `mapstructure:"api_key_file"`
	BaseURL         string `mapstructure:"base_url"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	MaxOutputTokens int    `mapstructure:"max_output_tokens"`
}

// Gateway tunes the validation/rewrite loop.
type Gateway struct {
	MaxRewrites        int     `mapstructure:"max_rewrites"`
	ExhaustionPolicy   string  `mapstructure:"exhaustion_policy"`
	SafeMode           bool    `mapstructure:"safe_mode"`
	MaxCorrections     int     `mapstructure:"max_corrections"`
	MaxReplySimilarity float64 `mapstructure:"max_reply_similarity"`
}

// Config is the full runtime configuration.
type Config struct {
	DBPath    string           `mapstructure:"db_path"`
	Redaction string           `mapstructure:"redaction"`
	Provider  Provider         `mapstructure:"provider"`
	Gateway   Gateway          `mapstructure:"gateway"`
	Planner   planner.Settings `mapstructure:"planner"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", defaultDBPath())
	v.SetDefault("redaction", "minimal")

	v.SetDefault("provider.type", "local")
	v.SetDefault("provider.model", "gpt-5-mini")
	v.SetDefault("provider.timeout_seconds", 180)
	v.SetDefault("provider.max_output_tokens", 1024)

	v.SetDefault("gateway.max_rewrites", 2)
	v.SetDefault("gateway.exhaustion_policy", "annotate")
	v.SetDefault("gateway.max_corrections", 1)
	v.SetDefault("gateway.max_reply_similarity", 0.9)

	p := planner.DefaultSettings()
	v.SetDefault("planner.must_target_count", p.MustTargetCount)
	v.SetDefault("planner.allowed_support_count", p.AllowedSupportCount)
	v.SetDefault("planner.allowed_stretch_count", p.AllowedStretchCount)
	v.SetDefault("planner.spacing_window", p.SpacingWindow)
	v.SetDefault("planner.session_turn_budget", p.SessionTurnBudget)
	v.SetDefault("planner.min_exposures", p.MinExposures)
	v.SetDefault("planner.band_cold_threshold", p.BandColdThreshold)
	v.SetDefault("planner.band_fragile_threshold", p.BandFragileThreshold)
	v.SetDefault("planner.band_stretch_threshold", p.BandStretchThreshold)
	v.SetDefault("planner.allow_new_words", p.AllowNewWords)
	v.SetDefault("planner.max_new_words_per_session", p.MaxNewWordsPerSession)
	v.SetDefault("planner.force_new_word_every_n_turns", p.ForceNewWordEveryNTurns)
	v.SetDefault("planner.treat_unseen_as_support", p.TreatUnseenAsSupport)
	v.SetDefault("planner.sentence_length_max", p.SentenceLengthMax)
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "suda.db"
	}
	return filepath.Join(home, ".suda", "suda.db")
}

// Load reads configuration from the given file (optional), SUDA_* environment
// variables and defaults, in that order of precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SUDA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("read %s: %v", path, err)}
		}
	} else {
		v.SetConfigName("suda")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".suda"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, &ConfigurationError{Reason: fmt.Sprintf("read config: %v", err)}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("decode config: %v", err)}
	}
	return &cfg, nil
}

// Validate enforces the invariants a session depends on. It resolves the API
// key as a side effect so Provider.APIKey is usable afterwards.
func (c *Config) Validate() error {
	switch c.Provider.Type {
	case "openai":
		key, err := c.resolveAPIKey()
		if err != nil {
			return err
		}
		if key == "" {
			return &ConfigurationError{Reason: "provider.type is openai but no API key is configured " +
				"(set provider.api_key, provider.api_key_file or OPENAI_API_KEY)"}
		}
		c.Provider.APIKey = key
		if c.Provider.Model == "" {
			return &ConfigurationError{Reason: "provider.model must be set for openai"}
		}
	case "local", "":
	default:
		return &ConfigurationError{Reason: fmt.Sprintf("unknown provider.type %q", c.Provider.Type)}
	}

	if c.Gateway.MaxRewrites < 0 {
		return &ConfigurationError{Reason: "gateway.max_rewrites must be >= 0"}
	}
	switch c.Gateway.ExhaustionPolicy {
	case "annotate", "reject", "":
	default:
		return &ConfigurationError{Reason: fmt.Sprintf("unknown gateway.exhaustion_policy %q", c.Gateway.ExhaustionPolicy)}
	}
	switch c.Redaction {
	case "none", "minimal", "strict", "":
	default:
		return &ConfigurationError{Reason: fmt.Sprintf("unknown redaction level %q", c.Redaction)}
	}

	p := c.Planner
	if p.MustTargetCount < 1 {
		return &ConfigurationError{Reason: "planner.must_target_count must be >= 1"}
	}
	if p.SpacingWindow < 0 || p.SessionTurnBudget < 1 {
		return &ConfigurationError{Reason: "planner spacing/turn-budget settings out of range"}
	}
	if !(p.BandColdThreshold < p.BandFragileThreshold && p.BandFragileThreshold < p.BandStretchThreshold) {
		return &ConfigurationError{Reason: "planner band thresholds must be strictly increasing"}
	}
	if p.AllowNewWords && p.MaxNewWordsPerSession < 1 {
		return &ConfigurationError{Reason: "planner.max_new_words_per_session must be >= 1 when new words are enabled"}
	}
	return nil
}

func (c *Config) resolveAPIKey() (string, error) {
	if c.Provider.APIKey != "" {
		return c.Provider.APIKey, nil
	}
	if c.Provider.APIKeyFile != "" {
		data, err := os.ReadFile(c.Provider.APIKeyFile)
		if err != nil {
			return "", &ConfigurationError{Reason: fmt.Sprintf("read api key file: %v", err)}
		}
		return strings.TrimSpace(string(data)), nil
	}
	return os.Getenv("OPENAI_API_KEY"), nil
}

// ProviderOptions maps the config onto the provider factory input.
func (c *Config) ProviderOptions() provider.Options {
	return provider.Options{
		Type:            c.Provider.Type,
		Model:           c.Provider.Model,
		APIKey:          c.Provider.APIKey,
		BaseURL:         c.Provider.BaseURL,
		MaxOutputTokens: c.Provider.MaxOutputTokens,
	}
}

// ProviderTimeout returns the per-call provider timeout.
func (c *Config) ProviderTimeout() time.Duration {
	if c.Provider.TimeoutSeconds <= 0 {
		return 3 * time.Minute
	}
	return time.Duration(c.Provider.TimeoutSeconds) * time.Second
}
