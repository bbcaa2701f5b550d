package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.Type != "local" {
		t.Fatalf("provider.type = %q, want local", cfg.Provider.Type)
	}
	if cfg.Gateway.MaxRewrites != 2 || cfg.Gateway.ExhaustionPolicy != "annotate" {
		t.Fatalf("gateway defaults = %+v", cfg.Gateway)
	}
	if cfg.Planner.MustTargetCount != 3 || cfg.Planner.SpacingWindow != 3 {
		t.Fatalf("planner defaults = %+v", cfg.Planner)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suda.yaml")
	body := []byte(`
provider:
  type: openai
  model: gpt-5-mini
  api_key: sk-test
gateway:
  max_rewrites: 1
  exhaustion_policy: reject
planner:
  allow_new_words: true
  max_new_words_per_session: 2
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.Type != "openai" || cfg.Provider.APIKey != "sk-test" {
		t.Fatalf("provider = %+v", cfg.Provider)
	}
	if cfg.Gateway.MaxRewrites != 1 || cfg.Gateway.ExhaustionPolicy != "reject" {
		t.Fatalf("gateway = %+v", cfg.Gateway)
	}
	if !cfg.Planner.AllowNewWords || cfg.Planner.MaxNewWordsPerSession != 2 {
		t.Fatalf("planner = %+v", cfg.Planner)
	}
	// File settings merge over defaults rather than replacing them.
	if cfg.Planner.MustTargetCount != 3 {
		t.Fatalf("must_target_count = %d, want default 3", cfg.Planner.MustTargetCount)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateFailsFast(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"openai without key", func(c *Config) { c.Provider.Type = "openai" }},
		{"unknown provider", func(c *Config) { c.Provider.Type = "carrier-pigeon" }},
		{"negative rewrites", func(c *Config) { c.Gateway.MaxRewrites = -1 }},
		{"bad policy", func(c *Config) { c.Gateway.ExhaustionPolicy = "shrug" }},
		{"bad redaction", func(c *Config) { c.Redaction = "extreme" }},
		{"zero targets", func(c *Config) { c.Planner.MustTargetCount = 0 }},
		{"inverted bands", func(c *Config) {
			c.Planner.BandColdThreshold = 0.9
			c.Planner.BandStretchThreshold = 0.1
		}},
		{"new words with zero budget", func(c *Config) {
			c.Planner.AllowNewWords = true
			c.Planner.MaxNewWordsPerSession = 0
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("invalid config accepted")
			}
			if _, ok := err.(*ConfigurationError); !ok {
				t.Fatalf("err = %T, want *ConfigurationError", err)
			}
		})
	}
}

func TestAPIKeyFromFile(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(keyPath, []byte("sk-from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Provider.Type = "openai"
	cfg.Provider.Model = "gpt-5-mini"
	cfg.Provider.APIKeyFile = keyPath

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Provider.APIKey != "sk-from-file" {
		t.Fatalf("APIKey = %q, want trimmed file contents", cfg.Provider.APIKey)
	}
}
