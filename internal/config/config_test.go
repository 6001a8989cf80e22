package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 5000 {
		t.Errorf("Port = %d, want 5000", cfg.Port)
	}
	if cfg.Reply.Mode != ReplyWindow {
		t.Errorf("Reply.Mode = %q, want %q", cfg.Reply.Mode, ReplyWindow)
	}
	if cfg.Reply.HistorySize != 10 {
		t.Errorf("Reply.HistorySize = %d, want 10", cfg.Reply.HistorySize)
	}
	if cfg.Speech.MaxAge != 30*time.Second {
		t.Errorf("Speech.MaxAge = %s, want 30s", cfg.Speech.MaxAge)
	}
	if !cfg.Commands.Enabled {
		t.Error("Commands should be enabled by default")
	}
	if cfg.Telegram.Enabled {
		t.Error("bridge should be disabled by default")
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	data := "KAI_REPLY_MODE=session\nKAI_AUDIO_MAX_AGE=15s\nGEMINI_API_KEY=from-file\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	// godotenv.Load never overrides variables already present, so clear them
	// and restore afterwards.
	for _, k := range []string{"KAI_REPLY_MODE", "KAI_AUDIO_MAX_AGE", "GEMINI_API_KEY"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Reply.Mode != ReplySession {
		t.Errorf("Reply.Mode = %q, want session", cfg.Reply.Mode)
	}
	if cfg.Speech.MaxAge != 15*time.Second {
		t.Errorf("Speech.MaxAge = %s, want 15s", cfg.Speech.MaxAge)
	}
	if cfg.Reply.GeminiAPIKey != "from-file" {
		t.Errorf("GeminiAPIKey = %q, want from-file", cfg.Reply.GeminiAPIKey)
	}
}

func TestLoadMissingEnvFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Errorf("missing env file should be ignored, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Port = 0 }},
		{"bad mode", func(c *Config) { c.Reply.Mode = "psychic" }},
		{"odd history", func(c *Config) { c.Reply.HistorySize = 7 }},
		{"tiny history", func(c *Config) { c.Reply.HistorySize = 0 }},
		{"bad emotion speech", func(c *Config) { c.Emotion.Speech = "loud" }},
		{"max age too long", func(c *Config) { c.Speech.MaxAge = time.Hour }},
		{"max age above range", func(c *Config) { c.Speech.MaxAge = 31 * time.Second }},
		{"max age too short", func(c *Config) { c.Speech.MaxAge = 10 * time.Second }},
		{"bridge without token", func(c *Config) {
			c.Telegram.Enabled = true
			c.Telegram.AllowedID = 42
		}},
		{"bridge without sender", func(c *Config) {
			c.Telegram.Enabled = true
			c.Telegram.BotToken = "t"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if err := base().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestAddr(t *testing.T) {
	cfg := &Config{Port: 8080}
	if cfg.Addr() != ":8080" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
}
