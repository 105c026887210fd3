package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("", nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Presence.IdleWindow != time.Minute {
		t.Errorf("idle window = %s", cfg.Presence.IdleWindow)
	}
	if cfg.Persistence.Driver != "log" {
		t.Errorf("driver = %q", cfg.Persistence.Driver)
	}
	if cfg.PubSub.AMQPURL != "" {
		t.Errorf("amqp url should default to the in-process bus, got %q", cfg.PubSub.AMQPURL)
	}
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	body := "presence:\n  idle_window: 45s\nhttp:\n  address: \":7000\"\n"
	if err := os.WriteFile(file, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("IM_SUPPORT_HTTP_ADDRESS", ":7100")

	cfg, err := LoadConfig(file, []string{"--presence.shards=8"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"file overrides default", cfg.Presence.IdleWindow, 45 * time.Second},
		{"env overrides file", cfg.HTTP.Address, ":7100"},
		{"flag overrides default", cfg.Presence.Shards, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Fatalf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown driver", []string{"--persistence.driver=redis"}, "persistence.driver"},
		{"zero idle window", []string{"--presence.idle_window=0s"}, "idle_window"},
		{"bad level", []string{"--service.log_level=loud"}, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig("", tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("debug")
	if err != nil || lvl != slog.LevelDebug {
		t.Fatalf("ParseLevel(debug) = %v, %v", lvl, err)
	}
}
