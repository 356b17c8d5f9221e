package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if resolved != path {
		t.Fatalf("resolved = %q, want %q", resolved, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}

	want := Default()
	if cfg.Server != want.Server || cfg.RemoteCallTimeout != want.RemoteCallTimeout || cfg.APIBurst != want.APIBurst {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.DatabasePath != filepath.Join(filepath.Dir(path), "chat.db") {
		t.Fatalf("database path = %q", cfg.DatabasePath)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("server: irc.example.test:6697\ntls: true\nremote_call_timeout: 3s\ndatabase_path: /tmp/x.db\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHATSESSION_LOG_LEVEL", "debug")
	t.Setenv("CHATSESSION_MESSAGE_HISTORY", "42")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server != "irc.example.test:6697" || !cfg.TLS {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.RemoteCallTimeout != 3*time.Second {
		t.Fatalf("remote_call_timeout = %v", cfg.RemoteCallTimeout)
	}
	if cfg.LogLevel != "debug" || cfg.MessageHistory != 42 {
		t.Fatalf("env values not applied: %+v", cfg)
	}
	if cfg.DatabasePath != "/tmp/x.db" {
		t.Fatalf("database path = %q", cfg.DatabasePath)
	}
	if cfg.ClientID != Default().ClientID {
		t.Fatalf("default client id lost: %q", cfg.ClientID)
	}
}

func TestUpdateFrom(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Server: "other:6667", FetchTimeout: time.Second})

	if cfg.Server != "other:6667" || cfg.FetchTimeout != time.Second {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.APIBaseURL != Default().APIBaseURL {
		t.Fatal("zero value overwrote a default")
	}
}
