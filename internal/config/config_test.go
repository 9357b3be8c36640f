package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestEnsureCreatesAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.json")

	cfg, created, err := Ensure(path)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("expected created=true for missing file")
	}
	if cfg.Server.BaseURL != "http://localhost:8080" {
		t.Fatalf("unexpected base url %q", cfg.Server.BaseURL)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	cfg2, created, err := Ensure(path)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("expected created=false for existing file")
	}
	if cfg2.Server.SocketURL != cfg.Server.SocketURL {
		t.Fatalf("reload mismatch: %q vs %q", cfg2.Server.SocketURL, cfg.Server.SocketURL)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.json")
	body := `{"server":{"base_url":"https://site.example"}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.BaseURL != "https://site.example" {
		t.Fatalf("base url = %q", cfg.Server.BaseURL)
	}
	if cfg.Chat.BufferSize != 100 {
		t.Fatalf("buffer size default lost: %d", cfg.Chat.BufferSize)
	}
	if cfg.Server.SocketURL != "ws://localhost:8080/ws/websocket" {
		t.Fatalf("socket url default lost: %q", cfg.Server.SocketURL)
	}
}

func TestLoadStripsBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.json")
	body := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`{"chat":{"guest_name":"Alex"}}`)...)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Chat.GuestName != "Alex" {
		t.Fatalf("guest name = %q", cfg.Chat.GuestName)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PORTFOLIO_BASE_URL", "https://env.example")
	t.Setenv("PORTFOLIO_STUN_SERVERS", "stun:a.example:3478,stun:b.example:3478")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.BaseURL != "https://env.example" {
		t.Fatalf("env override ignored: %q", cfg.Server.BaseURL)
	}
	if len(cfg.Call.STUNServers) != 2 || cfg.Call.STUNServers[1] != "stun:b.example:3478" {
		t.Fatalf("stun servers = %v", cfg.Call.STUNServers)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base url", func(c *Config) { c.Server.BaseURL = "" }},
		{"http socket url", func(c *Config) { c.Server.SocketURL = "http://localhost:8080/ws" }},
		{"negative reconnect", func(c *Config) { c.Server.ReconnectDelaySec = -1 }},
		{"bad stun scheme", func(c *Config) { c.Call.STUNServers = []string{"https://x"} }},
		{"zero buffer", func(c *Config) { c.Chat.BufferSize = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
