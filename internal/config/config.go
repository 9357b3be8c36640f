// Package config holds the client configuration: where the portfolio backend
// lives, how the signaling channel reconnects, and where local state (chat
// history cache, admin content) is kept on disk.
//
// The config is a JSON file (portfolio.json) in the peer directory. Every
// field can be overridden through the environment (PORTFOLIO_* variables),
// which is how container deployments tune the backend URLs without touching
// the file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/ndquang/portfolio-rtc/internal/util"
)

type Config struct {
	Server Server `json:"server"`
	Call   Call   `json:"call"`
	Chat   Chat   `json:"chat"`
	Admin  Admin  `json:"admin"`
}

type Server struct {
	// BaseURL is the REST collaborator (portfolio data, chat history,
	// uploads). The /api/v1 prefix is appended by the api client.
	BaseURL string `json:"base_url" env:"PORTFOLIO_BASE_URL"`

	// SocketURL is the raw WebSocket endpoint of the STOMP broker. The
	// backend exposes SockJS on /ws; the plain WebSocket transport lives at
	// /ws/websocket.
	SocketURL string `json:"socket_url" env:"PORTFOLIO_SOCKET_URL"`

	// ReconnectDelaySec is the fixed redial delay for channels that opt in
	// to reconnection (call sessions, the admin presence listener). The
	// visitor chat channel connects once and degrades to demo mode instead.
	ReconnectDelaySec int `json:"reconnect_delay_seconds" env:"PORTFOLIO_RECONNECT_DELAY"`
}

type Call struct {
	// STUNServers for ICE gathering. Empty means host candidates only.
	STUNServers []string `json:"stun_servers" env:"PORTFOLIO_STUN_SERVERS" envSeparator:","`
}

type Chat struct {
	// GuestName overrides the generated Guest_<n> identity.
	GuestName string `json:"guest_name" env:"PORTFOLIO_GUEST_NAME"`

	// HistoryDB is the SQLite chat-history cache, relative to the peer dir.
	HistoryDB string `json:"history_db" env:"PORTFOLIO_HISTORY_DB"`

	// BufferSize is the in-memory message window shown by the widget.
	BufferSize int `json:"buffer_size" env:"PORTFOLIO_CHAT_BUFFER"`
}

type Admin struct {
	// Name is the display name the admin joins chat with.
	Name string `json:"name" env:"PORTFOLIO_ADMIN_NAME"`

	// ContentDir holds profile.json and projects/*.json; when present the
	// admin runner watches it and pushes edits to the backend.
	ContentDir string `json:"content_dir" env:"PORTFOLIO_CONTENT_DIR"`
}

func Default() Config {
	return Config{
		Server: Server{
			BaseURL:           "http://localhost:8080",
			SocketURL:         "ws://localhost:8080/ws/websocket",
			ReconnectDelaySec: 5,
		},
		Call: Call{
			STUNServers: []string{"stun:stun.l.google.com:19302"},
		},
		Chat: Chat{
			HistoryDB:  "data/history.db",
			BufferSize: 100,
		},
		Admin: Admin{
			Name:       "Admin",
			ContentDir: "content",
		},
	}
}

func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return errors.New("server.base_url must not be empty")
	}
	u, err := url.Parse(c.Server.SocketURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("server.socket_url must be a ws:// or wss:// URL, got %q", c.Server.SocketURL)
	}
	if c.Server.ReconnectDelaySec < 0 {
		return errors.New("server.reconnect_delay_seconds must not be negative")
	}
	for _, s := range c.Call.STUNServers {
		if !strings.HasPrefix(s, "stun:") && !strings.HasPrefix(s, "turn:") {
			return fmt.Errorf("call.stun_servers entry %q must start with stun: or turn:", s)
		}
	}
	if c.Chat.BufferSize <= 0 {
		return errors.New("chat.buffer_size must be positive")
	}
	return nil
}

// Load reads the config file, applies environment overrides and validates.
// Missing JSON fields keep their defaults.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	b = stripBOM(b)

	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// stripBOM removes a UTF-8 byte order mark if present (common when the JSON
// was edited on Windows).
func stripBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}

func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return util.WriteJSONFile(path, cfg)
}

// Ensure loads the config if the file exists, otherwise writes one with
// defaults. Returns (cfg, createdNew, err).
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("create default config: %w", err)
	}
	// Environment still applies to a freshly created file.
	if err := env.Parse(&cfg); err != nil {
		return Config{}, false, fmt.Errorf("environment overrides: %w", err)
	}
	return cfg, true, nil
}
