// Package config loads the server and client settings from TOML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/omochice/framed-duplex/pkg/duplex"
)

const (
	EnvListen        = "DUPLEX_LISTEN"
	EnvMetricsListen = "DUPLEX_METRICS_LISTEN"
	EnvAddress       = "DUPLEX_ADDRESS"
	EnvTransport     = "DUPLEX_TRANSPORT"
	EnvUsername      = "DUPLEX_USERNAME"
	EnvMaxFrameSize  = "DUPLEX_MAX_FRAME_SIZE"
	EnvLogLevel      = "DUPLEX_LOG_LEVEL"
	EnvLogFormat     = "DUPLEX_LOG_FORMAT"
)

// Config is the top-level configuration loaded from a TOML file.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Client    ClientConfig    `toml:"client"`
	Transport TransportConfig `toml:"transport"`
	Log       LogConfig       `toml:"log"`
}

type ServerConfig struct {
	// Address accepting both raw TCP and WebSocket clients.
	Listen string `toml:"listen"`
	// Prometheus /metrics address. Empty disables the endpoint.
	MetricsListen string `toml:"metrics_listen"`
}

type ClientConfig struct {
	Address   string `toml:"address"`
	Transport string `toml:"transport"` // "tcp" or "ws"
	Username  string `toml:"username"`
}

// TransportConfig tunes every duplex connection.
type TransportConfig struct {
	MaxFrameSize   uint32        `toml:"max_frame_size"`
	ReadBufferSize int           `toml:"read_buffer_size"`
	DialTimeout    time.Duration `toml:"dial_timeout"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "console" or "json"
}

// Default returns the built-in configuration.
func Default() Config {
	d := duplex.DefaultConfig()
	return Config{
		Server: ServerConfig{Listen: ":8080"},
		Client: ClientConfig{
			Address:   "localhost:8080",
			Transport: "tcp",
		},
		Transport: TransportConfig{
			MaxFrameSize:   d.MaxFrameSize,
			ReadBufferSize: d.ReadBufferSize,
			DialTimeout:    d.DialTimeout,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads path on top of the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values Load cannot default.
func Validate(cfg Config) error {
	switch cfg.Client.Transport {
	case "tcp", "ws":
	default:
		return fmt.Errorf("client.transport must be tcp or ws, got %q", cfg.Client.Transport)
	}
	switch cfg.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", cfg.Log.Format)
	}
	if cfg.Transport.ReadBufferSize < 0 {
		return fmt.Errorf("transport.read_buffer_size must not be negative, got %d", cfg.Transport.ReadBufferSize)
	}
	if cfg.Transport.DialTimeout < 0 {
		return fmt.Errorf("transport.dial_timeout must not be negative, got %s", cfg.Transport.DialTimeout)
	}
	return nil
}

// Duplex converts the transport section into connection settings.
func (c TransportConfig) Duplex() duplex.Config {
	return duplex.Config{
		MaxFrameSize:   c.MaxFrameSize,
		ReadBufferSize: c.ReadBufferSize,
		DialTimeout:    c.DialTimeout,
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvListen)); v != "" {
		cfg.Server.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvMetricsListen)); v != "" {
		cfg.Server.MetricsListen = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAddress)); v != "" {
		cfg.Client.Address = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTransport)); v != "" {
		cfg.Client.Transport = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvUsername)); v != "" {
		cfg.Client.Username = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvMaxFrameSize)); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Transport.MaxFrameSize = uint32(n)
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Log.Format = strings.ToLower(v)
	}
}
