package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/omochice/framed-duplex/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Listen != ":8080" {
		t.Errorf("Server.Listen = %q, want %q", cfg.Server.Listen, ":8080")
	}
	if cfg.Client.Transport != "tcp" {
		t.Errorf("Client.Transport = %q, want %q", cfg.Client.Transport, "tcp")
	}
	if cfg.Transport.MaxFrameSize == 0 {
		t.Error("Transport.MaxFrameSize = 0, want default")
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
[server]
listen = "127.0.0.1:9000"
metrics_listen = "127.0.0.1:9001"

[client]
address = "example.test:9000"
transport = "ws"
username = "alice"

[transport]
max_frame_size = 1024
read_buffer_size = 512
dial_timeout = "2s"

[log]
level = "debug"
format = "json"
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:9000" || cfg.Server.MetricsListen != "127.0.0.1:9001" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Client.Transport != "ws" || cfg.Client.Username != "alice" {
		t.Errorf("Client = %+v", cfg.Client)
	}
	d := cfg.Transport.Duplex()
	if d.MaxFrameSize != 1024 || d.ReadBufferSize != 512 || d.DialTimeout != 2*time.Second {
		t.Errorf("Duplex() = %+v", d)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(config.EnvTransport, "WS")
	t.Setenv(config.EnvMaxFrameSize, "2048")
	t.Setenv(config.EnvUsername, "bob")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Client.Transport != "ws" {
		t.Errorf("Client.Transport = %q, want %q", cfg.Client.Transport, "ws")
	}
	if cfg.Transport.MaxFrameSize != 2048 {
		t.Errorf("Transport.MaxFrameSize = %d, want 2048", cfg.Transport.MaxFrameSize)
	}
	if cfg.Client.Username != "bob" {
		t.Errorf("Client.Username = %q, want %q", cfg.Client.Username, "bob")
	}
}

func TestLoad_InvalidTransport(t *testing.T) {
	path := writeConfig(t, "[client]\ntransport = \"udp\"\n")
	if _, err := config.Load(path); err == nil {
		t.Error("Load() error = nil, want invalid transport error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("Load() error = nil, want parse error")
	}
}
