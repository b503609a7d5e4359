package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/bece/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadNodeConfigOverridesDefaults(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
device_name = "lamp"
device_id = "0042"
use_udp = true
server_port_udp = 16001
arena_size = 2048
connect_timeout = "750ms"
update_url = "http://updates.local/"
`)
	cfg, err := LoadNodeConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Identity() != "lamp_0042" {
		t.Fatalf("identity: got=%q", cfg.Identity())
	}
	if !cfg.UseUDP || cfg.ServerPortUDP != 16001 {
		t.Fatalf("udp: got=%v port=%d", cfg.UseUDP, cfg.ServerPortUDP)
	}
	if cfg.ArenaSize != 2048 || cfg.ConnectTimeout != 750*time.Millisecond {
		t.Fatalf("unexpected values: %+v", cfg)
	}
	if cfg.UpdateURL != "http://updates.local" {
		t.Fatalf("update url: got=%q", cfg.UpdateURL)
	}
	if cfg.ServerPortTCP != 15000 || cfg.MaxRegisteredCommands != 10 {
		t.Fatalf("defaults not kept: %+v", cfg)
	}
}

func TestLoadNodeConfigRejectsBadValues(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"port":      `server_port_tcp = 70000`,
		"arena":     `arena_size = 4`,
		"duration":  `read_timeout = "soon"`,
		"attempts":  `tcp_connection_attempts = 0`,
		"log level": `log_level = "loud"`,
		"unknown":   `mystery = 1`,
		"empty id":  `device_id = "  "`,
	}
	for name, body := range cases {
		if _, err := LoadNodeConfig(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadNodeConfigMissingFile(t *testing.T) {
	testlog.Start(t)
	if _, err := LoadNodeConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateNodeConfigUDPPortRequired(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultNodeConfig()
	cfg.UseUDP = true
	cfg.ServerPortUDP = 0
	if err := ValidateNodeConfig(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestNodeTemplateLoads(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "node.toml")
	if err := WriteTemplate(path, "node", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, "node", false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	cfg, err := LoadNodeConfig(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	if cfg.AdminAddr != "127.0.0.1:9180" {
		t.Fatalf("admin addr: got=%q", cfg.AdminAddr)
	}
	if _, err := Template("mirage"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
