package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCoordinatorDefaultsOnMissingFile(t *testing.T) {
	cfg, err := LoadCoordinator(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadCoordinator: %v", err)
	}
	if cfg.TCPPort != DefaultTCPPort || cfg.UDPPort != DefaultUDPPort {
		t.Fatalf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoadCoordinatorOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := "bind_ip: 127.0.0.1\ntcp_port: 6000\ndead_timeout_s: 20\nstore_path: my.db\n"
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadCoordinator(path)
	if err != nil {
		t.Fatalf("LoadCoordinator: %v", err)
	}
	if cfg.BindIP != "127.0.0.1" || cfg.TCPPort != 6000 || cfg.DeadTimeoutS != 20 || cfg.StorePath != "my.db" {
		t.Fatalf("cfg = %+v, want overridden fields", cfg)
	}
	if cfg.UDPPort != DefaultUDPPort {
		t.Fatalf("udp_port = %d, want default %d to survive partial override", cfg.UDPPort, DefaultUDPPort)
	}
}

func TestCoordinatorAddrHelpers(t *testing.T) {
	cfg := Coordinator{BindIP: "0.0.0.0", TCPPort: 5007, UDPPort: 5008}
	if cfg.TCPAddr() != "0.0.0.0:5007" {
		t.Fatalf("TCPAddr = %q", cfg.TCPAddr())
	}
	if cfg.UDPAddr() != "0.0.0.0:5008" {
		t.Fatalf("UDPAddr = %q", cfg.UDPAddr())
	}
}

func TestNodeEmitIntervalConversion(t *testing.T) {
	n := Node{EmitIntervalS: 0.5}
	if n.EmitInterval().String() != "500ms" {
		t.Fatalf("EmitInterval = %v, want 500ms", n.EmitInterval())
	}
}

func TestResolveStorePathRelativeToConfigDir(t *testing.T) {
	got := ResolveStorePath("/etc/heartchain/config.yaml", "state.db")
	if got != "/etc/heartchain/state.db" {
		t.Fatalf("ResolveStorePath = %q", got)
	}
}

func TestResolveStorePathAbsoluteUnchanged(t *testing.T) {
	got := ResolveStorePath("/etc/heartchain/config.yaml", "/var/lib/heartchain.db")
	if got != "/var/lib/heartchain.db" {
		t.Fatalf("ResolveStorePath = %q", got)
	}
}
