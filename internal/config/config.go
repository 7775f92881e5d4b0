// Package config loads the daemon and node settings described in
// spec.md §6 from a YAML file, with sensible defaults for anything
// left unset.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults per spec.md §6's configuration table.
const (
	DefaultTCPPort       = 5007
	DefaultUDPPort       = 5008
	DefaultDeadTimeoutS  = 7
	DefaultChainLength   = 100
	DefaultEmitIntervalS = 1.0
)

// Coordinator holds the settings for the registration+verification+
// sweeper daemon (cmd/heartchaind).
type Coordinator struct {
	BindIP        string `yaml:"bind_ip"`
	TCPPort       int    `yaml:"tcp_port"`
	UDPPort       int    `yaml:"udp_port"`
	DeadTimeoutS  int    `yaml:"dead_timeout_s"`
	StorePath     string `yaml:"store_path"`
	NotifyAddr    string `yaml:"notify_addr,omitempty"`
	NTPServer     string `yaml:"ntp_server,omitempty"`
	LogLevel      string `yaml:"log_level,omitempty"`
}

// TCPAddr is the bind/dial address for C3.
func (c Coordinator) TCPAddr() string {
	return fmt.Sprintf("%s:%d", c.BindIP, c.TCPPort)
}

// UDPAddr is the bind/dial address for C4.
func (c Coordinator) UDPAddr() string {
	return fmt.Sprintf("%s:%d", c.BindIP, c.UDPPort)
}

// DeadTimeout is DeadTimeoutS as a time.Duration.
func (c Coordinator) DeadTimeout() time.Duration {
	return time.Duration(c.DeadTimeoutS) * time.Second
}

// CoordinatorDefaults returns a Coordinator with spec.md §6 defaults.
func CoordinatorDefaults() Coordinator {
	return Coordinator{
		BindIP:       "0.0.0.0",
		TCPPort:      DefaultTCPPort,
		UDPPort:      DefaultUDPPort,
		DeadTimeoutS: DefaultDeadTimeoutS,
		StorePath:    "heartchain.db",
		LogLevel:     "info",
	}
}

// Node holds the settings for the node-side emitter (cmd/heartchain).
type Node struct {
	NodeID         string  `yaml:"node_id"`
	CoordinatorIP  string  `yaml:"coordinator_ip"`
	TCPPort        int     `yaml:"tcp_port"`
	UDPPort        int     `yaml:"udp_port"`
	ChainLength    int     `yaml:"chain_length"`
	EmitIntervalS  float64 `yaml:"emit_interval_s"`
	DataDir        string  `yaml:"data_dir"`
	LogLevel       string  `yaml:"log_level,omitempty"`
}

// TCPAddr is the Coordinator's registration address to dial.
func (n Node) TCPAddr() string {
	return fmt.Sprintf("%s:%d", n.CoordinatorIP, n.TCPPort)
}

// UDPAddr is the Coordinator's heartbeat address to dial.
func (n Node) UDPAddr() string {
	return fmt.Sprintf("%s:%d", n.CoordinatorIP, n.UDPPort)
}

// EmitInterval is EmitIntervalS as a time.Duration.
func (n Node) EmitInterval() time.Duration {
	return time.Duration(n.EmitIntervalS * float64(time.Second))
}

// NodeDefaults returns a Node with spec.md §6 defaults.
func NodeDefaults() Node {
	return Node{
		TCPPort:       DefaultTCPPort,
		UDPPort:       DefaultUDPPort,
		ChainLength:   DefaultChainLength,
		EmitIntervalS: DefaultEmitIntervalS,
		DataDir:       ".",
		LogLevel:      "info",
	}
}

// LoadCoordinator reads a Coordinator config from path, layering it
// over CoordinatorDefaults(). A missing file is not an error — the
// defaults are returned as-is, matching how cmd/heartchaind behaves
// with no --config flag.
func LoadCoordinator(path string) (Coordinator, error) {
	cfg := CoordinatorDefaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadNode reads a Node config from path, layering it over
// NodeDefaults().
func LoadNode(path string) (Node, error) {
	cfg := NodeDefaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "."
	}
	return cfg, nil
}

// ResolveStorePath joins a relative StorePath against the directory
// containing the config file, so "heartchain.db" means "next to
// config.yaml" rather than the process's current working directory.
func ResolveStorePath(configPath, storePath string) string {
	if filepath.IsAbs(storePath) || configPath == "" {
		return storePath
	}
	return filepath.Join(filepath.Dir(configPath), storePath)
}
