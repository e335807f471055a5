// Package daemon manages the coordination node lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tutu-network/coord/internal/domain"
)

// Config holds all daemon configuration.
type Config struct {
	Node         NodeConfig         `toml:"node"`
	API          APIConfig          `toml:"api"`
	CommitReveal CommitRevealConfig `toml:"commit_reveal"`
	DHT          DHTConfig          `toml:"dht"`
	Storage      StorageConfig      `toml:"storage"`
	Registry     RegistryConfig     `toml:"registry"`
	Logging      LoggingConfig      `toml:"logging"`
	Telemetry    TelemetryConfig    `toml:"telemetry"`
}

// NodeConfig identifies this node.
type NodeConfig struct {
	ID      string `toml:"id"`
	DataDir string `toml:"data_dir"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// CommitRevealConfig controls the commit-reveal manager.
type CommitRevealConfig struct {
	RevealDelay      string   `toml:"reveal_delay"`
	EncryptDataTypes []string `toml:"encrypt_data_types"`
}

// DHTConfig controls the DHT fallback peer table.
type DHTConfig struct {
	MaxAge        string `toml:"max_age"`
	MaxContents   int    `toml:"max_contents"`
	SweepInterval string `toml:"sweep_interval"`
	PeerLimit     int    `toml:"peer_limit"`
	TrackerURL    string `toml:"tracker_url"`
}

// StorageConfig selects the content store backend.
type StorageConfig struct {
	Backend string `toml:"backend"` // sqlite | badger | memory
}

// RegistryConfig selects the registry backend.
type RegistryConfig struct {
	Backend       string `toml:"backend"` // sqlite | memory
	MinReputation uint64 `toml:"min_reputation"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // text | json
	File   string `toml:"file"`
}

// TelemetryConfig controls metrics exposure.
type TelemetryConfig struct {
	Prometheus     bool   `toml:"prometheus"`
	HealthInterval string `toml:"health_interval"`
}

// Storage and registry backends.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Node: NodeConfig{
			DataDir: coordHome(),
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 7420,
		},
		CommitReveal: CommitRevealConfig{
			RevealDelay: "30s",
			EncryptDataTypes: []string{
				string(domain.DataTrainingData),
				string(domain.DataModelUpdate),
			},
		},
		DHT: DHTConfig{
			MaxAge:        "5m",
			MaxContents:   10000,
			SweepInterval: "1m",
			PeerLimit:     50,
		},
		Storage: StorageConfig{
			Backend: BackendSQLite,
		},
		Registry: RegistryConfig{
			Backend: BackendSQLite,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			Prometheus:     true,
			HealthInterval: "60s",
		},
	}
}

// LoadConfig reads config from $TUTU_COORD_HOME/config.toml, falling back
// to defaults.
func LoadConfig() (Config, error) {
	return LoadConfigFrom(filepath.Join(coordHome(), "config.toml"))
}

// LoadConfigFrom reads config from path. A missing file yields defaults.
func LoadConfigFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SaveConfig writes the config to $TUTU_COORD_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(coordHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// Validate rejects unknown backends and data types.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendSQLite, BackendBadger, BackendMemory:
	default:
		return fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend)
	}
	switch c.Registry.Backend {
	case BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("registry.backend: unknown backend %q", c.Registry.Backend)
	}
	for _, t := range c.CommitReveal.EncryptDataTypes {
		if !domain.DataType(t).Valid() {
			return fmt.Errorf("commit_reveal.encrypt_data_types: unknown data type %q", t)
		}
	}
	return nil
}

// RevealDelay returns the parsed reveal delay.
func (c Config) RevealDelay() time.Duration {
	return parseDuration(c.CommitReveal.RevealDelay, 30*time.Second)
}

// EncryptTypes returns the encryption policy as domain types.
func (c Config) EncryptTypes() []domain.DataType {
	out := make([]domain.DataType, 0, len(c.CommitReveal.EncryptDataTypes))
	for _, t := range c.CommitReveal.EncryptDataTypes {
		out = append(out, domain.DataType(strings.TrimSpace(t)))
	}
	return out
}

// coordHome returns the node data directory.
func coordHome() string {
	if env := os.Getenv("TUTU_COORD_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tutu-coord")
}

// CoordHome is exported for use by other packages.
func CoordHome() string {
	return coordHome()
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
