// Package config loads channel/segment configuration from a flat TOML
// file, optionally pointed at by an environment variable that itself
// may come from a local .env file.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// DefaultPath is used when DATABLOCK_CONFIG is unset.
const DefaultPath = "datablock.toml"

// EnvVar names the environment variable that overrides DefaultPath.
const EnvVar = "DATABLOCK_CONFIG"

// Config is the top-level file shape: one named segment configuration
// per channel this host produces or attaches to.
type Config struct {
	Channels map[string]ChannelConfig `toml:"channels"`
}

// ChannelConfig mirrors datablock.Config except for SchemaHash, which
// ToDataBlockConfig takes as a separate argument; the checksum policy
// and shared secret are stored as strings and decoded there.
type ChannelConfig struct {
	RingCapacity   uint32 `toml:"ring_capacity"`
	UnitSize       uint32 `toml:"unit_size"`
	FlexSize       uint32 `toml:"flex_size"`
	ChecksumPolicy string `toml:"checksum_policy"` // "disabled" | "enforced" | "manual"
	SharedSecret   string `toml:"shared_secret"`   // hex-encoded, 32 chars
	SchemaVersion  uint32 `toml:"schema_version"`
}

// ResolvePath returns the configured path: EnvVar if set, else
// DefaultPath. It loads a .env file first (if present) so EnvVar can
// itself be set there for local development.
func ResolvePath() string {
	_ = godotenv.Load()
	if p := os.Getenv(EnvVar); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads and parses the TOML config at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &c, nil
}
