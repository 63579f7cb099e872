package config

import (
	"encoding/hex"
	"fmt"

	"github.com/AlephTX/datablock"
)

// ToDataBlockConfig converts a parsed ChannelConfig into the struct
// datablock.Create expects, decoding the hex-encoded
// shared secret and resolving the checksum policy name.
func (c ChannelConfig) ToDataBlockConfig(schemaHash [32]byte) (datablock.Config, error) {
	var secret [16]byte
	raw, err := hex.DecodeString(c.SharedSecret)
	if err != nil {
		return datablock.Config{}, fmt.Errorf("config: shared_secret: %w", err)
	}
	if len(raw) != 16 {
		return datablock.Config{}, fmt.Errorf("config: shared_secret: want 16 bytes, got %d", len(raw))
	}
	copy(secret[:], raw)

	policy, err := parseChecksumPolicy(c.ChecksumPolicy)
	if err != nil {
		return datablock.Config{}, err
	}

	return datablock.Config{
		RingCapacity:   c.RingCapacity,
		UnitSize:       c.UnitSize,
		FlexSize:       c.FlexSize,
		ChecksumPolicy: policy,
		SharedSecret:   secret,
		SchemaHash:     schemaHash,
		SchemaVersion:  c.SchemaVersion,
	}, nil
}

func parseChecksumPolicy(name string) (datablock.ChecksumPolicy, error) {
	switch name {
	case "", "disabled":
		return datablock.ChecksumDisabled, nil
	case "enforced":
		return datablock.ChecksumEnforced, nil
	case "manual":
		return datablock.ChecksumManual, nil
	default:
		return 0, fmt.Errorf("config: unknown checksum_policy %q", name)
	}
}
