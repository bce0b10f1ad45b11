// Package domain contains core business entities.
package domain

import (
	"fmt"
	"strings"
)

// DataKind declares how a tag's raw value is to be decoded.
type DataKind string

const (
	DataKindFloat DataKind = "float"
	DataKindInt   DataKind = "int"
	DataKindBool  DataKind = "bool"
)

// ParseDataKind normalizes a declared data kind. An empty string defaults
// to float, matching how registries are commonly populated.
func ParseDataKind(s string) (DataKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "float":
		return DataKindFloat, nil
	case "int":
		return DataKindInt, nil
	case "bool":
		return DataKindBool, nil
	default:
		return DataKind(s), fmt.Errorf("%w: %q", ErrInvalidDataKind, s)
	}
}

// Tag represents a single data point (a sensor, a run state, a counter)
// read from a device. Tags are owned by the registry.
type Tag struct {
	// ID is the registry identifier for this tag
	ID int64 `json:"id"`

	// DeviceID references the owning device
	DeviceID int64 `json:"device_id"`

	// Name is a human-readable name, e.g. "motor_temperature"
	Name string `json:"name"`

	// Address is the protocol-specific address:
	//   Modbus: "hr_0", "ir_0", "co_1", "di_0"
	//   OPC UA: "ns=2;s=Temperature" or "i=2258", passed through opaque
	Address string `json:"address"`

	// DataKind declares how the raw value is decoded
	DataKind DataKind `json:"data_kind"`

	// Enabled indicates whether this tag is visible to polling
	Enabled bool `json:"enabled"`

	// Description provides additional context about the tag
	Description string `json:"description,omitempty"`
}

// Validate performs validation on the tag record.
func (t *Tag) Validate() error {
	if t.Name == "" {
		return ErrTagNameRequired
	}
	if t.Address == "" {
		return ErrTagAddressRequired
	}
	if _, err := ParseDataKind(string(t.DataKind)); err != nil {
		return err
	}
	return nil
}
