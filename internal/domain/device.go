// Package domain contains the core business entities and interfaces.
// These are protocol-agnostic and represent the core concepts of the system.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Protocol represents the communication protocol type.
type Protocol string

const (
	ProtocolModbus Protocol = "modbus"
	ProtocolOPCUA  Protocol = "opcua"
)

// ParseProtocol normalizes a protocol kind string. Matching is
// case-insensitive; unknown kinds are returned as-is together with
// ErrUnknownProtocol so the caller can report them.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "modbus":
		return ProtocolModbus, nil
	case "opcua":
		return ProtocolOPCUA, nil
	default:
		return Protocol(s), fmt.Errorf("%w: %q", ErrUnknownProtocol, s)
	}
}

// Device represents a connected industrial device (a PLC, a pump
// controller). Devices are owned by the registry; the acquisition engine
// only ever reads them.
type Device struct {
	// ID is the registry identifier for this device
	ID int64 `json:"id"`

	// Name is a human-readable name, e.g. "press-01"
	Name string `json:"name"`

	// Protocol specifies the communication protocol
	Protocol Protocol `json:"protocol"`

	// Host is the IP address or hostname of the device
	Host string `json:"host"`

	// Port is the TCP port (502/5020 for Modbus, 4840 for OPC UA by
	// convention; always taken from the record, never assumed)
	Port int `json:"port"`

	// EndpointURL optionally overrides the OPC UA endpoint derived from
	// Host and Port
	EndpointURL string `json:"endpoint_url,omitempty"`

	// Timeout bounds connect and read operations against this device.
	// Zero means the adapter default.
	Timeout time.Duration `json:"timeout,omitempty"`

	// Enabled indicates whether this device is visible to polling
	Enabled bool `json:"enabled"`

	// Description provides additional context about the device
	Description string `json:"description,omitempty"`
}

// Address returns the host:port dial address for this device.
func (d *Device) Address() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// Endpoint returns the OPC UA endpoint URL, falling back to one derived
// from the host and port when no explicit override is configured.
func (d *Device) Endpoint() string {
	if d.EndpointURL != "" {
		return d.EndpointURL
	}
	return fmt.Sprintf("opc.tcp://%s:%d", d.Host, d.Port)
}

// Validate performs validation on the device record.
func (d *Device) Validate() error {
	if d.Name == "" {
		return ErrDeviceNameRequired
	}
	if _, err := ParseProtocol(string(d.Protocol)); err != nil {
		return err
	}
	if d.Host == "" {
		return ErrDeviceHostRequired
	}
	if d.Port <= 0 || d.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, d.Port)
	}
	return nil
}
