// Package config provides device registry seeding from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/edge-foundry/collector/internal/domain"
)

// DeviceSeed represents the YAML structure for one seeded device.
type DeviceSeed struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Protocol    string    `yaml:"protocol"`
	Host        string    `yaml:"host"`
	Port        int       `yaml:"port"`
	EndpointURL string    `yaml:"endpoint_url,omitempty"`
	Timeout     string    `yaml:"timeout,omitempty"`
	Enabled     *bool     `yaml:"enabled,omitempty"`
	Tags        []TagSeed `yaml:"tags"`
}

// TagSeed represents a tag entry under a seeded device.
type TagSeed struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Address     string `yaml:"address"`
	DataKind    string `yaml:"data_kind,omitempty"`
	Enabled     *bool  `yaml:"enabled,omitempty"`
}

// SeedFile represents the top-level registry seed file.
type SeedFile struct {
	Version string       `yaml:"version"`
	Devices []DeviceSeed `yaml:"devices"`
}

// SeededDevice pairs a parsed device with its tags, ready for insertion.
type SeededDevice struct {
	Device domain.Device
	Tags   []domain.Tag
}

// LoadSeed parses a registry seed file. Enabled defaults to true for
// both devices and tags when omitted.
func LoadSeed(path string) ([]SeededDevice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	seenNames := make(map[string]int)
	seeded := make([]SeededDevice, 0, len(file.Devices))

	for idx, ds := range file.Devices {
		if prevIdx, exists := seenNames[ds.Name]; exists {
			return nil, fmt.Errorf("duplicate device name '%s' at index %d (first seen at index %d)", ds.Name, idx, prevIdx)
		}
		seenNames[ds.Name] = idx

		protocol, err := domain.ParseProtocol(ds.Protocol)
		if err != nil {
			return nil, fmt.Errorf("device '%s': %w", ds.Name, err)
		}

		var timeout time.Duration
		if ds.Timeout != "" {
			timeout, err = time.ParseDuration(ds.Timeout)
			if err != nil {
				return nil, fmt.Errorf("device '%s': invalid timeout: %w", ds.Name, err)
			}
		}

		device := domain.Device{
			Name:        ds.Name,
			Protocol:    protocol,
			Host:        ds.Host,
			Port:        ds.Port,
			EndpointURL: ds.EndpointURL,
			Timeout:     timeout,
			Enabled:     enabledOrDefault(ds.Enabled),
			Description: ds.Description,
		}
		if err := device.Validate(); err != nil {
			return nil, fmt.Errorf("device '%s': %w", ds.Name, err)
		}

		tags := make([]domain.Tag, 0, len(ds.Tags))
		for _, ts := range ds.Tags {
			kind, err := domain.ParseDataKind(ts.DataKind)
			if err != nil {
				return nil, fmt.Errorf("device '%s' tag '%s': %w", ds.Name, ts.Name, err)
			}

			tag := domain.Tag{
				Name:        ts.Name,
				Address:     ts.Address,
				DataKind:    kind,
				Enabled:     enabledOrDefault(ts.Enabled),
				Description: ts.Description,
			}
			if err := tag.Validate(); err != nil {
				return nil, fmt.Errorf("device '%s' tag '%s': %w", ds.Name, ts.Name, err)
			}
			tags = append(tags, tag)
		}

		seeded = append(seeded, SeededDevice{Device: device, Tags: tags})
	}

	return seeded, nil
}

func enabledOrDefault(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}
