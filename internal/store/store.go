// Package store persists the device registry and the sample history.
package store

import (
	"context"

	"github.com/edge-foundry/collector/internal/domain"
)

// Store is the persistence contract for the registry and the sample log.
// Samples are append-only; nothing in the engine updates or deletes them.
type Store interface {
	// CreateDevice inserts a device and returns it with its assigned ID.
	CreateDevice(ctx context.Context, device *domain.Device) (*domain.Device, error)

	// GetDevice returns a device by ID, enabled or not. Returns
	// domain.ErrDeviceNotFound when no such device exists.
	GetDevice(ctx context.Context, id int64) (*domain.Device, error)

	// ListEnabledDevices returns all enabled devices in ID order.
	ListEnabledDevices(ctx context.Context) ([]*domain.Device, error)

	// CountDevices returns the total number of devices, enabled or not.
	CountDevices(ctx context.Context) (int64, error)

	// CreateTag inserts a tag and returns it with its assigned ID.
	CreateTag(ctx context.Context, tag *domain.Tag) (*domain.Tag, error)

	// ListEnabledTags returns the enabled tags of a device in ID order.
	ListEnabledTags(ctx context.Context, deviceID int64) ([]*domain.Tag, error)

	// AppendSample appends one sample and returns it with its assigned ID.
	AppendSample(ctx context.Context, sample *domain.Sample) (*domain.Sample, error)

	// LatestSample returns the most recent sample for a tag, or
	// domain.ErrTagNotFound when the tag has no samples.
	LatestSample(ctx context.Context, tagID int64) (*domain.Sample, error)

	// CountSamples returns the total number of stored samples.
	CountSamples(ctx context.Context) (int64, error)

	// Close releases the underlying database.
	Close() error
}
