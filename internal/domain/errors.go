package domain

import "errors"

// Device and tag validation errors
var (
	ErrDeviceNameRequired = errors.New("device name is required")
	ErrDeviceHostRequired = errors.New("device host is required")
	ErrInvalidPort        = errors.New("device port must be between 1 and 65535")
	ErrTagNameRequired    = errors.New("tag name is required")
	ErrTagAddressRequired = errors.New("tag address is required")
	ErrInvalidDataKind    = errors.New("invalid data kind")
	ErrUnknownProtocol    = errors.New("unknown protocol")
)

// Acquisition errors
var (
	ErrInvalidAddressFormat = errors.New("invalid address format")
	ErrConnectionFailed     = errors.New("connection failed")
	ErrReadFailed           = errors.New("read failed")
	ErrUnexpectedValueType  = errors.New("unexpected value type")
)

// Store errors
var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrTagNotFound    = errors.New("tag not found")
)
