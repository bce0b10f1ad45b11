package domain

import "context"

// ReadRequest names one address to read and the kind the value should be
// coerced to.
type ReadRequest struct {
	Address string
	Kind    DataKind
}

// ProtocolReader reads values from a device speaking one protocol.
// Implementations open a fresh connection per call and release it before
// returning, even on failure. Read failures surface as bad-quality
// readings, never as errors, so one unreachable address cannot abort a
// sweep.
type ProtocolReader interface {
	// ReadValue reads a single address from the device.
	ReadValue(ctx context.Context, device *Device, address string, kind DataKind) Reading

	// ReadBatch reads several addresses over one connection. The result
	// maps every requested address to a reading; a failure on one address
	// does not affect the others.
	ReadBatch(ctx context.Context, device *Device, reqs []ReadRequest) map[string]Reading
}

// ReaderSet dispatches devices to the reader for their protocol. The
// protocol set is closed: exactly one reader per known protocol.
type ReaderSet struct {
	modbus ProtocolReader
	opcua  ProtocolReader
}

// NewReaderSet builds a dispatcher over the two supported protocols.
func NewReaderSet(modbus, opcua ProtocolReader) *ReaderSet {
	return &ReaderSet{modbus: modbus, opcua: opcua}
}

// For returns the reader for the given protocol, or ErrUnknownProtocol.
// Matching is case-insensitive, so device records stored with any casing
// dispatch the same way.
func (s *ReaderSet) For(p Protocol) (ProtocolReader, error) {
	normalized, err := ParseProtocol(string(p))
	if err != nil {
		return nil, err
	}
	switch normalized {
	case ProtocolModbus:
		return s.modbus, nil
	case ProtocolOPCUA:
		return s.opcua, nil
	default:
		return nil, ErrUnknownProtocol
	}
}
