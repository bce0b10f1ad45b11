package modbus

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/edge-foundry/collector/internal/domain"
)

// session is the slice of the Modbus client the reader uses. The
// goburrow client satisfies it; tests substitute a fake.
type session interface {
	ReadCoils(address, quantity uint16) ([]byte, error)
	ReadDiscreteInputs(address, quantity uint16) ([]byte, error)
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
}

// dialFunc opens a connection to a Modbus device and returns the session
// plus a release function that must be called when the session is done.
type dialFunc func(address string, timeout time.Duration) (session, func() error, error)

// Config holds reader configuration.
type Config struct {
	// Timeout is the connect and response timeout per device call
	Timeout time.Duration

	// SlaveID is the Modbus unit identifier used for all devices
	SlaveID byte
}

// Reader reads register values from Modbus TCP devices. Each read opens
// a fresh connection and closes it before returning. Per-device circuit
// breakers keep a dead device from stalling every sweep on full connect
// timeouts.
type Reader struct {
	config   Config
	dial     dialFunc
	logger   zerolog.Logger
	mu       sync.Mutex
	breakers map[int64]*gobreaker.CircuitBreaker
}

// NewReader creates a Modbus reader.
func NewReader(config Config, logger zerolog.Logger) *Reader {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if config.SlaveID == 0 {
		config.SlaveID = 1
	}

	return &Reader{
		config:   config,
		dial:     dialTCP(config.SlaveID),
		logger:   logger.With().Str("component", "modbus_reader").Logger(),
		breakers: make(map[int64]*gobreaker.CircuitBreaker),
	}
}

// dialTCP connects to a device over Modbus TCP.
func dialTCP(slaveID byte) dialFunc {
	return func(address string, timeout time.Duration) (session, func() error, error) {
		handler := modbus.NewTCPClientHandler(address)
		handler.Timeout = timeout
		handler.SlaveId = slaveID

		if err := handler.Connect(); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err)
		}

		return modbus.NewClient(handler), handler.Close, nil
	}
}

// ReadValue reads a single register address from the device. Failures of
// any kind yield a bad-quality reading.
func (r *Reader) ReadValue(ctx context.Context, device *domain.Device, address string, kind domain.DataKind) domain.Reading {
	results := r.ReadBatch(ctx, device, []domain.ReadRequest{{Address: address, Kind: kind}})
	return results[address]
}

// ReadBatch reads several addresses over one connection. Every request
// gets an entry in the result; a failing address yields a bad reading
// without affecting the rest. A connect failure marks all addresses bad.
func (r *Reader) ReadBatch(ctx context.Context, device *domain.Device, reqs []domain.ReadRequest) map[string]domain.Reading {
	results := make(map[string]domain.Reading, len(reqs))

	timeout := device.Timeout
	if timeout == 0 {
		timeout = r.config.Timeout
	}

	breaker := r.breakerFor(device)
	conn, err := breaker.Execute(func() (interface{}, error) {
		sess, release, err := r.dial(device.Address(), timeout)
		if err != nil {
			return nil, err
		}
		return &openSession{sess: sess, release: release}, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			r.logger.Warn().
				Int64("device_id", device.ID).
				Str("device", device.Name).
				Msg("Circuit breaker open, skipping device")
		} else {
			r.logger.Warn().
				Err(err).
				Int64("device_id", device.ID).
				Str("address", device.Address()).
				Msg("Failed to connect to Modbus device")
		}
		for _, req := range reqs {
			results[req.Address] = domain.BadReading()
		}
		return results
	}

	open := conn.(*openSession)
	defer func() {
		if err := open.release(); err != nil {
			r.logger.Warn().Err(err).Int64("device_id", device.ID).Msg("Error closing Modbus connection")
		}
	}()

	for _, req := range reqs {
		select {
		case <-ctx.Done():
			results[req.Address] = domain.BadReading()
			continue
		default:
		}
		results[req.Address] = r.readOne(open.sess, device, req.Address, req.Kind)
	}

	return results
}

type openSession struct {
	sess    session
	release func() error
}

// readOne reads and decodes one address on an already open session.
func (r *Reader) readOne(sess session, device *domain.Device, address string, kind domain.DataKind) domain.Reading {
	regKind, offset, err := ParseAddress(address)
	if err != nil {
		r.logger.Warn().
			Err(err).
			Int64("device_id", device.ID).
			Str("address", address).
			Msg("Unparseable register address")
		return domain.BadReading()
	}

	if offset > math.MaxUint16 {
		r.logger.Warn().
			Int64("device_id", device.ID).
			Str("address", address).
			Msg("Register offset exceeds 16-bit address space")
		return domain.BadReading()
	}

	quantity := uint16(1)
	if !regKind.IsBitKind() && kind == domain.DataKindFloat {
		quantity = 2
	}

	var data []byte
	switch regKind {
	case RegisterCoil:
		data, err = sess.ReadCoils(uint16(offset), quantity)
	case RegisterDiscreteInput:
		data, err = sess.ReadDiscreteInputs(uint16(offset), quantity)
	case RegisterHolding:
		data, err = sess.ReadHoldingRegisters(uint16(offset), quantity)
	case RegisterInput:
		data, err = sess.ReadInputRegisters(uint16(offset), quantity)
	}
	if err != nil {
		r.logger.Warn().
			Err(fmt.Errorf("%w: %v", domain.ErrReadFailed, err)).
			Int64("device_id", device.ID).
			Str("address", address).
			Msg("Modbus read failed")
		return domain.BadReading()
	}

	return decode(regKind, kind, data)
}

// decode normalizes raw register bytes to a float reading.
func decode(regKind RegisterKind, kind domain.DataKind, data []byte) domain.Reading {
	if regKind.IsBitKind() {
		if len(data) < 1 {
			return domain.BadReading()
		}
		if data[0]&0x01 != 0 {
			return domain.GoodReading(1.0)
		}
		return domain.GoodReading(0.0)
	}

	switch kind {
	case domain.DataKindFloat:
		// Two registers, high word first, IEEE-754 single precision.
		if len(data) < 4 {
			return domain.BadReading()
		}
		bits := binary.BigEndian.Uint32(data[:4])
		return domain.GoodReading(float64(math.Float32frombits(bits)))

	case domain.DataKindBool:
		if len(data) < 2 {
			return domain.BadReading()
		}
		if binary.BigEndian.Uint16(data[:2]) != 0 {
			return domain.GoodReading(1.0)
		}
		return domain.GoodReading(0.0)

	default:
		if len(data) < 2 {
			return domain.BadReading()
		}
		return domain.GoodReading(float64(binary.BigEndian.Uint16(data[:2])))
	}
}

// breakerFor returns the circuit breaker for a device, creating it on
// first use. Per-device breakers keep one failing device from tripping
// reads against the others.
func (r *Reader) breakerFor(device *domain.Device) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[device.ID]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        fmt.Sprintf("modbus-%d", device.ID),
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Modbus circuit breaker state changed")
		},
	})
	r.breakers[device.ID] = cb
	return cb
}
