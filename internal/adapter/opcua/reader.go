// Package opcua provides an OPC UA protocol reader with per-device
// circuit breaking and value normalization.
package opcua

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/edge-foundry/collector/internal/domain"
)

// session is the slice of the OPC UA client the reader uses. The gopcua
// client satisfies it; tests substitute a fake.
type session interface {
	Read(ctx context.Context, req *ua.ReadRequest) (*ua.ReadResponse, error)
	Close(ctx context.Context) error
}

// dialFunc opens a session against an OPC UA endpoint.
type dialFunc func(ctx context.Context, endpoint string, timeout time.Duration) (session, error)

// Config holds reader configuration.
type Config struct {
	// Timeout bounds connect attempts per device call
	Timeout time.Duration
}

// Reader reads node values from OPC UA servers. Each call opens a fresh
// session and closes it before returning. Per-device circuit breakers
// keep an unreachable server from stalling every sweep on full connect
// timeouts.
type Reader struct {
	config   Config
	dial     dialFunc
	logger   zerolog.Logger
	mu       sync.Mutex
	breakers map[int64]*gobreaker.CircuitBreaker
}

// NewReader creates an OPC UA reader.
func NewReader(config Config, logger zerolog.Logger) *Reader {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	return &Reader{
		config:   config,
		dial:     dialEndpoint,
		logger:   logger.With().Str("component", "opcua_reader").Logger(),
		breakers: make(map[int64]*gobreaker.CircuitBreaker),
	}
}

// dialEndpoint connects anonymously with no message security.
func dialEndpoint(ctx context.Context, endpoint string, timeout time.Duration) (session, error) {
	client, err := opcua.NewClient(endpoint,
		opcua.SecurityMode(ua.MessageSecurityModeNone),
		opcua.AuthAnonymous(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Connect(connectCtx); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err)
	}

	return client, nil
}

// ReadValue reads a single node from the server. Failures of any kind
// yield a bad-quality reading.
func (r *Reader) ReadValue(ctx context.Context, device *domain.Device, address string, kind domain.DataKind) domain.Reading {
	results := r.ReadBatch(ctx, device, []domain.ReadRequest{{Address: address, Kind: kind}})
	return results[address]
}

// ReadBatch reads several nodes over one session. Every request gets an
// entry in the result; a failing node yields a bad reading without
// affecting the rest. A connect failure marks all addresses bad.
func (r *Reader) ReadBatch(ctx context.Context, device *domain.Device, reqs []domain.ReadRequest) map[string]domain.Reading {
	results := make(map[string]domain.Reading, len(reqs))

	timeout := device.Timeout
	if timeout == 0 {
		timeout = r.config.Timeout
	}

	breaker := r.breakerFor(device)
	conn, err := breaker.Execute(func() (interface{}, error) {
		return r.dial(ctx, device.Endpoint(), timeout)
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
				Str("endpoint", device.Endpoint()).
				Msg("Failed to connect to OPC UA server")
		}
		for _, req := range reqs {
			results[req.Address] = domain.BadReading()
		}
		return results
	}

	sess := conn.(session)
	defer func() {
		if err := sess.Close(context.Background()); err != nil {
			r.logger.Warn().Err(err).Int64("device_id", device.ID).Msg("Error closing OPC UA session")
		}
	}()

	for _, req := range reqs {
		select {
		case <-ctx.Done():
			results[req.Address] = domain.BadReading()
			continue
		default:
		}
		results[req.Address] = r.readOne(ctx, sess, device, req.Address)
	}

	return results
}

// readOne reads the value attribute of one node on an open session.
func (r *Reader) readOne(ctx context.Context, sess session, device *domain.Device, address string) domain.Reading {
	nodeID, err := ua.ParseNodeID(address)
	if err != nil {
		r.logger.Warn().
			Err(err).
			Int64("device_id", device.ID).
			Str("node_id", address).
			Msg("Invalid node ID")
		return domain.BadReading()
	}

	req := &ua.ReadRequest{
		MaxAge:             0,
		TimestampsToReturn: ua.TimestampsToReturnBoth,
		NodesToRead: []*ua.ReadValueID{
			{
				NodeID:       nodeID,
				AttributeID:  ua.AttributeIDValue,
				DataEncoding: &ua.QualifiedName{},
			},
		},
	}

	resp, err := sess.Read(ctx, req)
	if err != nil {
		r.logger.Warn().
			Err(fmt.Errorf("%w: %v", domain.ErrReadFailed, err)).
			Int64("device_id", device.ID).
			Str("node_id", address).
			Msg("OPC UA read failed")
		return domain.BadReading()
	}
	if len(resp.Results) == 0 {
		return domain.BadReading()
	}

	dv := resp.Results[0]
	if statusToQuality(dv.Status) != domain.QualityBad && dv.Value != nil {
		if _, ok := coerceFloat(dv.Value.Value()); !ok {
			r.logger.Warn().
				Err(fmt.Errorf("%w: %T", domain.ErrUnexpectedValueType, dv.Value.Value())).
				Int64("device_id", device.ID).
				Str("node_id", address).
				Msg("Value not coercible to float")
		}
	}
	return normalize(dv)
}

// normalize folds an OPC UA data value into a float reading.
func normalize(dv *ua.DataValue) domain.Reading {
	if dv == nil {
		return domain.BadReading()
	}

	quality := statusToQuality(dv.Status)
	if quality == domain.QualityBad {
		return domain.BadReading()
	}

	if dv.Value == nil {
		return domain.AbsentReading(quality)
	}

	value, ok := coerceFloat(dv.Value.Value())
	if !ok {
		return domain.BadReading()
	}

	reading := domain.GoodReading(value)
	reading.Quality = quality
	return reading
}

// statusToQuality converts an OPC UA status code to a quality flag.
func statusToQuality(status ua.StatusCode) domain.Quality {
	switch {
	case status == ua.StatusOK || status == ua.StatusGood:
		return domain.QualityGood
	case status&0x80000000 != 0: // Bad status codes have bit 31 set
		return domain.QualityBad
	case status&0x40000000 != 0: // Uncertain status codes have bit 30 set
		return domain.QualityUncertain
	default:
		return domain.QualityGood
	}
}

// coerceFloat converts a variant's Go value to float64. Booleans map to
// exactly 1.0 and 0.0.
func coerceFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case bool:
		if val {
			return 1.0, true
		}
		return 0.0, true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// breakerFor returns the circuit breaker for a device, creating it on
// first use.
func (r *Reader) breakerFor(device *domain.Device) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[device.ID]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        fmt.Sprintf("opcua-%d", device.ID),
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
				Msg("OPC UA circuit breaker state changed")
		},
	})
	r.breakers[device.ID] = cb
	return cb
}
