package modbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/edge-foundry/collector/internal/domain"
)

// fakeSession returns canned register bytes per address.
type fakeSession struct {
	registers map[uint16][]byte
	bits      map[uint16][]byte
	readErr   error
	released  bool
}

func (f *fakeSession) ReadCoils(address, quantity uint16) ([]byte, error) {
	return f.readBits(address)
}

func (f *fakeSession) ReadDiscreteInputs(address, quantity uint16) ([]byte, error) {
	return f.readBits(address)
}

func (f *fakeSession) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	return f.readRegs(address, quantity)
}

func (f *fakeSession) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	return f.readRegs(address, quantity)
}

func (f *fakeSession) readBits(address uint16) ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	data, ok := f.bits[address]
	if !ok {
		return nil, errors.New("illegal data address")
	}
	return data, nil
}

func (f *fakeSession) readRegs(address, quantity uint16) ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	data, ok := f.registers[address]
	if !ok {
		return nil, errors.New("illegal data address")
	}
	if int(quantity)*2 > len(data) {
		return nil, errors.New("illegal data address")
	}
	return data[:quantity*2], nil
}

func testReader(sess *fakeSession, dialErr error) *Reader {
	r := NewReader(Config{Timeout: time.Second}, zerolog.Nop())
	r.dial = func(address string, timeout time.Duration) (session, func() error, error) {
		if dialErr != nil {
			return nil, nil, dialErr
		}
		return sess, func() error {
			sess.released = true
			return nil
		}, nil
	}
	return r
}

func testDevice() *domain.Device {
	return &domain.Device{
		ID:       1,
		Name:     "press-01",
		Protocol: domain.ProtocolModbus,
		Host:     "10.0.0.10",
		Port:     502,
		Enabled:  true,
	}
}

func TestReader_ReadValue_Float(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want float64
	}{
		{name: "one point zero", data: []byte{0x3F, 0x80, 0x00, 0x00}, want: 1.0},
		{name: "two point zero", data: []byte{0x40, 0x00, 0x00, 0x00}, want: 2.0},
		{name: "negative", data: []byte{0xC0, 0x40, 0x00, 0x00}, want: -3.0},
		{name: "zero", data: []byte{0x00, 0x00, 0x00, 0x00}, want: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := &fakeSession{registers: map[uint16][]byte{10: tt.data}}
			r := testReader(sess, nil)

			reading := r.ReadValue(context.Background(), testDevice(), "hr_10", domain.DataKindFloat)
			if reading.Quality != domain.QualityGood {
				t.Fatalf("Quality = %q, want good", reading.Quality)
			}
			if reading.Value == nil || *reading.Value != tt.want {
				t.Errorf("Value = %v, want %v", reading.Value, tt.want)
			}
			if !sess.released {
				t.Error("connection was not released")
			}
		})
	}
}

func TestReader_ReadValue_Int(t *testing.T) {
	sess := &fakeSession{registers: map[uint16][]byte{5: {0x01, 0x2C}}}
	r := testReader(sess, nil)

	reading := r.ReadValue(context.Background(), testDevice(), "ir_5", domain.DataKindInt)
	if reading.Quality != domain.QualityGood {
		t.Fatalf("Quality = %q, want good", reading.Quality)
	}
	if reading.Value == nil || *reading.Value != 300.0 {
		t.Errorf("Value = %v, want 300.0", reading.Value)
	}
}

func TestReader_ReadValue_BoolRegister(t *testing.T) {
	// A bool-kind tag on a register address normalizes any non-zero
	// register to exactly 1.0, never the raw register value.
	tests := []struct {
		name string
		data []byte
		want float64
	}{
		{name: "zero register", data: []byte{0x00, 0x00}, want: 0.0},
		{name: "one", data: []byte{0x00, 0x01}, want: 1.0},
		{name: "arbitrary non-zero", data: []byte{0x00, 0x05}, want: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := &fakeSession{registers: map[uint16][]byte{3: tt.data}}
			r := testReader(sess, nil)

			reading := r.ReadValue(context.Background(), testDevice(), "hr_3", domain.DataKindBool)
			if reading.Quality != domain.QualityGood {
				t.Fatalf("Quality = %q, want good", reading.Quality)
			}
			if reading.Value == nil || *reading.Value != tt.want {
				t.Errorf("Value = %v, want exactly %v", reading.Value, tt.want)
			}
		})
	}
}

func TestReader_ReadValue_Bits(t *testing.T) {
	sess := &fakeSession{bits: map[uint16][]byte{0: {0x01}, 1: {0x00}}}
	r := testReader(sess, nil)

	on := r.ReadValue(context.Background(), testDevice(), "co_0", domain.DataKindBool)
	if on.Value == nil || *on.Value != 1.0 {
		t.Errorf("coil set: Value = %v, want exactly 1.0", on.Value)
	}

	off := r.ReadValue(context.Background(), testDevice(), "di_1", domain.DataKindBool)
	if off.Value == nil || *off.Value != 0.0 {
		t.Errorf("coil clear: Value = %v, want exactly 0.0", off.Value)
	}
}

func TestReader_ReadValue_Failures(t *testing.T) {
	tests := []struct {
		name    string
		address string
		sess    *fakeSession
		dialErr error
	}{
		{
			name:    "malformed address",
			address: "bogus",
			sess:    &fakeSession{},
		},
		{
			name:    "offset beyond register space",
			address: "hr_70000",
			sess:    &fakeSession{},
		},
		{
			name:    "device read error",
			address: "hr_10",
			sess:    &fakeSession{readErr: errors.New("timeout")},
		},
		{
			name:    "connect failure",
			address: "hr_10",
			sess:    &fakeSession{},
			dialErr: domain.ErrConnectionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testReader(tt.sess, tt.dialErr)
			reading := r.ReadValue(context.Background(), testDevice(), tt.address, domain.DataKindFloat)
			if reading.Quality != domain.QualityBad {
				t.Errorf("Quality = %q, want bad", reading.Quality)
			}
			if reading.Value != nil {
				t.Errorf("Value = %v, want absent", *reading.Value)
			}
		})
	}
}

func TestReader_ReadBatch_FailureIsolation(t *testing.T) {
	sess := &fakeSession{
		registers: map[uint16][]byte{0: {0x3F, 0x80, 0x00, 0x00}},
		bits:      map[uint16][]byte{2: {0x01}},
	}
	r := testReader(sess, nil)

	reqs := []domain.ReadRequest{
		{Address: "hr_0", Kind: domain.DataKindFloat},
		{Address: "hr_99", Kind: domain.DataKindFloat},
		{Address: "co_2", Kind: domain.DataKindBool},
	}

	results := r.ReadBatch(context.Background(), testDevice(), reqs)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results["hr_0"].Quality != domain.QualityGood {
		t.Errorf("hr_0 quality = %q, want good", results["hr_0"].Quality)
	}
	if results["hr_99"].Quality != domain.QualityBad {
		t.Errorf("hr_99 quality = %q, want bad", results["hr_99"].Quality)
	}
	if results["co_2"].Quality != domain.QualityGood {
		t.Errorf("co_2 quality = %q, want good", results["co_2"].Quality)
	}
	if !sess.released {
		t.Error("connection was not released")
	}
}

func TestReader_ReadBatch_ConnectFailureMarksAllBad(t *testing.T) {
	r := testReader(&fakeSession{}, errors.New("connection refused"))

	reqs := []domain.ReadRequest{
		{Address: "hr_0", Kind: domain.DataKindFloat},
		{Address: "hr_1", Kind: domain.DataKindInt},
	}

	results := r.ReadBatch(context.Background(), testDevice(), reqs)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for addr, reading := range results {
		if reading.Quality != domain.QualityBad {
			t.Errorf("%s quality = %q, want bad", addr, reading.Quality)
		}
	}
}
