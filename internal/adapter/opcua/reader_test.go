package opcua

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gopcua/opcua/ua"
	"github.com/rs/zerolog"

	"github.com/edge-foundry/collector/internal/domain"
)

// fakeSession answers reads from a canned node map.
type fakeSession struct {
	values  map[string]*ua.DataValue
	readErr error
	closed  bool
}

func (f *fakeSession) Read(ctx context.Context, req *ua.ReadRequest) (*ua.ReadResponse, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	results := make([]*ua.DataValue, 0, len(req.NodesToRead))
	for _, node := range req.NodesToRead {
		dv, ok := f.values[node.NodeID.String()]
		if !ok {
			dv = &ua.DataValue{Status: ua.StatusBadNodeIDUnknown}
		}
		results = append(results, dv)
	}
	return &ua.ReadResponse{Results: results}, nil
}

func (f *fakeSession) Close(ctx context.Context) error {
	f.closed = true
	return nil
}

func testReader(sess *fakeSession, dialErr error) *Reader {
	r := NewReader(Config{Timeout: time.Second}, zerolog.Nop())
	r.dial = func(ctx context.Context, endpoint string, timeout time.Duration) (session, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		return sess, nil
	}
	return r
}

func testDevice() *domain.Device {
	return &domain.Device{
		ID:       2,
		Name:     "chiller-01",
		Protocol: domain.ProtocolOPCUA,
		Host:     "10.0.0.20",
		Port:     4840,
		Enabled:  true,
	}
}

func goodValue(v interface{}) *ua.DataValue {
	return &ua.DataValue{Status: ua.StatusOK, Value: ua.MustVariant(v)}
}

func TestReader_ReadValue_Normalization(t *testing.T) {
	tests := []struct {
		name string
		node string
		dv   *ua.DataValue
		want float64
	}{
		{name: "bool true", node: "ns=2;s=Running", dv: goodValue(true), want: 1.0},
		{name: "bool false", node: "ns=2;s=Stopped", dv: goodValue(false), want: 0.0},
		{name: "float64", node: "ns=2;s=Temperature", dv: goodValue(21.5), want: 21.5},
		{name: "float32", node: "ns=2;s=Pressure", dv: goodValue(float32(2.5)), want: 2.5},
		{name: "int32", node: "ns=2;s=Count", dv: goodValue(int32(42)), want: 42.0},
		{name: "uint16", node: "ns=2;s=Speed", dv: goodValue(uint16(1500)), want: 1500.0},
		{name: "numeric string", node: "ns=2;s=Setpoint", dv: goodValue("12.5"), want: 12.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := &fakeSession{values: map[string]*ua.DataValue{tt.node: tt.dv}}
			r := testReader(sess, nil)

			reading := r.ReadValue(context.Background(), testDevice(), tt.node, domain.DataKindFloat)
			if reading.Quality != domain.QualityGood {
				t.Fatalf("Quality = %q, want good", reading.Quality)
			}
			if reading.Value == nil || *reading.Value != tt.want {
				t.Errorf("Value = %v, want %v", reading.Value, tt.want)
			}
			if !sess.closed {
				t.Error("session was not closed")
			}
		})
	}
}

func TestReader_ReadValue_Failures(t *testing.T) {
	tests := []struct {
		name    string
		node    string
		sess    *fakeSession
		dialErr error
	}{
		{
			name: "invalid node id",
			node: "not a node id",
			sess: &fakeSession{},
		},
		{
			name: "unknown node",
			node: "ns=2;s=Missing",
			sess: &fakeSession{values: map[string]*ua.DataValue{}},
		},
		{
			name: "read error",
			node: "ns=2;s=Temperature",
			sess: &fakeSession{readErr: errors.New("session closed")},
		},
		{
			name: "uncoercible value",
			node: "ns=2;s=Name",
			sess: &fakeSession{values: map[string]*ua.DataValue{
				"ns=2;s=Name": goodValue("not a number"),
			}},
		},
		{
			name:    "connect failure",
			node:    "ns=2;s=Temperature",
			sess:    &fakeSession{},
			dialErr: domain.ErrConnectionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testReader(tt.sess, tt.dialErr)
			reading := r.ReadValue(context.Background(), testDevice(), tt.node, domain.DataKindFloat)
			if reading.Quality != domain.QualityBad {
				t.Errorf("Quality = %q, want bad", reading.Quality)
			}
			if reading.Value != nil {
				t.Errorf("Value = %v, want absent", *reading.Value)
			}
		})
	}
}

func TestReader_ReadValue_UncertainStatus(t *testing.T) {
	node := "ns=2;s=Sensor"
	sess := &fakeSession{values: map[string]*ua.DataValue{
		node: {Status: ua.StatusUncertainLastUsableValue, Value: ua.MustVariant(9.0)},
	}}
	r := testReader(sess, nil)

	reading := r.ReadValue(context.Background(), testDevice(), node, domain.DataKindFloat)
	if reading.Quality != domain.QualityUncertain {
		t.Fatalf("Quality = %q, want uncertain", reading.Quality)
	}
	if reading.Value == nil || *reading.Value != 9.0 {
		t.Errorf("Value = %v, want 9.0", reading.Value)
	}
}

func TestReader_ReadValue_NilValueKeepsQuality(t *testing.T) {
	node := "ns=2;s=Empty"
	sess := &fakeSession{values: map[string]*ua.DataValue{
		node: {Status: ua.StatusOK},
	}}
	r := testReader(sess, nil)

	reading := r.ReadValue(context.Background(), testDevice(), node, domain.DataKindFloat)
	if reading.Quality != domain.QualityGood {
		t.Errorf("Quality = %q, want good", reading.Quality)
	}
	if reading.Value != nil {
		t.Errorf("Value = %v, want absent", *reading.Value)
	}
}

func TestReader_ReadBatch_SharesOneSession(t *testing.T) {
	sess := &fakeSession{values: map[string]*ua.DataValue{
		"ns=2;s=A": goodValue(1.0),
		"ns=2;s=B": goodValue(2.0),
	}}
	r := testReader(sess, nil)

	results := r.ReadBatch(context.Background(), testDevice(), []domain.ReadRequest{
		{Address: "ns=2;s=A", Kind: domain.DataKindFloat},
		{Address: "ns=2;s=B", Kind: domain.DataKindFloat},
		{Address: "ns=2;s=C", Kind: domain.DataKindFloat},
	})

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results["ns=2;s=A"].Quality != domain.QualityGood || results["ns=2;s=B"].Quality != domain.QualityGood {
		t.Error("known nodes should read good")
	}
	if results["ns=2;s=C"].Quality != domain.QualityBad {
		t.Errorf("unknown node quality = %q, want bad", results["ns=2;s=C"].Quality)
	}
	if !sess.closed {
		t.Error("session was not closed")
	}
}
