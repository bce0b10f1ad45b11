package health

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewHTTPServer_UsesConfiguredTimeouts(t *testing.T) {
	s := NewServer(zerolog.Nop(), Config{
		Address:      ":9090",
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 3 * time.Second,
	}, nil)

	srv := s.newHTTPServer()
	if srv.Addr != ":9090" {
		t.Errorf("Addr = %q, want :9090", srv.Addr)
	}
	if srv.ReadTimeout != 2*time.Second {
		t.Errorf("ReadTimeout = %v, want 2s", srv.ReadTimeout)
	}
	if srv.WriteTimeout != 3*time.Second {
		t.Errorf("WriteTimeout = %v, want 3s", srv.WriteTimeout)
	}
}

func TestNewHTTPServer_TimeoutDefaults(t *testing.T) {
	s := NewServer(zerolog.Nop(), Config{Address: ":8080"}, nil)

	srv := s.newHTTPServer()
	if srv.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v, want 5s default", srv.ReadTimeout)
	}
	if srv.WriteTimeout != 10*time.Second {
		t.Errorf("WriteTimeout = %v, want 10s default", srv.WriteTimeout)
	}
}
