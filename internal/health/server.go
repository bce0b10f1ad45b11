// Package health exposes the HTTP health, status and metrics endpoints.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/edge-foundry/collector/internal/service"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

type ComponentHealth struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	Status     Status            `json:"status"`
	Components []ComponentHealth `json:"components"`
	Timestamp  time.Time         `json:"timestamp"`
}

// StatusResponse summarizes poller activity.
type StatusResponse struct {
	Running          bool    `json:"running"`
	SweepsTotal      uint64  `json:"sweeps_total"`
	DevicesPolled    uint64  `json:"devices_polled"`
	SamplesGood      uint64  `json:"samples_good"`
	SamplesBad       uint64  `json:"samples_bad"`
	SamplesUncertain uint64  `json:"samples_uncertain"`
	LastSweepSeconds float64 `json:"last_sweep_seconds"`
}

// HealthChecker reports the health of one component.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) (Status, string)
}

// Config holds HTTP server configuration.
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	logger   zerolog.Logger
	config   Config
	poller   *service.Poller
	server   *http.Server
	checkers []HealthChecker
	mu       sync.RWMutex
}

func NewServer(logger zerolog.Logger, config Config, poller *service.Poller) *Server {
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 5 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}

	return &Server{
		logger:   logger.With().Str("component", "health_server").Logger(),
		config:   config,
		poller:   poller,
		checkers: make([]HealthChecker, 0),
	}
}

func (s *Server) AddChecker(checker HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers = append(s.checkers, checker)
}

func (s *Server) Start() error {
	s.server = s.newHTTPServer()

	s.logger.Info().Str("address", s.config.Address).Msg("Starting health server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Health server error")
		}
	}()

	return nil
}

func (s *Server) newHTTPServer() *http.Server {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/live", s.handleLive)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:         s.config.Address,
		Handler:      r,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	checkers := make([]HealthChecker, len(s.checkers))
	copy(checkers, s.checkers)
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:     StatusHealthy,
		Components: make([]ComponentHealth, 0, len(checkers)),
		Timestamp:  time.Now().UTC(),
	}

	for _, checker := range checkers {
		status, message := checker.Check(ctx)
		response.Components = append(response.Components, ComponentHealth{
			Name:    checker.Name(),
			Status:  status,
			Message: message,
		})

		if status == StatusUnhealthy {
			response.Status = StatusUnhealthy
		} else if status == StatusDegraded && response.Status == StatusHealthy {
			response.Status = StatusDegraded
		}
	}

	statusCode := http.StatusOK
	if response.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.poller.Stats()
	response := StatusResponse{
		Running:          s.poller.IsRunning(),
		SweepsTotal:      stats.SweepsTotal.Load(),
		DevicesPolled:    stats.DevicesPolled.Load(),
		SamplesGood:      stats.SamplesGood.Load(),
		SamplesBad:       stats.SamplesBad.Load(),
		SamplesUncertain: stats.SamplesUncertain.Load(),
		LastSweepSeconds: time.Duration(stats.LastSweepNanos.Load()).Seconds(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// StoreHealthChecker verifies the sample store answers queries.
type StoreHealthChecker struct {
	countFunc func(ctx context.Context) (int64, error)
}

func NewStoreHealthChecker(countFunc func(ctx context.Context) (int64, error)) *StoreHealthChecker {
	return &StoreHealthChecker{countFunc: countFunc}
}

func (c *StoreHealthChecker) Name() string {
	return "store"
}

func (c *StoreHealthChecker) Check(ctx context.Context) (Status, string) {
	if _, err := c.countFunc(ctx); err != nil {
		return StatusUnhealthy, err.Error()
	}
	return StatusHealthy, ""
}

// PollerHealthChecker reports whether the sweep loop is running.
type PollerHealthChecker struct {
	poller *service.Poller
}

func NewPollerHealthChecker(poller *service.Poller) *PollerHealthChecker {
	return &PollerHealthChecker{poller: poller}
}

func (c *PollerHealthChecker) Name() string {
	return "poller"
}

func (c *PollerHealthChecker) Check(ctx context.Context) (Status, string) {
	if !c.poller.IsRunning() {
		return StatusDegraded, "poller not running"
	}
	return StatusHealthy, ""
}
