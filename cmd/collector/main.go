// Package main is the entry point for the collector service.
// It initializes all components and manages the application lifecycle.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/edge-foundry/collector/internal/adapter/config"
	"github.com/edge-foundry/collector/internal/adapter/modbus"
	"github.com/edge-foundry/collector/internal/adapter/opcua"
	"github.com/edge-foundry/collector/internal/domain"
	"github.com/edge-foundry/collector/internal/health"
	"github.com/edge-foundry/collector/internal/metrics"
	"github.com/edge-foundry/collector/internal/service"
	"github.com/edge-foundry/collector/internal/store"
	"github.com/edge-foundry/collector/pkg/logging"
)

const (
	serviceName    = "collector"
	serviceVersion = "1.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New(serviceName, serviceVersion, "info", "json")
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := logging.New(serviceName, serviceVersion, cfg.Logging.Level, cfg.Logging.Format)
	logger.Info().Str("env", cfg.Environment).Msg("Starting collector")

	metricsRegistry := metrics.NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the registry and sample store
	sampleStore, err := store.NewSQLiteStore(cfg.Store.Path, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open store")
	}
	defer sampleStore.Close()
	logger.Info().Str("path", cfg.Store.Path).Msg("Store opened")

	// Seed the registry on first run
	if err := seedRegistry(ctx, logger, cfg, sampleStore); err != nil {
		logger.Fatal().Err(err).Msg("Failed to seed device registry")
	}

	// Initialize protocol readers
	modbusReader := modbus.NewReader(modbus.Config{
		Timeout: cfg.Modbus.Timeout,
		SlaveID: byte(cfg.Modbus.SlaveID),
	}, logger)

	opcuaReader := opcua.NewReader(opcua.Config{
		Timeout: cfg.OPCUA.Timeout,
	}, logger)

	readers := domain.NewReaderSet(modbusReader, opcuaReader)

	// Start the poller
	poller := service.NewPoller(service.Config{
		Interval: cfg.Polling.Interval,
	}, sampleStore, readers, logger, metricsRegistry)
	poller.Start(ctx)
	defer poller.Stop()

	// Start the health server
	healthServer := health.NewServer(logger, health.Config{
		Address:      httpAddress(cfg.HTTP.Port),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}, poller)
	healthServer.AddChecker(health.NewStoreHealthChecker(sampleStore.CountSamples))
	healthServer.AddChecker(health.NewPollerHealthChecker(poller))
	if err := healthServer.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start health server")
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("Shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := healthServer.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Health server shutdown error")
	}

	poller.Stop()
	logger.Info().Msg("Collector stopped")
}

// seedRegistry imports the YAML seed file when the registry is empty.
// A missing seed file is not an error.
func seedRegistry(ctx context.Context, logger zerolog.Logger, cfg *config.Config, s store.Store) error {
	count, err := s.CountDevices(ctx)
	if err != nil {
		return err
	}
	if count > 0 || cfg.SeedPath == "" {
		return nil
	}

	if _, err := os.Stat(cfg.SeedPath); os.IsNotExist(err) {
		logger.Debug().Str("path", cfg.SeedPath).Msg("No seed file, starting with empty registry")
		return nil
	}

	seeded, err := config.LoadSeed(cfg.SeedPath)
	if err != nil {
		return err
	}

	for _, sd := range seeded {
		device, err := s.CreateDevice(ctx, &sd.Device)
		if err != nil {
			return err
		}
		for i := range sd.Tags {
			tag := sd.Tags[i]
			tag.DeviceID = device.ID
			if _, err := s.CreateTag(ctx, &tag); err != nil {
				return err
			}
		}
	}

	logger.Info().Int("devices", len(seeded)).Str("path", cfg.SeedPath).Msg("Registry seeded")
	return nil
}

func httpAddress(port int) string {
	return net.JoinHostPort("", strconv.Itoa(port))
}
