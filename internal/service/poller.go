// Package service provides the poller that sweeps the device registry
// and appends samples to the store.
package service

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edge-foundry/collector/internal/domain"
	"github.com/edge-foundry/collector/internal/metrics"
)

// Store is the slice of the persistence layer the poller uses.
type Store interface {
	ListEnabledDevices(ctx context.Context) ([]*domain.Device, error)
	ListEnabledTags(ctx context.Context, deviceID int64) ([]*domain.Tag, error)
	GetDevice(ctx context.Context, id int64) (*domain.Device, error)
	AppendSample(ctx context.Context, sample *domain.Sample) (*domain.Sample, error)
}

// Config holds poller configuration.
type Config struct {
	// Interval is the pause between the end of one sweep and the start
	// of the next
	Interval time.Duration
}

// Stats tracks poller statistics.
type Stats struct {
	SweepsTotal      atomic.Uint64
	DevicesPolled    atomic.Uint64
	SamplesGood      atomic.Uint64
	SamplesBad       atomic.Uint64
	SamplesUncertain atomic.Uint64
	LastSweepNanos   atomic.Int64
}

// record tallies one stored sample by quality.
func (st *Stats) record(q domain.Quality) {
	switch q {
	case domain.QualityGood:
		st.SamplesGood.Add(1)
	case domain.QualityUncertain:
		st.SamplesUncertain.Add(1)
	default:
		st.SamplesBad.Add(1)
	}
}

// Poller repeatedly sweeps all enabled devices, reads all enabled tags
// and appends one sample per tag per sweep. Sweeps are sequential, one
// device at a time; failures are isolated per device and per tag.
type Poller struct {
	config  Config
	store   Store
	readers *domain.ReaderSet
	logger  zerolog.Logger
	metrics *metrics.Registry
	stats   *Stats

	// mu serializes Start and Stop so cancel is never read stale.
	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPoller creates a poller.
func NewPoller(config Config, store Store, readers *domain.ReaderSet, logger zerolog.Logger, metricsReg *metrics.Registry) *Poller {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Second
	}

	return &Poller{
		config:  config,
		store:   store,
		readers: readers,
		logger:  logger.With().Str("component", "poller").Logger(),
		metrics: metricsReg,
		stats:   &Stats{},
	}
}

// Start launches the sweep loop. Calling Start while the loop is already
// running is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running.Load() {
		p.logger.Warn().Msg("Poller already running, ignoring start")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running.Store(true)

	p.metrics.PollerRunning.Set(1)
	p.logger.Info().Dur("interval", p.config.Interval).Msg("Poller started")

	p.wg.Add(1)
	go p.run(runCtx)
}

// Stop cancels the sweep loop and waits for the in-flight sweep to end.
// Stopping a poller that is not running is a no-op.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running.Load() {
		return
	}

	p.cancel()
	p.wg.Wait()
	p.running.Store(false)

	p.metrics.PollerRunning.Set(0)
	p.logger.Info().Msg("Poller stopped")
}

// IsRunning reports whether the sweep loop is active.
func (p *Poller) IsRunning() bool {
	return p.running.Load()
}

// Stats returns the poller's counters.
func (p *Poller) Stats() *Stats {
	return p.stats
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		p.sweep(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.config.Interval):
		}
	}
}

// sweep polls every enabled device once, sequentially.
func (p *Poller) sweep(ctx context.Context) {
	sweepID := uuid.NewString()
	start := time.Now()
	logger := p.logger.With().Str("sweep_id", sweepID).Logger()

	devices, err := p.store.ListEnabledDevices(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list devices")
		return
	}

	for _, device := range devices {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("Sweep cancelled")
			return
		default:
		}

		if err := p.pollDevice(ctx, logger, device); err != nil {
			logger.Error().
				Err(err).
				Int64("device_id", device.ID).
				Str("device", device.Name).
				Msg("Device poll failed")
			p.metrics.DeviceErrors.WithLabelValues(deviceLabel(device.ID), "poll").Inc()
		}
		p.stats.DevicesPolled.Add(1)
	}

	elapsed := time.Since(start)
	p.stats.SweepsTotal.Add(1)
	p.stats.LastSweepNanos.Store(elapsed.Nanoseconds())
	p.metrics.SweepsTotal.Inc()
	p.metrics.SweepDuration.Observe(elapsed.Seconds())

	logger.Debug().
		Int("devices", len(devices)).
		Dur("elapsed", elapsed).
		Msg("Sweep complete")
}

// pollDevice reads every enabled tag of one device and stores the
// samples. A device speaking an unknown protocol yields bad samples for
// all of its tags; a failed append is logged and skipped.
func (p *Poller) pollDevice(ctx context.Context, logger zerolog.Logger, device *domain.Device) error {
	tags, err := p.store.ListEnabledTags(ctx, device.ID)
	if err != nil {
		return err
	}
	if len(tags) == 0 {
		return nil
	}

	p.metrics.DevicePolls.WithLabelValues(deviceLabel(device.ID), string(device.Protocol)).Inc()

	reader, err := p.readers.For(device.Protocol)
	if err != nil {
		logger.Warn().
			Int64("device_id", device.ID).
			Str("protocol", string(device.Protocol)).
			Msg("Unknown protocol, storing bad samples")
		p.metrics.DeviceErrors.WithLabelValues(deviceLabel(device.ID), "unknown_protocol").Inc()
		for _, tag := range tags {
			p.storeSample(ctx, logger, tag, domain.BadReading())
		}
		return nil
	}

	for _, tag := range tags {
		reading := reader.ReadValue(ctx, device, tag.Address, tag.DataKind)
		p.storeSample(ctx, logger, tag, reading)
	}
	return nil
}

// storeSample appends one sample, tallying it even when the append
// fails so stats stay aligned with attempts.
func (p *Poller) storeSample(ctx context.Context, logger zerolog.Logger, tag *domain.Tag, reading domain.Reading) {
	sample := domain.NewSample(tag.ID, reading, time.Now().UTC())

	if _, err := p.store.AppendSample(ctx, &sample); err != nil {
		logger.Error().
			Err(err).
			Int64("tag_id", tag.ID).
			Str("tag", tag.Name).
			Msg("Failed to append sample")
		return
	}

	p.stats.record(sample.Quality)
	p.metrics.SamplesTotal.WithLabelValues(string(sample.Quality)).Inc()
}

// PollDeviceOnce polls a single device immediately, independent of the
// sweep loop, and returns the readings keyed by tag name. Samples are
// appended exactly as a sweep would.
func (p *Poller) PollDeviceOnce(ctx context.Context, deviceID int64) (map[string]domain.Reading, error) {
	device, err := p.store.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	tags, err := p.store.ListEnabledTags(ctx, device.ID)
	if err != nil {
		return nil, err
	}

	logger := p.logger.With().Int64("device_id", device.ID).Logger()
	results := make(map[string]domain.Reading, len(tags))
	if len(tags) == 0 {
		return results, nil
	}

	reader, err := p.readers.For(device.Protocol)
	if err != nil {
		for _, tag := range tags {
			reading := domain.BadReading()
			results[tag.Name] = reading
			p.storeSample(ctx, logger, tag, reading)
		}
		return results, nil
	}

	reqs := make([]domain.ReadRequest, 0, len(tags))
	for _, tag := range tags {
		reqs = append(reqs, domain.ReadRequest{Address: tag.Address, Kind: tag.DataKind})
	}

	readings := reader.ReadBatch(ctx, device, reqs)
	for _, tag := range tags {
		reading, ok := readings[tag.Address]
		if !ok {
			reading = domain.BadReading()
		}
		results[tag.Name] = reading
		p.storeSample(ctx, logger, tag, reading)
	}
	return results, nil
}

func deviceLabel(id int64) string {
	return strconv.FormatInt(id, 10)
}
