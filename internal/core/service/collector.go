package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/sdm120collector/internal/core/domain"
	"github.com/berfenger/sdm120collector/internal/core/port"
	"github.com/berfenger/sdm120collector/pkg/eastron_modbus"

	"go.uber.org/zap"
)

type CollectorConfig struct {
	DeviceIDs []uint8
	Attempts  int
}

// Collector polls the configured meters one after another on a single bus.
// It owns the master exclusively; none of its methods are safe for concurrent use.
type Collector struct {
	cfg    CollectorConfig
	master eastron_modbus.Master
	reader port.MeterReader
	sinks  []port.Sink
	health *HealthState
	logger *zap.Logger
}

func NewCollector(cfg CollectorConfig, master eastron_modbus.Master, reader port.MeterReader,
	sinks []port.Sink, health *HealthState, logger *zap.Logger) (*Collector, error) {
	if master == nil {
		return nil, errors.New("collector: modbus master required")
	}
	if reader == nil {
		return nil, errors.New("collector: meter reader required")
	}
	if len(cfg.DeviceIDs) == 0 {
		return nil, errors.New("collector: at least one device id required")
	}
	if cfg.Attempts < 1 {
		return nil, fmt.Errorf("collector: attempts must be >= 1, got %d", cfg.Attempts)
	}
	return &Collector{
		cfg:    cfg,
		master: master,
		reader: reader,
		sinks:  sinks,
		health: health,
		logger: logger.With(zap.String("component", "collector")),
	}, nil
}

// Announce hands the device list to every sink.
func (c *Collector) Announce(ctx context.Context) {
	for _, s := range c.sinks {
		if err := s.Announce(ctx, c.cfg.DeviceIDs); err != nil {
			c.logger.Error("sink announce failed", zap.String("sink", s.Name()), zap.Error(err))
		}
	}
}

// RunCycle polls every device once, in configuration order, and forwards the
// results. It never sleeps and never repeats.
func (c *Collector) RunCycle(ctx context.Context) (domain.CycleInfo, error) {
	start := time.Now()
	info := domain.CycleInfo{At: start}

	for _, deviceID := range c.cfg.DeviceIDs {
		res, err := AttemptRead(c.reader, c.master, deviceID, c.cfg.Attempts, c.logger)
		if err != nil {
			return info, fmt.Errorf("device %d: %w", deviceID, err)
		}

		if res.Ok() {
			info.ReadSuccesses++
		} else {
			info.ReadFailures++
		}

		for _, s := range c.sinks {
			if err := s.PublishReading(ctx, res); err != nil {
				c.logger.Error("sink publish reading failed", zap.String("sink", s.Name()),
					zap.Uint8("device", deviceID), zap.Error(err))
			}
		}
	}

	info.Elapsed = time.Since(start)

	for _, s := range c.sinks {
		if err := s.PublishCycle(ctx, info); err != nil {
			c.logger.Error("sink publish cycle failed", zap.String("sink", s.Name()), zap.Error(err))
		}
	}
	if c.health != nil {
		c.health.Record(info)
	}

	c.logger.Info("cycle completed",
		zap.Int("devices", info.Devices()),
		zap.Int("read_successes", info.ReadSuccesses),
		zap.Int("read_failures", info.ReadFailures),
		zap.Float64("elapsed_seconds", info.ElapsedSeconds()))

	return info, nil
}

// Loop drives RunCycle until ctx is cancelled, waiting delay between cycles.
// With oneShot it returns after the first cycle.
func (c *Collector) Loop(ctx context.Context, delay time.Duration, oneShot bool) error {
	c.Announce(ctx)

	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := c.RunCycle(ctx); err != nil {
			return err
		}
		if oneShot {
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
