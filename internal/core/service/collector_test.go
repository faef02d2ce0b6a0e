package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/berfenger/sdm120collector/internal/core/domain"
	"github.com/berfenger/sdm120collector/internal/core/port"
	"github.com/berfenger/sdm120collector/pkg/eastron_modbus"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingSink struct {
	name      string
	err       error
	announced [][]uint8
	readings  []domain.DeviceReading
	cycles    []domain.CycleInfo
	onCycle   func()
}

func (s *recordingSink) Name() string {
	return s.name
}

func (s *recordingSink) Announce(ctx context.Context, deviceIDs []uint8) error {
	s.announced = append(s.announced, deviceIDs)
	return s.err
}

func (s *recordingSink) PublishReading(ctx context.Context, reading domain.DeviceReading) error {
	s.readings = append(s.readings, reading)
	return s.err
}

func (s *recordingSink) PublishCycle(ctx context.Context, info domain.CycleInfo) error {
	s.cycles = append(s.cycles, info)
	if s.onCycle != nil {
		s.onCycle()
	}
	return s.err
}

func newTestCollector(t *testing.T, master eastron_modbus.Master, devices []uint8, attempts int,
	logger *zap.Logger, sinks ...port.Sink) (*Collector, *HealthState) {
	reader, err := eastron_modbus.CreateSDM120Reader()
	require.NoError(t, err)
	health := &HealthState{}
	c, err := NewCollector(CollectorConfig{DeviceIDs: devices, Attempts: attempts}, master, reader, sinks, health, logger)
	require.NoError(t, err)
	return c, health
}

func TestRunCycleAggregatesCounters(t *testing.T) {

	assert := assert.New(t)

	master := eastron_modbus.CreateTestMaster()
	master.FailDevices = map[uint8]error{2: modbus.ErrRequestTimedOut}
	master.Latency = time.Millisecond

	sink := &recordingSink{name: "rec"}
	c, health := newTestCollector(t, master, []uint8{1, 2, 3}, 3, zap.NewNop(), sink)

	info, err := c.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(2, info.ReadSuccesses)
	assert.Equal(1, info.ReadFailures)
	assert.Equal(3, info.Devices())
	assert.Greater(info.ElapsedSeconds(), 0.0)

	require.Len(t, sink.readings, 3)
	assert.Equal(uint8(1), sink.readings[0].DeviceID)
	assert.Equal(uint8(2), sink.readings[1].DeviceID)
	assert.Equal(uint8(3), sink.readings[2].DeviceID)
	assert.True(sink.readings[0].Ok())
	assert.False(sink.readings[1].Ok(), "failed device is forwarded without data")
	assert.Nil(sink.readings[1].Reading)
	assert.Equal(3, sink.readings[1].Attempts)
	assert.True(sink.readings[2].Ok())

	require.Len(t, sink.cycles, 1)
	assert.Equal(info, sink.cycles[0])

	last, ok := health.Last()
	assert.True(ok)
	assert.Equal(info, last)
	assert.True(health.Healthy())
}

func TestRunCycleResetsCountersEachPass(t *testing.T) {

	master := eastron_modbus.CreateTestMaster()
	c, _ := newTestCollector(t, master, []uint8{1, 2}, 1, zap.NewNop())

	for i := 0; i < 3; i++ {
		info, err := c.RunCycle(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, info.ReadSuccesses)
		assert.Equal(t, 0, info.ReadFailures)
	}
}

func TestRunCycleSinkErrorsAreNotFatal(t *testing.T) {

	assert := assert.New(t)

	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core)

	broken := &recordingSink{name: "broken", err: errors.New("connection refused")}
	rec := &recordingSink{name: "rec"}
	c, _ := newTestCollector(t, eastron_modbus.CreateTestMaster(), []uint8{1, 2}, 1, logger, broken, rec)

	info, err := c.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(2, info.ReadSuccesses)
	assert.Len(rec.readings, 2, "later sinks still receive data")
	assert.Len(rec.cycles, 1)
	assert.Equal(2, logs.FilterMessage("sink publish reading failed").Len())
	assert.Equal(1, logs.FilterMessage("sink publish cycle failed").Len())
}

func TestRunCycleAbortsOnNonTransportError(t *testing.T) {

	master := eastron_modbus.CreateTestMaster()
	master.FailDevices = map[uint8]error{1: modbus.ErrConfigurationError}

	sink := &recordingSink{name: "rec"}
	c, health := newTestCollector(t, master, []uint8{1, 2}, 3, zap.NewNop(), sink)

	_, err := c.RunCycle(context.Background())
	assert.ErrorIs(t, err, modbus.ErrConfigurationError)
	assert.Empty(t, sink.readings)
	assert.Empty(t, sink.cycles)
	assert.False(t, health.Healthy())
}

func TestNewCollectorValidation(t *testing.T) {

	assert := assert.New(t)

	reader, err := eastron_modbus.CreateSDM120Reader()
	require.NoError(t, err)
	master := eastron_modbus.CreateTestMaster()

	_, err = NewCollector(CollectorConfig{Attempts: 1}, master, reader, nil, nil, zap.NewNop())
	assert.Error(err, "no devices")
	_, err = NewCollector(CollectorConfig{DeviceIDs: []uint8{1}}, master, reader, nil, nil, zap.NewNop())
	assert.Error(err, "no attempts")
	_, err = NewCollector(CollectorConfig{DeviceIDs: []uint8{1}, Attempts: 1}, nil, reader, nil, nil, zap.NewNop())
	assert.Error(err, "no master")
	_, err = NewCollector(CollectorConfig{DeviceIDs: []uint8{1}, Attempts: 1}, master, nil, nil, nil, zap.NewNop())
	assert.Error(err, "no reader")
}

func TestLoopOneShot(t *testing.T) {

	assert := assert.New(t)

	master := eastron_modbus.CreateTestMaster()
	sink := &recordingSink{name: "rec"}
	c, _ := newTestCollector(t, master, []uint8{4, 5}, 1, zap.NewNop(), sink)

	err := c.Loop(context.Background(), time.Hour, true)
	require.NoError(t, err)

	assert.Equal([][]uint8{{4, 5}}, sink.announced)
	assert.Len(sink.cycles, 1)
	assert.Len(sink.readings, 2)
}

func TestLoopStopsOnCancel(t *testing.T) {

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &recordingSink{name: "rec"}
	sink.onCycle = func() {
		if len(sink.cycles) == 2 {
			cancel()
		}
	}
	c, _ := newTestCollector(t, eastron_modbus.CreateTestMaster(), []uint8{1}, 1, zap.NewNop(), sink)

	err := c.Loop(ctx, 0, false)
	require.NoError(t, err)
	assert.Len(t, sink.cycles, 2)
}

func TestLoopReturnsCycleError(t *testing.T) {

	master := eastron_modbus.CreateTestMaster()
	master.FailDevices = map[uint8]error{1: modbus.ErrUnexpectedParameters}
	c, _ := newTestCollector(t, master, []uint8{1}, 1, zap.NewNop())

	err := c.Loop(context.Background(), 0, false)
	assert.ErrorIs(t, err, modbus.ErrUnexpectedParameters)
}

func TestHealthState(t *testing.T) {

	assert := assert.New(t)

	h := &HealthState{}
	assert.False(h.Healthy(), "no cycle yet")

	h.Record(domain.CycleInfo{ReadFailures: 2})
	assert.False(h.Healthy(), "nothing read")

	h.Record(domain.CycleInfo{ReadSuccesses: 1, ReadFailures: 1})
	assert.True(h.Healthy())
}
