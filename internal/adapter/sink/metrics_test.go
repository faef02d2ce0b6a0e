package sink

import (
	"context"
	"testing"
	"time"

	"github.com/berfenger/sdm120collector/internal/core/domain"
	"github.com/berfenger/sdm120collector/pkg/eastron_modbus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsSinkCountsReads(t *testing.T) {

	assert := assert.New(t)

	reg := prometheus.NewRegistry()
	s, err := NewMetricsSink(reg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Announce(ctx, []uint8{1, 2}))
	require.NoError(t, s.PublishReading(ctx, sampleReading(1)))
	require.NoError(t, s.PublishReading(ctx, domain.DeviceReading{DeviceID: 2, Attempts: 3}))

	assert.Equal(1.0, testutil.ToFloat64(s.reads.WithLabelValues("1", METRIC_RESULT_SUCCESS)))
	assert.Equal(0.0, testutil.ToFloat64(s.reads.WithLabelValues("1", METRIC_RESULT_FAILURE)))
	assert.Equal(1.0, testutil.ToFloat64(s.reads.WithLabelValues("2", METRIC_RESULT_FAILURE)))
	assert.Equal(3.0, testutil.ToFloat64(s.attempts.WithLabelValues("2")))

	assert.Equal(230.5, testutil.ToFloat64(s.measurement.WithLabelValues("1", eastron_modbus.VOLTAGE_VOLTS)))
	assert.Equal(12500.0, testutil.ToFloat64(s.measurement.WithLabelValues("1", eastron_modbus.IMPORT_ACTIVE_ENERGY_WH)))
	assert.Equal(float64(sampleReading(1).At.Unix()), testutil.ToFloat64(s.lastRead.WithLabelValues("1")))
	assert.Equal(1, testutil.CollectAndCount(s.lastRead), "no timestamp for a device never read")
}

func TestMetricsSinkCycle(t *testing.T) {

	assert := assert.New(t)

	reg := prometheus.NewRegistry()
	s, err := NewMetricsSink(reg)
	require.NoError(t, err)

	info := domain.CycleInfo{ReadSuccesses: 2, ReadFailures: 1, Elapsed: 1200 * time.Millisecond}
	require.NoError(t, s.PublishCycle(context.Background(), info))
	require.NoError(t, s.PublishCycle(context.Background(), info))

	assert.Equal(4.0, testutil.ToFloat64(s.cycleReads.WithLabelValues(METRIC_RESULT_SUCCESS)))
	assert.Equal(2.0, testutil.ToFloat64(s.cycleReads.WithLabelValues(METRIC_RESULT_FAILURE)))
	assert.Equal(1, testutil.CollectAndCount(s.cycleDuration))
}

func TestModbusRequestInstrument(t *testing.T) {

	reg := prometheus.NewRegistry()
	inst, err := ModbusRequestInstrument(reg)
	require.NoError(t, err)

	done := eastron_modbus.RecordTimer("ReadFloat32s", []eastron_modbus.ModbusInstrument{*inst})
	done()

	n, err := testutil.GatherAndCount(reg, "sdm_modbus_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetricsSinkDoubleRegistration(t *testing.T) {

	reg := prometheus.NewRegistry()
	_, err := NewMetricsSink(reg)
	require.NoError(t, err)

	_, err = NewMetricsSink(reg)
	assert.Error(t, err)
}
