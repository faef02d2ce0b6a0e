package sink

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/berfenger/sdm120collector/internal/core/domain"
	"github.com/berfenger/sdm120collector/pkg/eastron_modbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReading(deviceID uint8) domain.DeviceReading {
	return domain.DeviceReading{
		DeviceID: deviceID,
		Attempts: 1,
		At:       time.Unix(1700000000, 0),
		Reading: eastron_modbus.Reading{
			eastron_modbus.VOLTAGE_VOLTS:               230.5,
			eastron_modbus.CURRENT_AMPS:                1.25,
			eastron_modbus.POWER_WATTS:                 276,
			eastron_modbus.ACTIVE_APPARENT_POWER_VA:    280,
			eastron_modbus.REACTIVE_APPARENT_POWER_VAR: -45,
			eastron_modbus.POWER_FACTOR:                0.98,
			eastron_modbus.FREQUENCY_HZ:                50,
			eastron_modbus.IMPORT_ACTIVE_ENERGY_WH:     12500,
			eastron_modbus.EXPORT_ACTIVE_ENERGY_WH:     300,
			eastron_modbus.TOTAL_ACTIVE_ENERGY_WH:      12800,
		},
	}
}

func TestConsoleSinkDumpsInRegisterOrder(t *testing.T) {

	assert := assert.New(t)

	var out bytes.Buffer
	s := NewConsoleSink(&out, eastron_modbus.SDM120)

	require.NoError(t, s.PublishReading(context.Background(), sampleReading(2)))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1+len(eastron_modbus.SDM120.Registers))
	assert.Equal("--- Device 2", lines[0])
	assert.Equal("voltage_volts 230.5", lines[1])
	assert.Equal("current_amps 1.25", lines[2])
	assert.Equal("total_active_energy_wh 12800", lines[len(lines)-1])
}

func TestConsoleSinkAbsentReading(t *testing.T) {

	var out bytes.Buffer
	s := NewConsoleSink(&out, eastron_modbus.SDM120)

	require.NoError(t, s.PublishReading(context.Background(), domain.DeviceReading{DeviceID: 4, Attempts: 3}))

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	assert.Equal(t, "--- Device 4", lines[0])
	for i, name := range eastron_modbus.SDM120.Names() {
		assert.Equal(t, name+" ", lines[i+1], "no value for absent reading")
	}
}

func TestConsoleSinkCycle(t *testing.T) {

	var out bytes.Buffer
	s := NewConsoleSink(&out, eastron_modbus.SDM120)

	err := s.PublishCycle(context.Background(), domain.CycleInfo{ReadSuccesses: 2, ReadFailures: 1, Elapsed: 1500 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "--- Cycle read_successes=2 read_failures=1 elapsed_seconds=1.500\n", out.String())
}
