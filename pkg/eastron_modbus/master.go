package eastron_modbus

import (
	"fmt"
	"strings"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// Master is the Modbus request surface the reader depends on.
type Master interface {
	// ReadFloat32s reads quantity consecutive 32-bit floats (2*quantity input
	// registers) starting at addr from the device with the given unit id.
	ReadFloat32s(unitId uint8, addr uint16, quantity uint16) ([]float32, error)
}

type SerialConfig struct {
	Device   string
	Speed    uint
	DataBits uint
	Parity   string
	StopBits uint
	Timeout  time.Duration
}

type ModbusClient struct {
	client     *modbus.ModbusClient
	instrument []ModbusInstrument
}

type ModbusInstrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

// CreateRTUMaster configures a Modbus RTU client on a serial port.
// The port is not opened until Open is called.
func CreateRTUMaster(cfg SerialConfig, logger *zap.Logger, instrumentation *ModbusInstrument) (*ModbusClient, error) {
	parity, err := ParseParity(cfg.Parity)
	if err != nil {
		return nil, err
	}

	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:      fmt.Sprintf("rtu://%s", cfg.Device),
		Speed:    cfg.Speed,
		DataBits: cfg.DataBits,
		Parity:   parity,
		StopBits: cfg.StopBits,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	// SDM120 floats are big endian, high word first
	if err := client.SetEncoding(modbus.BIG_ENDIAN, modbus.HIGH_WORD_FIRST); err != nil {
		return nil, err
	}

	// instrumentation
	var inst []ModbusInstrument
	if logger.Core().Enabled(zap.DebugLevel) {
		inst = append(inst, *traceLoggerInstrumentation(logger.With(zap.String("device", cfg.Device))))
	}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}

	return &ModbusClient{
		client:     client,
		instrument: inst,
	}, nil
}

func (c *ModbusClient) Open() error {
	return c.client.Open()
}

func (c *ModbusClient) Close() error {
	return c.client.Close()
}

func (c *ModbusClient) ReadFloat32s(unitId uint8, addr uint16, quantity uint16) ([]float32, error) {
	defer RecordTimer("ReadFloat32s", c.instrument)()
	if err := c.client.SetUnitId(unitId); err != nil {
		return nil, err
	}
	return c.client.ReadFloat32s(addr, quantity, modbus.INPUT_REGISTER)
}

// ParseParity maps a parity name to the modbus client constant.
func ParseParity(parity string) (uint, error) {
	switch strings.ToLower(parity) {
	case "", "n", "none":
		return modbus.PARITY_NONE, nil
	case "e", "even":
		return modbus.PARITY_EVEN, nil
	case "o", "odd":
		return modbus.PARITY_ODD, nil
	}
	return 0, fmt.Errorf("unknown parity %q (none, even, odd)", parity)
}

func RecordTimer(name string, instrument []ModbusInstrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}

func traceLoggerInstrumentation(logger *zap.Logger) *ModbusInstrument {
	return &ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Debug("modbus request", zap.String("fn", fnName), zap.Int64("millis", readTime.Milliseconds()))
		},
	}
}
