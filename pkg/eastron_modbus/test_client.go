package eastron_modbus

import (
	"time"

	"github.com/simonvetter/modbus"
)

// CreateTestMaster returns an in-memory master answering every unit id with
// plausible SDM120 values.
func CreateTestMaster() *TestMaster {
	return &TestMaster{
		Values: map[uint16]float32{
			0x00:   230.1,
			0x06:   1.2,
			0x0C:   276.0,
			0x12:   280.5,
			0x18:   -45.2,
			0x1E:   0.98,
			0x46:   50.0,
			0x48:   12.5,
			0x4C:   0.3,
			0x0158: 12.8,
		},
	}
}

type TestMasterCall struct {
	UnitId   uint8
	Addr     uint16
	Quantity uint16
}

// TestMaster serves floats keyed by register address. Addresses without a
// value read as zero.
type TestMaster struct {
	Values map[uint16]float32
	// consumed one per request; a nil entry lets that request through
	FailNext []error
	// requests to these unit ids always fail
	FailDevices map[uint8]error
	// when > 0, responses carry only this many values
	Truncate int
	// simulated bus time per request
	Latency time.Duration
	Calls   []TestMasterCall
}

func (m *TestMaster) ReadFloat32s(unitId uint8, addr uint16, quantity uint16) ([]float32, error) {
	m.Calls = append(m.Calls, TestMasterCall{UnitId: unitId, Addr: addr, Quantity: quantity})
	if m.Latency > 0 {
		time.Sleep(m.Latency)
	}

	if err, ok := m.FailDevices[unitId]; ok {
		return nil, err
	}
	if len(m.FailNext) > 0 {
		err := m.FailNext[0]
		m.FailNext = m.FailNext[1:]
		if err != nil {
			return nil, err
		}
	}

	n := int(quantity)
	if m.Truncate > 0 && m.Truncate < n {
		n = m.Truncate
	}
	values := make([]float32, n)
	for i := range values {
		values[i] = m.Values[addr+uint16(2*i)]
	}
	return values, nil
}

// ErrTestTimeout is what the RTU transport returns when the meter does not answer.
var ErrTestTimeout = modbus.ErrRequestTimedOut
