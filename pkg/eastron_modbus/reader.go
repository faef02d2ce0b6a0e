package eastron_modbus

import (
	"fmt"
)

// Reading maps measurement names to decoded values. Energy values are in Wh.
type Reading map[string]float64

// slot is one entry of the flat float array, indexed by register address / 2.
// Gaps between read chunks are left unknown.
type slot struct {
	value float32
	known bool
}

type SDM120Reader struct {
	registers RegisterMap
}

func CreateSDM120Reader() (*SDM120Reader, error) {
	return NewRegisterMapReader(SDM120)
}

// NewRegisterMapReader returns a reader for an arbitrary register map.
// The map is validated once here so Read can rely on chunk ordering.
func NewRegisterMapReader(registers RegisterMap) (*SDM120Reader, error) {
	if err := registers.Validate(); err != nil {
		return nil, err
	}
	return &SDM120Reader{registers: registers}, nil
}

func (reader *SDM120Reader) RegisterMap() RegisterMap {
	return reader.registers
}

// Read fetches every chunk from the device and decodes the named measurements.
// Any failed chunk aborts the read; partial readings are never returned.
func (reader *SDM120Reader) Read(master Master, deviceID uint8) (Reading, error) {
	flat, err := reader.readFlat(master, deviceID)
	if err != nil {
		return nil, err
	}

	result := make(Reading, len(reader.registers.Registers))
	for _, reg := range reader.registers.Registers {
		idx := int(reg.Address / 2)
		if idx >= len(flat) || !flat[idx].known {
			panic(fmt.Sprintf("eastron_modbus: register %s at 0x%04X falls outside the read chunks", reg.Name, reg.Address))
		}
		result[reg.Name] = float64(flat[idx].value)
	}

	for _, name := range reader.registers.Energy {
		result[name] = result[name] * energyScale
	}

	return result, nil
}

func (reader *SDM120Reader) readFlat(master Master, deviceID uint8) ([]slot, error) {
	var flat []slot

	for _, chunk := range reader.registers.Chunks {
		missing := int(chunk.Address/2) - len(flat)
		if missing < 0 {
			panic(fmt.Sprintf("eastron_modbus: chunk 0x%04X overlaps previous data", chunk.Address))
		}
		for i := 0; i < missing; i++ {
			flat = append(flat, slot{})
		}

		quantity := chunk.Registers / 2
		values, err := master.ReadFloat32s(deviceID, chunk.Address, quantity)
		if err != nil {
			if IsTransportError(err) {
				return nil, err
			}
			if isTransportFailure(err) {
				return nil, &TransportError{DeviceID: deviceID, Chunk: chunk, Err: err}
			}
			return nil, fmt.Errorf("device %d: read chunk 0x%04X: %w", deviceID, chunk.Address, err)
		}
		if len(values) != int(quantity) {
			return nil, &TransportError{
				DeviceID: deviceID,
				Chunk:    chunk,
				Err:      fmt.Errorf("short response: got %d values, want %d", len(values), quantity),
			}
		}

		for _, v := range values {
			flat = append(flat, slot{value: v, known: true})
		}
	}

	return flat, nil
}
