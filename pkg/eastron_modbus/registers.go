package eastron_modbus

import (
	"errors"
	"fmt"
)

const (
	VOLTAGE_VOLTS               = "voltage_volts"
	CURRENT_AMPS                = "current_amps"
	POWER_WATTS                 = "power_watts"
	ACTIVE_APPARENT_POWER_VA    = "active_apparent_power_va"
	REACTIVE_APPARENT_POWER_VAR = "reactive_apparent_power_var"
	POWER_FACTOR                = "power_factor"
	FREQUENCY_HZ                = "frequency_hz"
	IMPORT_ACTIVE_ENERGY_WH     = "import_active_energy_wh"
	EXPORT_ACTIVE_ENERGY_WH     = "export_active_energy_wh"
	TOTAL_ACTIVE_ENERGY_WH      = "total_active_energy_wh"
)

// energy registers are reported by the meter in kWh
const energyScale = 1000

// Register is one named 32-bit float measurement, addressed in 16-bit register units.
type Register struct {
	Name    string
	Address uint16
}

// ReadChunk is a contiguous range of input registers fetched with a single request.
type ReadChunk struct {
	Address   uint16
	Registers uint16
}

func (c ReadChunk) end() uint16 {
	return c.Address + c.Registers
}

func (c ReadChunk) contains(address uint16) bool {
	return address >= c.Address && address+2 <= c.end()
}

type RegisterMap struct {
	Registers []Register
	Chunks    []ReadChunk
	// names of registers scaled from kWh to Wh after decoding
	Energy []string
}

// SDM120 register layout. The device map has large unused gaps between the
// three blocks, which must not be requested as a single range.
var SDM120 = RegisterMap{
	Registers: []Register{
		{Name: VOLTAGE_VOLTS, Address: 0x00},
		{Name: CURRENT_AMPS, Address: 0x06},
		{Name: POWER_WATTS, Address: 0x0C},
		{Name: ACTIVE_APPARENT_POWER_VA, Address: 0x12},
		{Name: REACTIVE_APPARENT_POWER_VAR, Address: 0x18},
		{Name: POWER_FACTOR, Address: 0x1E},
		{Name: FREQUENCY_HZ, Address: 0x46},
		{Name: IMPORT_ACTIVE_ENERGY_WH, Address: 0x48},
		{Name: EXPORT_ACTIVE_ENERGY_WH, Address: 0x4C},
		{Name: TOTAL_ACTIVE_ENERGY_WH, Address: 0x0158},
	},
	Chunks: []ReadChunk{
		{Address: 0x00, Registers: 32},
		{Address: 0x46, Registers: 8},
		{Address: 0x0158, Registers: 2},
	},
	Energy: []string{
		IMPORT_ACTIVE_ENERGY_WH,
		EXPORT_ACTIVE_ENERGY_WH,
		TOTAL_ACTIVE_ENERGY_WH,
	},
}

// Names returns the measurement names in register map order.
func (m RegisterMap) Names() []string {
	names := make([]string, 0, len(m.Registers))
	for _, r := range m.Registers {
		names = append(names, r.Name)
	}
	return names
}

// Validate checks the chunk layout the reader's index arithmetic depends on.
func (m RegisterMap) Validate() error {
	if len(m.Registers) == 0 {
		return errors.New("register map: no registers defined")
	}
	if len(m.Chunks) == 0 {
		return errors.New("register map: no read chunks defined")
	}

	for i, c := range m.Chunks {
		if c.Registers == 0 || c.Registers%2 != 0 {
			return fmt.Errorf("register map: chunk 0x%04X has odd or zero register count %d", c.Address, c.Registers)
		}
		if c.Address%2 != 0 {
			return fmt.Errorf("register map: chunk 0x%04X is not aligned to a float boundary", c.Address)
		}
		if uint32(c.Address)+uint32(c.Registers) > 0x10000 {
			return fmt.Errorf("register map: chunk 0x%04X exceeds the register address space", c.Address)
		}
		if i > 0 {
			prev := m.Chunks[i-1]
			if c.Address < prev.end() {
				return fmt.Errorf("register map: chunk 0x%04X overlaps or precedes chunk 0x%04X", c.Address, prev.Address)
			}
		}
	}

	seen := make(map[string]struct{}, len(m.Registers))
	for _, r := range m.Registers {
		if _, dup := seen[r.Name]; dup {
			return fmt.Errorf("register map: duplicate register name %q", r.Name)
		}
		seen[r.Name] = struct{}{}

		if r.Address%2 != 0 {
			return fmt.Errorf("register map: register %s at odd address 0x%04X", r.Name, r.Address)
		}
		covered := false
		for _, c := range m.Chunks {
			if c.contains(r.Address) {
				covered = true
				break
			}
		}
		if !covered {
			return fmt.Errorf("register map: register %s at 0x%04X is not covered by any read chunk", r.Name, r.Address)
		}
	}

	for _, name := range m.Energy {
		if _, ok := seen[name]; !ok {
			return fmt.Errorf("register map: energy register %q is not defined", name)
		}
	}

	return nil
}
