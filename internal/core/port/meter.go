package port

import (
	"github.com/berfenger/sdm120collector/pkg/eastron_modbus"
)

type MeterReader interface {
	Read(master eastron_modbus.Master, deviceID uint8) (eastron_modbus.Reading, error)
	RegisterMap() eastron_modbus.RegisterMap
}
