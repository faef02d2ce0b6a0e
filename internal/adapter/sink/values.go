package sink

import (
	"math"

	"github.com/berfenger/sdm120collector/pkg/eastron_modbus"
)

// finiteFields drops NaN and ±Inf values, which JSON cannot encode.
func finiteFields(reading eastron_modbus.Reading) map[string]float64 {
	fields := make(map[string]float64, len(reading))
	for name, value := range reading {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		fields[name] = value
	}
	return fields
}
