package domain

import (
	"time"

	"github.com/berfenger/sdm120collector/pkg/eastron_modbus"
)

// DeviceReading is the outcome of polling one meter within a cycle.
// A nil Reading means no attempt succeeded. It is never replaced by zeros.
type DeviceReading struct {
	DeviceID uint8
	Reading  eastron_modbus.Reading
	Attempts int
	At       time.Time
}

func (r DeviceReading) Ok() bool {
	return r.Reading != nil
}

// CycleInfo aggregates one pass over all configured devices.
type CycleInfo struct {
	ReadSuccesses int
	ReadFailures  int
	Elapsed       time.Duration
	At            time.Time
}

func (c CycleInfo) ElapsedSeconds() float64 {
	return c.Elapsed.Seconds()
}

func (c CycleInfo) Devices() int {
	return c.ReadSuccesses + c.ReadFailures
}
