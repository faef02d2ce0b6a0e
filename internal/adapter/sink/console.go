package sink

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/berfenger/sdm120collector/internal/core/domain"
	"github.com/berfenger/sdm120collector/pkg/eastron_modbus"
)

// ConsoleSink dumps each reading as "name value" lines, in register map
// order. An absent reading prints every name with an empty value.
type ConsoleSink struct {
	out   io.Writer
	names []string
}

func NewConsoleSink(out io.Writer, registers eastron_modbus.RegisterMap) *ConsoleSink {
	return &ConsoleSink{
		out:   out,
		names: registers.Names(),
	}
}

func (s *ConsoleSink) Name() string {
	return "console"
}

func (s *ConsoleSink) Announce(ctx context.Context, deviceIDs []uint8) error {
	return nil
}

func (s *ConsoleSink) PublishReading(ctx context.Context, reading domain.DeviceReading) error {
	if _, err := fmt.Fprintf(s.out, "--- Device %d\n", reading.DeviceID); err != nil {
		return err
	}
	for _, name := range s.names {
		value := ""
		if v, ok := reading.Reading[name]; ok {
			value = strconv.FormatFloat(v, 'f', -1, 64)
		}
		if _, err := fmt.Fprintf(s.out, "%s %s\n", name, value); err != nil {
			return err
		}
	}
	return nil
}

func (s *ConsoleSink) PublishCycle(ctx context.Context, info domain.CycleInfo) error {
	_, err := fmt.Fprintf(s.out, "--- Cycle read_successes=%d read_failures=%d elapsed_seconds=%.3f\n",
		info.ReadSuccesses, info.ReadFailures, info.ElapsedSeconds())
	return err
}
