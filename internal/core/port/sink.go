package port

import (
	"context"

	"github.com/berfenger/sdm120collector/internal/core/domain"
)

// Sink receives collected data. Errors are reported back to the collector,
// which logs them and carries on with the cycle.
type Sink interface {
	Name() string
	// Announce replaces the sink's list of polled device ids.
	Announce(ctx context.Context, deviceIDs []uint8) error
	// PublishReading is called once per device per cycle, also for failed reads.
	PublishReading(ctx context.Context, reading domain.DeviceReading) error
	PublishCycle(ctx context.Context, info domain.CycleInfo) error
}
