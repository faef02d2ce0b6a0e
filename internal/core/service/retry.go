package service

import (
	"fmt"
	"time"

	"github.com/berfenger/sdm120collector/internal/core/domain"
	"github.com/berfenger/sdm120collector/internal/core/port"
	"github.com/berfenger/sdm120collector/pkg/eastron_modbus"

	"go.uber.org/zap"
)

// AttemptRead polls one device up to maxAttempts times. Transport errors are
// swallowed here and only here: when every attempt fails the returned
// DeviceReading has no Reading and the error is nil. Any other error is
// returned unchanged.
func AttemptRead(reader port.MeterReader, master eastron_modbus.Master, deviceID uint8,
	maxAttempts int, logger *zap.Logger) (domain.DeviceReading, error) {

	result := domain.DeviceReading{DeviceID: deviceID}
	if maxAttempts < 1 {
		return result, fmt.Errorf("read attempts must be >= 1, got %d", maxAttempts)
	}

	for remaining := maxAttempts; remaining > 0; remaining-- {
		logger.Debug("reading device", zap.Uint8("device", deviceID), zap.Int("remaining_attempts", remaining))
		result.Attempts++

		reading, err := reader.Read(master, deviceID)
		if err == nil {
			result.Reading = reading
			result.At = time.Now()
			return result, nil
		}
		if !eastron_modbus.IsTransportError(err) {
			return result, err
		}
		logger.Debug("read attempt failed", zap.Uint8("device", deviceID), zap.Int("attempt", result.Attempts), zap.Error(err))
	}

	result.At = time.Now()
	logger.Warn("device did not answer", zap.Uint8("device", deviceID), zap.Int("attempts", result.Attempts))
	return result, nil
}
