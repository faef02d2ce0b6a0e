package eastron_modbus

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/simonvetter/modbus"
)

// TransportError reports a failed or malformed exchange with the meter:
// no response, bad CRC, exception reply, short frame.
// Callers may retry it; every other error is a local problem.
type TransportError struct {
	DeviceID uint8
	Chunk    ReadChunk
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("device %d: read %d registers at 0x%04X: %v", e.DeviceID, e.Chunk.Registers, e.Chunk.Address, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err (or anything it wraps) is a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// isTransportFailure classifies raw errors returned by the modbus client.
func isTransportFailure(err error) bool {
	var mbErr modbus.Error
	if errors.As(err, &mbErr) {
		switch mbErr {
		case modbus.ErrConfigurationError, modbus.ErrUnexpectedParameters:
			return false
		default:
			return true
		}
	}
	return errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
