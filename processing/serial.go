package processing

import (
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the rate the GUI opens its port at.
	DefaultBaudRate = 57600
	// DefaultReadTimeout bounds how long Serve waits before re-checking its context.
	DefaultReadTimeout = 100 * time.Millisecond
)

// OpenSerial opens a serial port for the GUI link. Reads time out after readTimeout so Serve can
// observe context cancellation; zero blocks forever.
func OpenSerial(portName string, baudRate int, readTimeout time.Duration) (serial.Port, error) {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial port %s", portName)
	}
	if readTimeout > 0 {
		if err := port.SetReadTimeout(readTimeout); err != nil {
			port.Close()
			return nil, errors.Wrapf(err, "failed to set read timeout on %s", portName)
		}
	}
	return port, nil
}
