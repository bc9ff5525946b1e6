package gpssource

import (
	"io"

	"go.bug.st/serial"
)

// SerialPorter is the minimal interface a GPS receiver port must satisfy.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriteCloser
}

// SerialPortFactory creates serial ports, allowing dependency injection
// of port creation for tests.
type SerialPortFactory interface {
	Open(path string, baudRate int) (SerialPorter, error)
}

// RealSerialPortFactory opens real serial ports via go.bug.st/serial.
type RealSerialPortFactory struct{}

// Open opens path at baudRate with 8N1 framing, the framing used by every
// NMEA-speaking GPS receiver this package has been run against.
func (RealSerialPortFactory) Open(path string, baudRate int) (SerialPorter, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	return serial.Open(path, mode)
}
