package gpssource

import (
	"bufio"
	"fmt"
)

// DefaultBaudRate is the baud rate used by most NMEA-speaking GPS
// receivers (u-blox, SiRF, and similar modules default here).
const DefaultBaudRate = 9600

// SerialGPSSource reads NMEA RMC sentences from a GPS receiver attached
// over a serial port: one bufio.Scanner over the port, one line parsed
// per ReadPosition call.
type SerialGPSSource struct {
	path     string
	baudRate int
	factory  SerialPortFactory

	port    SerialPorter
	scanner *bufio.Scanner
}

// NewSerialGPSSource creates a source that will open path at baudRate
// using the real go.bug.st/serial backend on Connect.
func NewSerialGPSSource(path string, baudRate int) *SerialGPSSource {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	return &SerialGPSSource{
		path:     path,
		baudRate: baudRate,
		factory:  RealSerialPortFactory{},
	}
}

// newSerialGPSSourceWithFactory is used by tests to inject a mock port
// factory instead of opening real hardware.
func newSerialGPSSourceWithFactory(path string, baudRate int, factory SerialPortFactory) *SerialGPSSource {
	return &SerialGPSSource{path: path, baudRate: baudRate, factory: factory}
}

func (s *SerialGPSSource) Connect() error {
	port, err := s.factory.Open(s.path, s.baudRate)
	if err != nil {
		return fmt.Errorf("gpssource: failed to open %s: %w", s.path, err)
	}
	s.port = port
	s.scanner = bufio.NewScanner(port)
	return nil
}

func (s *SerialGPSSource) Disconnect() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	s.scanner = nil
	return err
}

// ReadPosition reads one line from the port and parses it. Non-RMC lines
// and RMC sentences without a valid fix are reported as ErrNoFix, exactly
// as the original GPSReader.read_position treats any non-fix line.
func (s *SerialGPSSource) ReadPosition() (Position, error) {
	if s.scanner == nil {
		return Position{}, fmt.Errorf("gpssource: not connected")
	}
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return Position{}, fmt.Errorf("gpssource: read failed: %w", err)
		}
		return Position{}, ErrNoFix
	}

	line := s.scanner.Text()
	if !isRMCSentence(line) {
		return Position{}, ErrNoFix
	}
	return parseRMC(line)
}
