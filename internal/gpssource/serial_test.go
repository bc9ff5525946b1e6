package gpssource

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// fakePort is a minimal in-memory SerialPorter backed by a byte buffer,
// trimmed down to what ReadPosition actually exercises.
type fakePort struct {
	io.Reader
	closed bool
}

func (p *fakePort) Write(b []byte) (int, error) { return len(b), nil }
func (p *fakePort) Close() error                { p.closed = true; return nil }

type fakeFactory struct {
	port   SerialPorter
	err    error
	opened []string
}

func (f *fakeFactory) Open(path string, baudRate int) (SerialPorter, error) {
	f.opened = append(f.opened, path)
	if f.err != nil {
		return nil, f.err
	}
	return f.port, nil
}

func TestSerialGPSSourceReadsValidFix(t *testing.T) {
	line := "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W\n"
	port := &fakePort{Reader: bytes.NewBufferString(line)}
	factory := &fakeFactory{port: port}

	src := newSerialGPSSourceWithFactory("/dev/ttyUSB0", 9600, factory)
	if err := src.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer src.Disconnect()

	pos, err := src.ReadPosition()
	if err != nil {
		t.Fatalf("ReadPosition() error = %v", err)
	}
	if pos.Heading != 84.4 {
		t.Errorf("Heading = %v, want 84.4", pos.Heading)
	}
	if len(factory.opened) != 1 || factory.opened[0] != "/dev/ttyUSB0" {
		t.Errorf("opened = %v, want one open of /dev/ttyUSB0", factory.opened)
	}
}

func TestSerialGPSSourceSkipsNonRMCLines(t *testing.T) {
	lines := "$GPGGA,ignored\n$GPRMC,123519,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W\n"
	port := &fakePort{Reader: bytes.NewBufferString(lines)}
	src := newSerialGPSSourceWithFactory("/dev/ttyUSB0", 9600, &fakeFactory{port: port})
	if err := src.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if _, err := src.ReadPosition(); !errors.Is(err, ErrNoFix) {
		t.Errorf("ReadPosition() (non-RMC line) error = %v, want ErrNoFix", err)
	}
	if _, err := src.ReadPosition(); !errors.Is(err, ErrNoFix) {
		t.Errorf("ReadPosition() (invalid fix) error = %v, want ErrNoFix", err)
	}
}

func TestSerialGPSSourceReadBeforeConnectErrors(t *testing.T) {
	src := NewSerialGPSSource("/dev/ttyUSB0", 9600)
	if _, err := src.ReadPosition(); err == nil {
		t.Error("expected an error reading before Connect")
	}
}

func TestSerialGPSSourceConnectErrorPropagates(t *testing.T) {
	wantErr := errors.New("port busy")
	src := newSerialGPSSourceWithFactory("/dev/ttyUSB0", 9600, &fakeFactory{err: wantErr})
	if err := src.Connect(); err == nil {
		t.Error("expected Connect to propagate the factory error")
	}
}

func TestSerialGPSSourceDisconnectClosesPort(t *testing.T) {
	port := &fakePort{Reader: bytes.NewBufferString("")}
	src := newSerialGPSSourceWithFactory("/dev/ttyUSB0", 9600, &fakeFactory{port: port})
	if err := src.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := src.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if !port.closed {
		t.Error("expected Disconnect to close the underlying port")
	}
}

func TestNewSerialGPSSourceDefaultsBaudRate(t *testing.T) {
	src := NewSerialGPSSource("/dev/ttyUSB0", 0)
	if src.baudRate != DefaultBaudRate {
		t.Errorf("baudRate = %d, want default %d", src.baudRate, DefaultBaudRate)
	}
}
