package utils

import (
	"fmt"
	"sync"

	"go.bug.st/serial"
)

// SerialLink is a write-mostly text link over a serial port. Writes are
// serialised so whole lines never interleave.
type SerialLink struct {
	mu   sync.Mutex
	port serial.Port
	name string
}

// OpenSerialLink opens portName at baud, 8N1
func OpenSerialLink(portName string, baud int) (*SerialLink, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", portName, err)
	}
	return NewSerialLink(portName, port), nil
}

// NewSerialLink wraps an already open port
func NewSerialLink(name string, port serial.Port) *SerialLink {
	return &SerialLink{port: port, name: name}
}

func (l *SerialLink) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, err := l.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("write serial %s: %w", l.name, err)
	}
	return n, nil
}

// Close drains pending output, then closes the port
func (l *SerialLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.port.Drain(); err != nil {
		_ = l.port.Close()
		return fmt.Errorf("drain serial %s: %w", l.name, err)
	}
	return l.port.Close()
}

// Name is the device path the link was opened on
func (l *SerialLink) Name() string { return l.name }
