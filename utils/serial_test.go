package utils

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.bug.st/serial"
)

// MockSerialPort is a mock implementation of serial.Port for testing
type MockSerialPort struct {
	mu          sync.Mutex
	writtenData []byte
	writeError  error
	drainError  error
	closed      bool
	drained     bool
}

func (m *MockSerialPort) Break(time.Duration) error                            { return nil }
func (m *MockSerialPort) GetModemStatusBits() (*serial.ModemStatusBits, error) { return nil, nil }
func (m *MockSerialPort) ResetInputBuffer() error                              { return nil }
func (m *MockSerialPort) ResetOutputBuffer() error                             { return nil }
func (m *MockSerialPort) SetDTR(dtr bool) error                                { return nil }
func (m *MockSerialPort) SetMode(mode *serial.Mode) error                      { return nil }
func (m *MockSerialPort) SetReadTimeout(t time.Duration) error                 { return nil }
func (m *MockSerialPort) SetRTS(rts bool) error                                { return nil }
func (m *MockSerialPort) Read(p []byte) (int, error)                           { return 0, nil }

func (m *MockSerialPort) Drain() error {
	m.drained = true
	return m.drainError
}

func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeError != nil {
		return 0, m.writeError
	}
	m.writtenData = append(m.writtenData, p...)
	return len(p), nil
}

func (m *MockSerialPort) Close() error {
	m.closed = true
	return nil
}

func TestSerialLink_Write(t *testing.T) {
	port := &MockSerialPort{}
	link := NewSerialLink("/dev/ttyTEST", port)

	n, err := fmt.Fprintf(link, "%.2f\t%.4f\n", 1.0, 2.0)
	assert.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, "1.00\t2.0000\n", string(port.writtenData))
	assert.Equal(t, "/dev/ttyTEST", link.Name())
}

func TestSerialLink_ConcurrentLinesStayWhole(t *testing.T) {
	port := &MockSerialPort{}
	link := NewSerialLink("mock", port)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = link.Write([]byte("abcdefgh\n"))
			}
		}()
	}
	wg.Wait()

	assert.Len(t, port.writtenData, 8*50*9)
	for i := 0; i < len(port.writtenData); i += 9 {
		assert.Equal(t, "abcdefgh\n", string(port.writtenData[i:i+9]))
	}
}

func TestSerialLink_WriteError(t *testing.T) {
	port := &MockSerialPort{writeError: errors.New("port unplugged")}
	link := NewSerialLink("/dev/ttyACM0", port)

	_, err := link.Write([]byte("x"))
	assert.ErrorContains(t, err, "/dev/ttyACM0")
	assert.ErrorIs(t, err, port.writeError)
}

func TestSerialLink_Close(t *testing.T) {
	port := &MockSerialPort{}
	assert.NoError(t, NewSerialLink("mock", port).Close())
	assert.True(t, port.drained)
	assert.True(t, port.closed)

	port = &MockSerialPort{drainError: errors.New("timeout")}
	assert.ErrorContains(t, NewSerialLink("mock", port).Close(), "drain")
	assert.True(t, port.closed, "closed even when drain fails")
}
