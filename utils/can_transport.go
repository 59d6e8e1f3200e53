package utils

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

type CANWriter interface {
	WriteFrame(ctx context.Context, frame can.Frame) error
	Close() error
}

type SocketCANWriter struct {
	mu   sync.Mutex
	conn net.Conn
	tx   *socketcan.Transmitter
}

// NewSocketCANWriter dials a SocketCAN interface such as can0 or vcan0
func NewSocketCANWriter(ctx context.Context, iface string) (*SocketCANWriter, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial %s: %w", iface, err)
	}
	return &SocketCANWriter{
		conn: conn,
		tx:   socketcan.NewTransmitter(conn),
	}, nil
}

// WriteFrame is safe for concurrent use; the control loop and the
// odometry sink share one writer.
func (w *SocketCANWriter) WriteFrame(ctx context.Context, frame can.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tx.TransmitFrame(ctx, frame)
}

func (w *SocketCANWriter) Close() error {
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

// FrameEncoder sends named frames through a CANWriter using a CANMap
type FrameEncoder struct {
	cmap *CANMap
	w    CANWriter
}

func NewFrameEncoder(cmap *CANMap, w CANWriter) *FrameEncoder {
	return &FrameEncoder{cmap: cmap, w: w}
}

// Send encodes values into frameName and transmits it
func (e *FrameEncoder) Send(ctx context.Context, frameName string, values map[string]float64) error {
	frame, err := e.cmap.EncodeCANFrame(frameName, values)
	if err != nil {
		return fmt.Errorf("encode %s: %w", frameName, err)
	}
	if err := e.w.WriteFrame(ctx, frame); err != nil {
		return fmt.Errorf("transmit %s: %w", frameName, err)
	}
	return nil
}
