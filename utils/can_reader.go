package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// CANReader defines the interface for reading CAN frames
type CANReader interface {
	ReadFrame(ctx context.Context) (can.Frame, error)
	Close() error
}

// ErrReaderClosed is returned once the receive side has shut down
var ErrReaderClosed = errors.New("can reader closed")

// SocketCANReader implements CANReader with one background receive goroutine
type SocketCANReader struct {
	conn   net.Conn
	recv   *socketcan.Receiver
	frames chan can.Frame
	done   chan struct{}
	once   sync.Once
	err    error // set before frames is closed
}

// NewSocketCANReader creates a new SocketCAN reader
func NewSocketCANReader(ctx context.Context, ifname string) (*SocketCANReader, error) {
	conn, err := socketcan.DialContext(ctx, "can", ifname)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial %s: %w", ifname, err)
	}

	r := &SocketCANReader{
		conn:   conn,
		recv:   socketcan.NewReceiver(conn),
		frames: make(chan can.Frame, 64),
		done:   make(chan struct{}),
	}
	go r.pump()
	return r, nil
}

func (r *SocketCANReader) pump() {
	defer close(r.frames)
	for r.recv.Receive() {
		if r.recv.HasErrorFrame() {
			continue
		}
		select {
		case r.frames <- r.recv.Frame():
		case <-r.done:
			return
		}
	}
	if err := r.recv.Err(); err != nil {
		r.err = err
	}
}

// ReadFrame returns the next received frame
func (r *SocketCANReader) ReadFrame(ctx context.Context) (can.Frame, error) {
	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case f, ok := <-r.frames:
		if !ok {
			if r.err != nil {
				return can.Frame{}, fmt.Errorf("socketcan receive: %w", r.err)
			}
			return can.Frame{}, ErrReaderClosed
		}
		return f, nil
	}
}

// Close closes the CAN socket
func (r *SocketCANReader) Close() error {
	var err error
	r.once.Do(func() {
		close(r.done)
		if r.conn != nil {
			err = r.conn.Close()
		}
	})
	return err
}

// SignalSample is the last decoded value set of one frame
type SignalSample struct {
	Values   map[string]float64
	Received time.Time
}

// FrameCache keeps the latest decoded values per rx frame so a control loop
// can read sensors without blocking on the bus.
type FrameCache struct {
	cmap *CANMap
	log  *Logger
	now  func() time.Time

	mu      sync.RWMutex
	latest  map[uint32]SignalSample
	dropped uint64
}

func NewFrameCache(cmap *CANMap, log *Logger) *FrameCache {
	return &FrameCache{
		cmap:   cmap,
		log:    log,
		now:    time.Now,
		latest: map[uint32]SignalSample{},
	}
}

// Store decodes f and records it. Frames not in the map, or not marked rx,
// are counted and ignored.
func (c *FrameCache) Store(f can.Frame) error {
	fd, values, err := c.cmap.DecodeCANFrame(f)
	if err != nil || fd.Direction != DirectionRX {
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
		return err
	}
	c.mu.Lock()
	c.latest[fd.ID] = SignalSample{Values: values, Received: c.now()}
	c.mu.Unlock()
	return nil
}

// Latest returns the last values received for frameName
func (c *FrameCache) Latest(frameName string) (SignalSample, bool) {
	fd, err := c.cmap.FrameByName(frameName)
	if err != nil {
		return SignalSample{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.latest[fd.ID]
	return s, ok
}

// Dropped counts frames that could not be decoded as rx frames
func (c *FrameCache) Dropped() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dropped
}

// Listen feeds the cache from r until ctx is done or r fails
func (c *FrameCache) Listen(ctx context.Context, r CANReader) error {
	for {
		f, err := r.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrReaderClosed) {
				return nil
			}
			return err
		}
		if err := c.Store(f); err != nil {
			c.log.Trace("RX drop id=0x%X: %v", f.ID, err)
		}
	}
}
