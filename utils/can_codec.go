package utils

import (
	"fmt"
	"math"

	"go.einride.tech/can"
)

// EncodeFrame packs physical signal values into a payload. Missing signals
// take their default; values are clamped to the signal's [min, max] when the
// map declares a range.
func (m *CANMap) EncodeFrame(frameName string, values map[string]float64) ([]byte, uint32, error) {
	fd, err := m.FrameByName(frameName)
	if err != nil {
		return nil, 0, err
	}
	if fd.DLC <= 0 || fd.DLC > 8 {
		return nil, 0, fmt.Errorf("frame %s has invalid DLC %d", fd.Name, fd.DLC)
	}
	for name := range values {
		if _, ok := fd.Signal(name); !ok {
			return nil, 0, fmt.Errorf("frame %s has no signal %q", fd.Name, name)
		}
	}

	var payload uint64
	for _, s := range fd.Signals {
		v, ok := values[s.Name]
		if !ok {
			v = s.Default
		}
		if math.IsNaN(v) {
			return nil, 0, fmt.Errorf("frame %s signal %s: value is NaN", fd.Name, s.Name)
		}
		if s.Max > s.Min {
			v = clamp(v, s.Min, s.Max)
		}

		raw := int64(math.Round((v - s.Offset) / s.Factor))
		raw = clampRaw(raw, s.BitLength, s.Signed)
		payload = setBits(payload, s.StartBit, s.BitLength, rawToUnsigned(raw, s.BitLength))
	}

	out := make([]byte, fd.DLC)
	for i := 0; i < fd.DLC; i++ {
		out[i] = byte(payload >> (8 * i))
	}
	return out, fd.ID, nil
}

// EncodeCANFrame produces an einride can.Frame ready to transmit
func (m *CANMap) EncodeCANFrame(frameName string, values map[string]float64) (can.Frame, error) {
	payload, id, err := m.EncodeFrame(frameName, values)
	if err != nil {
		return can.Frame{}, err
	}

	f := can.Frame{ID: id, Length: uint8(len(payload))}
	copy(f.Data[:], payload)
	return f, nil
}

// DecodeFrame unpacks a payload into physical signal values
func (m *CANMap) DecodeFrame(frameID uint32, data []byte) (map[string]float64, error) {
	fd, err := m.FrameByID(frameID)
	if err != nil {
		return nil, err
	}
	if len(data) < fd.DLC {
		return nil, fmt.Errorf("frame 0x%X expects DLC %d, got %d", frameID, fd.DLC, len(data))
	}

	var payload uint64
	for i := 0; i < fd.DLC && i < 8; i++ {
		payload |= uint64(data[i]) << (8 * i)
	}

	out := make(map[string]float64, len(fd.Signals))
	for _, s := range fd.Signals {
		u := getBits(payload, s.StartBit, s.BitLength)
		raw := unsignedToRawInt64(u, s.BitLength, s.Signed)
		out[s.Name] = float64(raw)*s.Factor + s.Offset
	}
	return out, nil
}

// DecodeCANFrame decodes a received einride frame
func (m *CANMap) DecodeCANFrame(f can.Frame) (*FrameDef, map[string]float64, error) {
	if f.IsRemote {
		return nil, nil, fmt.Errorf("frame 0x%X is a remote frame", f.ID)
	}
	fd, err := m.FrameByID(f.ID)
	if err != nil {
		return nil, nil, err
	}
	values, err := m.DecodeFrame(f.ID, f.Data[:f.Length])
	if err != nil {
		return nil, nil, err
	}
	return fd, values, nil
}
