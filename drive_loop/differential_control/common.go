package control

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidInput marks a NaN/Inf sensor value rejected at the loop boundary
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidConfig marks a configuration the core cannot run with
	ErrInvalidConfig = errors.New("invalid config")
)

// WheelQuad carries one value per wheel position: front/back, left/right.
// Used for angle deltas, setpoints, measured velocities and voltages.
type WheelQuad struct {
	FL float64 `json:"fl"`
	BL float64 `json:"bl"`
	FR float64 `json:"fr"`
	BR float64 `json:"br"`
}

// Left returns the rear-left value, the one used for odometry
func (q WheelQuad) Left() float64 { return q.BL }

// Right returns the rear-right value
func (q WheelQuad) Right() float64 { return q.BR }

// Sub returns q - o wheel by wheel
func (q WheelQuad) Sub(o WheelQuad) WheelQuad {
	return WheelQuad{FL: q.FL - o.FL, BL: q.BL - o.BL, FR: q.FR - o.FR, BR: q.BR - o.BR}
}

// RearOnly zeroes the front positions. Front motors are never driven.
func (q WheelQuad) RearOnly() WheelQuad {
	return WheelQuad{BL: q.BL, BR: q.BR}
}

// Validate reports a wrapped ErrInvalidInput when any wheel is NaN or Inf
func (q WheelQuad) Validate(name string) error {
	if !isFinite(q.FL, q.BL, q.FR, q.BR) {
		return fmt.Errorf("%w: %s %+v", ErrInvalidInput, name, q)
	}
	return nil
}

// ClampFloat clamps value between min and max
func ClampFloat(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func isFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
