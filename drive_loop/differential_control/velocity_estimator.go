package control

import (
	"fmt"
	"math"
)

// TickQuad holds cumulative encoder counts per wheel as reported by the
// encoder board. Counters wrap at 32 bits.
type TickQuad struct {
	FL int32
	BL int32
	FR int32
	BR int32
}

// WheelReading is one sensor sample: rotation since the previous sample (rad)
// and filtered angular velocity (rad/s)
type WheelReading struct {
	Delta    WheelQuad
	Velocity WheelQuad
}

// VelocityEstimator turns successive encoder counts into angle deltas and
// low-pass filtered wheel velocities
type VelocityEstimator struct {
	radPerTick float64
	alpha      float64

	prev   TickQuad
	primed bool
	filt   WheelQuad
}

// NewVelocityEstimator creates an estimator. alpha is the weight of the newest
// raw velocity in the first-order filter.
func NewVelocityEstimator(ticksPerRev int, alpha float64) (*VelocityEstimator, error) {
	if ticksPerRev <= 0 {
		return nil, fmt.Errorf("%w: ticks per rev must be positive, got %d", ErrInvalidConfig, ticksPerRev)
	}
	if !(alpha > 0 && alpha <= 1) {
		return nil, fmt.Errorf("%w: filter alpha must be in (0, 1], got %v", ErrInvalidConfig, alpha)
	}
	return &VelocityEstimator{
		radPerTick: 2 * math.Pi / float64(ticksPerRev),
		alpha:      alpha,
	}, nil
}

// Update consumes the latest counts. The first call only latches the counts
// and reports zero motion.
func (e *VelocityEstimator) Update(ticks TickQuad, dt float64) WheelReading {
	if !e.primed {
		e.prev = ticks
		e.primed = true
		return WheelReading{}
	}

	delta := WheelQuad{
		FL: float64(ticks.FL-e.prev.FL) * e.radPerTick,
		BL: float64(ticks.BL-e.prev.BL) * e.radPerTick,
		FR: float64(ticks.FR-e.prev.FR) * e.radPerTick,
		BR: float64(ticks.BR-e.prev.BR) * e.radPerTick,
	}
	e.prev = ticks

	if dt > 0 {
		e.filt = WheelQuad{
			FL: e.filter(e.filt.FL, delta.FL/dt),
			BL: e.filter(e.filt.BL, delta.BL/dt),
			FR: e.filter(e.filt.FR, delta.FR/dt),
			BR: e.filter(e.filt.BR, delta.BR/dt),
		}
	}

	return WheelReading{Delta: delta, Velocity: e.filt}
}

func (e *VelocityEstimator) filter(prev, raw float64) float64 {
	return e.alpha*raw + (1-e.alpha)*prev
}

// RadiansPerTick returns the encoder resolution
func (e *VelocityEstimator) RadiansPerTick() float64 { return e.radPerTick }
