package control

import "fmt"

// Mixer converts a body MotionCommand into wheel angular velocity setpoints
type Mixer struct {
	r float64
	b float64
}

// NewMixer creates a mixer for the given wheel radius and track half-width (m)
func NewMixer(wheelRadius, trackHalfWidth float64) (*Mixer, error) {
	if !(wheelRadius > 0) || !(trackHalfWidth > 0) {
		return nil, fmt.Errorf("%w: wheel radius %v and track half-width %v must be positive",
			ErrInvalidConfig, wheelRadius, trackHalfWidth)
	}
	return &Mixer{r: wheelRadius, b: trackHalfWidth}, nil
}

// Mix returns rad/s setpoints; front and rear share their side's value.
func (m *Mixer) Mix(linearVelocity, curvature float64) WheelQuad {
	left := linearVelocity * (1.0 - m.b*curvature) / m.r
	right := linearVelocity * (1.0 + m.b*curvature) / m.r
	return WheelQuad{FL: left, BL: left, FR: right, BR: right}
}

// MixCommand is Mix for a MotionCommand
func (m *Mixer) MixCommand(cmd MotionCommand) WheelQuad {
	return m.Mix(cmd.LinearVelocity, cmd.Curvature)
}
