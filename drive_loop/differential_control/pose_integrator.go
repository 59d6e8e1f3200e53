package control

import (
	"fmt"
	"math"
)

// Pose is the planar position (m) and accumulated heading (rad) of the robot.
// Theta is never wrapped.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// PathState tracks the cumulative distance travelled along the path (m)
type PathState struct {
	Distance float64 `json:"path_distance"`
}

// IntegrationMode selects the heading used to project each wheel step.
type IntegrationMode string

const (
	// IntegrationFirstOrder projects both wheel terms on the per-cycle heading
	// change dtheta. It is the default.
	IntegrationFirstOrder IntegrationMode = "first_order"
	// IntegrationMidpoint projects on theta + dtheta/2, the heading halfway
	// through the cycle.
	IntegrationMidpoint IntegrationMode = "midpoint"
)

// ParseIntegrationMode maps a config string to an IntegrationMode. The empty
// string selects IntegrationFirstOrder.
func ParseIntegrationMode(s string) (IntegrationMode, error) {
	switch IntegrationMode(s) {
	case "", IntegrationFirstOrder:
		return IntegrationFirstOrder, nil
	case IntegrationMidpoint:
		return IntegrationMidpoint, nil
	default:
		return "", fmt.Errorf("%w: unknown integration mode %q", ErrInvalidConfig, s)
	}
}

// PoseIntegrator dead-reckons the pose from rear wheel angle deltas
type PoseIntegrator struct {
	r    float64
	b    float64
	mode IntegrationMode

	pose Pose
	path PathState
}

// NewPoseIntegrator creates an integrator at the origin
func NewPoseIntegrator(wheelRadius, trackHalfWidth float64, mode IntegrationMode) (*PoseIntegrator, error) {
	if !(wheelRadius > 0) || !(trackHalfWidth > 0) {
		return nil, fmt.Errorf("%w: wheel radius %v and track half-width %v must be positive",
			ErrInvalidConfig, wheelRadius, trackHalfWidth)
	}
	mode, err := ParseIntegrationMode(string(mode))
	if err != nil {
		return nil, err
	}
	return &PoseIntegrator{r: wheelRadius, b: trackHalfWidth, mode: mode}, nil
}

// Update folds one cycle of left/right wheel rotation (rad) into the pose and
// path distance and returns the new values.
func (pi *PoseIntegrator) Update(dPhiLeft, dPhiRight float64) (Pose, PathState) {
	dtheta := pi.r / (2.0 * pi.b) * (dPhiRight - dPhiLeft)

	heading := dtheta
	if pi.mode == IntegrationMidpoint {
		heading = pi.pose.Theta + dtheta/2
	}
	pi.pose.Theta += dtheta

	dx := pi.r / 2 * (dPhiRight*math.Cos(heading) + dPhiLeft*math.Cos(heading))
	dy := pi.r / 2 * (dPhiRight*math.Sin(heading) + dPhiLeft*math.Sin(heading))

	pi.pose.X += dx
	pi.pose.Y += dy
	pi.path.Distance += math.Sqrt(dx*dx + dy*dy)

	return pi.pose, pi.path
}

// Pose returns the current pose
func (pi *PoseIntegrator) Pose() Pose { return pi.pose }

// PathState returns the current path distance
func (pi *PoseIntegrator) PathState() PathState { return pi.path }

// Mode returns the configured integration mode
func (pi *PoseIntegrator) Mode() IntegrationMode { return pi.mode }

// Reset returns the integrator to the origin with zero path distance
func (pi *PoseIntegrator) Reset() {
	pi.pose = Pose{}
	pi.path = PathState{}
}
