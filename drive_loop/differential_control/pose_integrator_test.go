package control

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIntegrator(t *testing.T, mode IntegrationMode) *PoseIntegrator {
	t.Helper()
	pi, err := NewPoseIntegrator(0.06, 0.2, mode)
	require.NoError(t, err)
	return pi
}

func TestPoseIntegrator_StraightLine(t *testing.T) {
	pi := newTestIntegrator(t, IntegrationFirstOrder)

	pose, path := pi.Update(1, 1)
	assert.Zero(t, pose.Theta)
	assert.InDelta(t, 0.06, pose.X, 1e-12)
	assert.Zero(t, pose.Y)
	assert.InDelta(t, 0.06, path.Distance, 1e-12)

	pose, path = pi.Update(2, 2)
	assert.InDelta(t, 0.18, pose.X, 1e-12)
	assert.InDelta(t, 0.18, path.Distance, 1e-12)
}

func TestPoseIntegrator_EqualDeltasKeepHeading(t *testing.T) {
	for _, mode := range []IntegrationMode{IntegrationFirstOrder, IntegrationMidpoint} {
		t.Run(string(mode), func(t *testing.T) {
			pi := newTestIntegrator(t, mode)
			before := pi.Pose()

			pose, _ := pi.Update(0.7, 0.7)
			dx, dy := pose.X-before.X, pose.Y-before.Y
			assert.Equal(t, before.Theta, pose.Theta)
			assert.InDelta(t, math.Tan(before.Theta), dy/dx, 1e-12)
		})
	}
}

func TestPoseIntegrator_FirstOrderUsesCycleHeadingChange(t *testing.T) {
	pi := newTestIntegrator(t, IntegrationFirstOrder)

	// spin in place: 0.06/(2*0.2)*(1-(-1)) = 0.3 rad, no translation
	pose, path := pi.Update(-1, 1)
	assert.InDelta(t, 0.3, pose.Theta, 1e-12)
	assert.InDelta(t, 0, pose.X, 1e-12)
	assert.InDelta(t, 0, pose.Y, 1e-12)
	assert.InDelta(t, 0, path.Distance, 1e-12)

	// equal deltas after turning: projected on dtheta = 0, not on theta
	pose, _ = pi.Update(1, 1)
	assert.InDelta(t, 0.06, pose.X, 1e-12)
	assert.InDelta(t, 0, pose.Y, 1e-12)

	// arc: dtheta = 0.15*(3-1) = 0.3
	pi.Reset()
	pose, path = pi.Update(1, 3)
	assert.InDelta(t, 0.03*4*math.Cos(0.3), pose.X, 1e-12)
	assert.InDelta(t, 0.03*4*math.Sin(0.3), pose.Y, 1e-12)
	assert.InDelta(t, 0.12, path.Distance, 1e-12)
}

func TestPoseIntegrator_MidpointFollowsAccumulatedHeading(t *testing.T) {
	pi := newTestIntegrator(t, IntegrationMidpoint)

	pi.Update(-1, 1) // theta = 0.3
	before := pi.Pose()
	pose, path := pi.Update(1, 1)

	assert.InDelta(t, 0.06*math.Cos(0.3), pose.X-before.X, 1e-12)
	assert.InDelta(t, 0.06*math.Sin(0.3), pose.Y-before.Y, 1e-12)
	assert.InDelta(t, math.Tan(before.Theta), (pose.Y-before.Y)/(pose.X-before.X), 1e-9)
	assert.InDelta(t, 0.06, path.Distance, 1e-12)
}

func TestPoseIntegrator_MidpointTracksCircle(t *testing.T) {
	// constant curvature should close a circle under midpoint integration
	pi := newTestIntegrator(t, IntegrationMidpoint)
	dL, dR := 0.1, 0.3
	dtheta := 0.06 / 0.4 * (dR - dL)
	steps := int(math.Round(2 * math.Pi / dtheta))
	for i := 0; i < steps; i++ {
		pi.Update(dL, dR)
	}
	pose := pi.Pose()
	assert.InDelta(t, 0, pose.X, 0.01)
	assert.InDelta(t, 0, pose.Y, 0.01)
}

func TestPoseIntegrator_PathDistanceMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, mode := range []IntegrationMode{IntegrationFirstOrder, IntegrationMidpoint} {
		pi := newTestIntegrator(t, mode)
		var sum float64
		prev := pi.PathState().Distance
		for i := 0; i < 10000; i++ {
			before := pi.Pose()
			pose, path := pi.Update(rng.NormFloat64(), rng.NormFloat64())
			require.GreaterOrEqual(t, path.Distance, prev)
			sum += math.Hypot(pose.X-before.X, pose.Y-before.Y)
			prev = path.Distance
		}
		assert.InDelta(t, sum, prev, 1e-6)
	}
}

func TestPoseIntegrator_ThetaIsNotWrapped(t *testing.T) {
	pi := newTestIntegrator(t, IntegrationFirstOrder)
	for i := 0; i < 100; i++ {
		pi.Update(-1, 1)
	}
	assert.InDelta(t, 30.0, pi.Pose().Theta, 1e-9)
}

func TestNewPoseIntegrator_Invalid(t *testing.T) {
	_, err := NewPoseIntegrator(0, 0.2, IntegrationFirstOrder)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewPoseIntegrator(0.06, -1, IntegrationFirstOrder)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewPoseIntegrator(0.06, 0.2, "runge_kutta")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	pi, err := NewPoseIntegrator(0.06, 0.2, "")
	require.NoError(t, err)
	assert.Equal(t, IntegrationFirstOrder, pi.Mode())
}
