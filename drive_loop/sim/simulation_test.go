package sim

import (
	"bytes"
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	control "diffdrive-core/drive_loop/differential_control"
	"diffdrive-core/utils"
)

func newTestPlant(t *testing.T) *Plant {
	t.Helper()
	p, err := NewPlant(DefaultPlantConfig(control.DefaultRobotConfig()))
	require.NoError(t, err)
	return p
}

func TestPlant_StraightLine(t *testing.T) {
	p := newTestPlant(t)
	ctx := context.Background()
	require.NoError(t, p.DriveVolts(ctx, control.WheelQuad{BL: 1, BR: 1}))

	for i := 0; i < 2000; i++ {
		p.Advance(time.Millisecond)
	}

	w := p.WheelSpeeds()
	assert.InDelta(t, 4.0, w.BL, 1e-3)
	assert.InDelta(t, 4.0, w.BR, 1e-3)
	assert.Equal(t, w.BL, w.FL, "front wheels roll with the rear")
	assert.InDelta(t, 0.0, p.Theta(), 1e-12)
	assert.InDelta(t, 0.0, p.Position().Y, 1e-12)
	assert.InDelta(t, p.PathLength(), p.Position().X, 1e-9)

	h, err := p.HeadingDegrees(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, h, 1e-9)
}

func TestPlant_SpinWrapsHeading(t *testing.T) {
	p := newTestPlant(t)
	ctx := context.Background()
	require.NoError(t, p.DriveVolts(ctx, control.WheelQuad{BL: -2, BR: 2}))

	for i := 0; i < 10000; i++ {
		p.Advance(time.Millisecond)
		h, err := p.HeadingDegrees(ctx)
		require.NoError(t, err)
		require.GreaterOrEqual(t, h, 0.0)
		require.Less(t, h, 360.0)
	}
	assert.Greater(t, p.Theta(), 2*math.Pi, "counter-clockwise spin")
	assert.InDelta(t, 0.0, p.Position().Norm(), 1e-9, "spins in place")
}

func TestPlant_SaturatesVoltage(t *testing.T) {
	p := newTestPlant(t)
	require.NoError(t, p.DriveVolts(context.Background(), control.WheelQuad{FL: 3, BL: 100, FR: -1, BR: -100}))
	assert.Equal(t, control.WheelQuad{FL: 3, BL: 7.2, FR: -1, BR: -7.2}, p.Voltages())
}

func TestPlant_Ticks(t *testing.T) {
	p := newTestPlant(t)
	// a fraction of a tick past each boundary
	const eps = 1e-3
	p.angle = control.WheelQuad{FL: 2*math.Pi + eps, BL: math.Pi + eps, FR: -math.Pi/2 + eps, BR: eps}
	assert.Equal(t, control.TickQuad{FL: 1440, BL: 720, FR: -360, BR: 0}, p.Ticks())
}

func TestNewPlant_Validation(t *testing.T) {
	base := DefaultPlantConfig(control.DefaultRobotConfig())
	for name, mutate := range map[string]func(*PlantConfig){
		"radius":  func(c *PlantConfig) { c.WheelRadiusM = 0 },
		"track":   func(c *PlantConfig) { c.TrackHalfWidthM = -1 },
		"ticks":   func(c *PlantConfig) { c.TicksPerRev = 0 },
		"tau":     func(c *PlantConfig) { c.Motor.TimeConstant = 0 },
		"voltage": func(c *PlantConfig) { c.MaxVoltage = math.NaN() },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			_, err := NewPlant(cfg)
			assert.Error(t, err)
		})
	}
}

func TestEncoders_MatchPlantSpeed(t *testing.T) {
	p := newTestPlant(t)
	enc, err := NewEncoders(p, 1)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, p.DriveVolts(ctx, control.WheelQuad{BL: 1, BR: 1}))

	for i := 0; i < 1000; i++ {
		p.Advance(time.Millisecond)
	}
	_, err = enc.Sample(ctx, 0.1)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		p.Advance(time.Millisecond)
	}
	r, err := enc.Sample(ctx, 0.1)
	require.NoError(t, err)

	// one tick is 2*pi/1440 rad; over 0.1 s that is ~0.044 rad/s
	assert.InDelta(t, 4.0, r.Velocity.BL, 0.05)
	assert.InDelta(t, 0.4, r.Delta.BR, 0.005)
}

type countingReporter struct {
	n        int
	headings []float64
}

func (c *countingReporter) Report(_ context.Context, _ control.OdometryRecord, heading float64) error {
	c.n++
	c.headings = append(c.headings, heading)
	return nil
}

func TestSimulation_RunsDefaultPlanToStop(t *testing.T) {
	var logBuf bytes.Buffer
	log := utils.NewWriterLogger(&logBuf, utils.INFO)

	robot := control.DefaultRobotConfig()
	loopCfg := control.DefaultLoopConfig()
	rep := &countingReporter{}

	s, err := New(robot, loopCfg, DefaultPlantConfig(robot), time.Millisecond, nil, []control.Reporter{rep}, log)
	require.NoError(t, err)

	res, err := s.Run(context.Background(), 120*time.Second, 3*time.Second)
	require.NoError(t, err)

	assert.True(t, res.Terminal)
	assert.Less(t, res.Elapsed, 120*time.Second, "stops once settled")
	assert.Greater(t, res.Estimated.PathDistance, 20.0)
	assert.Less(t, res.Estimated.PathDistance, 22.0)
	assert.InDelta(t, res.TruePathM, res.Estimated.PathDistance, 0.1, "encoder odometry tracks the true path")

	stats := s.Loop.Stats()
	assert.Equal(t, control.MotionCommand{}, stats.LastCommand)
	assert.InDelta(t, 0.0, s.Plant.WheelSpeeds().BL, 0.5)
	assert.InDelta(t, 0.0, s.Plant.WheelSpeeds().BR, 0.5)
	assert.Equal(t, control.WheelQuad{}, s.Plant.Voltages(), "motors stopped on exit")

	// the control gate fires strictly after each 5 ms period
	assert.InDelta(t, float64(res.Elapsed/(6*time.Millisecond)), float64(res.ControlCycles), float64(res.ControlCycles)*0.01)
	assert.Equal(t, int(res.Reports), rep.n)
	assert.Contains(t, logBuf.String(), "Segment 0 -> 1 (left turn)")
	assert.Contains(t, logBuf.String(), "Plan terminal")
}

func TestSimulation_Cancelled(t *testing.T) {
	robot := control.DefaultRobotConfig()
	s, err := New(robot, control.DefaultLoopConfig(), DefaultPlantConfig(robot), time.Millisecond, nil, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Run(ctx, time.Second, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_RejectsBadStep(t *testing.T) {
	robot := control.DefaultRobotConfig()
	_, err := New(robot, control.DefaultLoopConfig(), DefaultPlantConfig(robot), 0, nil, nil, nil)
	assert.Error(t, err)
}
