package control

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot(t *testing.T) {
	pose := Pose{X: 1, Y: 2, Theta: 3}
	path := PathState{Distance: 4}
	vel := WheelQuad{FL: 9, BL: 5, FR: 9, BR: 6}

	rec := Snapshot(pose, path, vel, 1500*time.Millisecond)
	assert.Equal(t, OdometryRecord{
		Timestamp:     1500 * time.Millisecond,
		X:             1,
		Y:             2,
		Theta:         3,
		PathDistance:  4,
		LeftVelocity:  5,
		RightVelocity: 6,
	}, rec)

	// inputs are copied
	pose.X = 100
	assert.Equal(t, 1.0, rec.X)
}

func TestFormatTelemetryLine(t *testing.T) {
	rec := OdometryRecord{
		Timestamp:    1234567 * time.Microsecond,
		X:            1.23456,
		Y:            -0.5,
		Theta:        math.Pi,
		PathDistance: 2,
	}
	assert.Equal(t, "1.23\t1.2346\t-0.5000\t3.1416\t2.0000\t270.46\n", FormatTelemetryLine(rec, 270.456))
	assert.Equal(t, 1.234, rec.Seconds())
}

func TestVelocityEstimator(t *testing.T) {
	t.Run("first sample latches", func(t *testing.T) {
		e, err := NewVelocityEstimator(1440, 0.5)
		require.NoError(t, err)
		assert.Equal(t, WheelReading{}, e.Update(TickQuad{FL: 100, BL: 200}, 0.005))
	})

	t.Run("deltas and filtering", func(t *testing.T) {
		e, err := NewVelocityEstimator(1440, 0.5)
		require.NoError(t, err)
		e.Update(TickQuad{}, 1)

		r := e.Update(TickQuad{BL: 1440, BR: -720}, 1)
		assert.InDelta(t, 2*math.Pi, r.Delta.BL, 1e-12)
		assert.InDelta(t, -math.Pi, r.Delta.BR, 1e-12)
		assert.InDelta(t, math.Pi, r.Velocity.BL, 1e-12)
		assert.InDelta(t, -math.Pi/2, r.Velocity.BR, 1e-12)

		r = e.Update(TickQuad{BL: 2880, BR: -720}, 1)
		assert.InDelta(t, 1.5*math.Pi, r.Velocity.BL, 1e-12)
		assert.InDelta(t, -math.Pi/4, r.Velocity.BR, 1e-12)
	})

	t.Run("counter wrap", func(t *testing.T) {
		e, err := NewVelocityEstimator(4, 1)
		require.NoError(t, err)
		e.Update(TickQuad{FR: math.MaxInt32}, 1)
		r := e.Update(TickQuad{FR: math.MinInt32}, 1)
		assert.InDelta(t, math.Pi/2, r.Delta.FR, 1e-12)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := NewVelocityEstimator(0, 0.5)
		assert.ErrorIs(t, err, ErrInvalidConfig)
		_, err = NewVelocityEstimator(1440, 0)
		assert.ErrorIs(t, err, ErrInvalidConfig)
		_, err = NewVelocityEstimator(1440, 1.5)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}
