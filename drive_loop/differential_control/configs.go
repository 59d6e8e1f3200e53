package control

import (
	"fmt"
	"math"
	"time"
)

// PIDConfig holds per-wheel velocity controller parameters
type PIDConfig struct {
	Kp         float64 `json:"kp" mapstructure:"kp"`
	Ki         float64 `json:"ki" mapstructure:"ki"`
	Kd         float64 `json:"kd" mapstructure:"kd"`
	MaxVoltage float64 `json:"max_voltage" mapstructure:"max_voltage"` // actuator limit (V)
}

// RobotConfig holds drive geometry, encoder and controller parameters
type RobotConfig struct {
	WheelRadiusM        float64         `json:"wheel_radius_m" mapstructure:"wheel_radius_m"`
	TrackHalfWidthM     float64         `json:"track_half_width_m" mapstructure:"track_half_width_m"` // wheel to center distance
	TicksPerRev         int             `json:"ticks_per_rev" mapstructure:"ticks_per_rev"`
	VelocityFilterAlpha float64         `json:"velocity_filter_alpha" mapstructure:"velocity_filter_alpha"`
	Integration         IntegrationMode `json:"integration" mapstructure:"integration"`
	PID                 PIDConfig       `json:"pid" mapstructure:"pid"`
	Segments            []SegmentConfig `json:"segments" mapstructure:"segments"`
}

// LoopConfig holds the two polling gate periods
type LoopConfig struct {
	ControlPeriod time.Duration `json:"control_period" mapstructure:"control_period"`
	ReportPeriod  time.Duration `json:"report_period" mapstructure:"report_period"`
	PollInterval  time.Duration `json:"poll_interval" mapstructure:"poll_interval"` // Run sleeps this long between idle polls
}

// CurvatureConfig describes how a segment picks its curvature.
// Mode is "fixed" (Value) or "heading" (dead-band correction).
type CurvatureConfig struct {
	Mode            string  `json:"mode" mapstructure:"mode"`
	Value           float64 `json:"value" mapstructure:"value"`
	AboveDeg        float64 `json:"above_deg" mapstructure:"above_deg"`
	BelowDeg        float64 `json:"below_deg" mapstructure:"below_deg"`
	AboveCurvature  float64 `json:"above_curvature" mapstructure:"above_curvature"`
	BelowCurvature  float64 `json:"below_curvature" mapstructure:"below_curvature"`
	InsideCurvature float64 `json:"inside_curvature" mapstructure:"inside_curvature"`
}

// SegmentConfig is one row of the path plan. A nil UpperBoundM marks the
// terminal segment.
type SegmentConfig struct {
	UpperBoundM *float64        `json:"upper_bound_m,omitempty" mapstructure:"upper_bound_m"`
	VelocityMPS float64         `json:"velocity_mps" mapstructure:"velocity_mps"`
	Curvature   CurvatureConfig `json:"curvature" mapstructure:"curvature"`
	Comment     string          `json:"comment,omitempty" mapstructure:"comment"`
}

const (
	CurvatureModeFixed   = "fixed"
	CurvatureModeHeading = "heading"
)

func ptrFloat64(v float64) *float64 { return &v }

// DefaultRobotConfig returns the geometry and tuning of the reference robot.
func DefaultRobotConfig() RobotConfig {
	return RobotConfig{
		WheelRadiusM:        0.06,
		TrackHalfWidthM:     0.2,
		TicksPerRev:         1440,
		VelocityFilterAlpha: 0.3,
		Integration:         IntegrationFirstOrder,
		PID: PIDConfig{
			Kp:         0.5,
			Ki:         5.0,
			Kd:         0.0,
			MaxVoltage: 7.2,
		},
		Segments: DefaultSegmentConfigs(),
	}
}

// DefaultLoopConfig returns the 5ms control / 50ms report cadence.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		ControlPeriod: 5000 * time.Microsecond,
		ReportPeriod:  50 * time.Millisecond,
		PollInterval:  100 * time.Microsecond,
	}
}

// DefaultSegmentConfigs returns the straight, turn, heading-hold, stop plan.
func DefaultSegmentConfigs() []SegmentConfig {
	return []SegmentConfig{
		{
			UpperBoundM: ptrFloat64(1.0),
			VelocityMPS: 0.2,
			Curvature:   CurvatureConfig{Mode: CurvatureModeFixed, Value: 0},
			Comment:     "straight line forward",
		},
		{
			UpperBoundM: ptrFloat64(1.5),
			VelocityMPS: 0.2,
			Curvature:   CurvatureConfig{Mode: CurvatureModeFixed, Value: 4},
			Comment:     "left turn",
		},
		{
			UpperBoundM: ptrFloat64(20.0),
			VelocityMPS: 0.8,
			Curvature: CurvatureConfig{
				Mode:            CurvatureModeHeading,
				AboveDeg:        275,
				BelowDeg:        265,
				AboveCurvature:  2,
				BelowCurvature:  -4,
				InsideCurvature: 0,
			},
			Comment: "hold heading",
		},
		{
			VelocityMPS: 0,
			Curvature:   CurvatureConfig{Mode: CurvatureModeFixed, Value: 0},
			Comment:     "stop",
		},
	}
}

// Validate checks the geometry and tuning for values the core cannot run with.
func (c RobotConfig) Validate() error {
	if !(c.WheelRadiusM > 0) || math.IsInf(c.WheelRadiusM, 0) {
		return fmt.Errorf("%w: wheel_radius_m must be positive, got %v", ErrInvalidConfig, c.WheelRadiusM)
	}
	if !(c.TrackHalfWidthM > 0) || math.IsInf(c.TrackHalfWidthM, 0) {
		return fmt.Errorf("%w: track_half_width_m must be positive, got %v", ErrInvalidConfig, c.TrackHalfWidthM)
	}
	if c.TicksPerRev <= 0 {
		return fmt.Errorf("%w: ticks_per_rev must be positive, got %d", ErrInvalidConfig, c.TicksPerRev)
	}
	if !(c.VelocityFilterAlpha > 0 && c.VelocityFilterAlpha <= 1) {
		return fmt.Errorf("%w: velocity_filter_alpha must be in (0, 1], got %v", ErrInvalidConfig, c.VelocityFilterAlpha)
	}
	if _, err := ParseIntegrationMode(string(c.Integration)); err != nil {
		return err
	}
	return c.PID.Validate()
}

// Validate checks gains and the voltage limit.
func (c PIDConfig) Validate() error {
	if !isFinite(c.Kp, c.Ki, c.Kd) {
		return fmt.Errorf("%w: pid gains must be finite", ErrInvalidConfig)
	}
	if c.Ki < 0 {
		return fmt.Errorf("%w: ki must not be negative, got %v", ErrInvalidConfig, c.Ki)
	}
	if !(c.MaxVoltage > 0) || math.IsInf(c.MaxVoltage, 0) {
		return fmt.Errorf("%w: max_voltage must be positive, got %v", ErrInvalidConfig, c.MaxVoltage)
	}
	return nil
}

// Validate checks both gate periods.
func (c LoopConfig) Validate() error {
	if c.ControlPeriod < time.Microsecond {
		return fmt.Errorf("%w: control_period must be at least 1us, got %s", ErrInvalidConfig, c.ControlPeriod)
	}
	if c.ReportPeriod < time.Millisecond {
		return fmt.Errorf("%w: report_period must be at least 1ms, got %s", ErrInvalidConfig, c.ReportPeriod)
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("%w: poll_interval must not be negative, got %s", ErrInvalidConfig, c.PollInterval)
	}
	return nil
}

// ControlDT returns the control period in seconds, the dt fed to every
// controller step.
func (c LoopConfig) ControlDT() float64 {
	return c.ControlPeriod.Seconds()
}
