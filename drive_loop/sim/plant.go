// Package sim provides a simulated differential-drive robot and clock so a
// drive loop can run in deterministic simulated time.
package sim

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/r2"

	control "diffdrive-core/drive_loop/differential_control"
)

// MotorModel is a first-order DC motor: the wheel speed settles at
// Gain*volts rad/s with time constant TimeConstant seconds.
type MotorModel struct {
	Gain         float64 `json:"gain" mapstructure:"gain"`
	TimeConstant float64 `json:"time_constant" mapstructure:"time_constant"`
}

// PlantConfig holds the simulated robot parameters
type PlantConfig struct {
	WheelRadiusM      float64    `json:"wheel_radius_m" mapstructure:"wheel_radius_m"`
	TrackHalfWidthM   float64    `json:"track_half_width_m" mapstructure:"track_half_width_m"`
	TicksPerRev       int        `json:"ticks_per_rev" mapstructure:"ticks_per_rev"`
	MaxVoltage        float64    `json:"max_voltage" mapstructure:"max_voltage"`
	InitialHeadingDeg float64    `json:"initial_heading_deg" mapstructure:"initial_heading_deg"`
	Motor             MotorModel `json:"motor" mapstructure:"motor"`
}

// DefaultPlantConfig matches the reference robot. The initial heading puts
// the end of the default left turn inside the 265-275 degree dead-band.
func DefaultPlantConfig(robot control.RobotConfig) PlantConfig {
	return PlantConfig{
		WheelRadiusM:      robot.WheelRadiusM,
		TrackHalfWidthM:   robot.TrackHalfWidthM,
		TicksPerRev:       robot.TicksPerRev,
		MaxVoltage:        robot.PID.MaxVoltage,
		InitialHeadingDeg: 25,
		Motor:             MotorModel{Gain: 4, TimeConstant: 0.1},
	}
}

// Plant integrates motor dynamics and rigid-body kinematics. Front wheels are
// unpowered and roll with the rear wheel on their side.
type Plant struct {
	cfg PlantConfig

	volts control.WheelQuad
	omega control.WheelQuad // rad/s
	angle control.WheelQuad // cumulative rad

	pos   r2.Point
	theta float64
	path  float64
}

// NewPlant creates a plant at rest at the origin
func NewPlant(cfg PlantConfig) (*Plant, error) {
	if !(cfg.WheelRadiusM > 0) || !(cfg.TrackHalfWidthM > 0) {
		return nil, fmt.Errorf("plant geometry must be positive: r=%v b=%v", cfg.WheelRadiusM, cfg.TrackHalfWidthM)
	}
	if cfg.TicksPerRev <= 0 {
		return nil, fmt.Errorf("plant ticks_per_rev must be positive, got %d", cfg.TicksPerRev)
	}
	if !(cfg.Motor.TimeConstant > 0) {
		return nil, fmt.Errorf("motor time constant must be positive, got %v", cfg.Motor.TimeConstant)
	}
	if !(cfg.MaxVoltage > 0) {
		return nil, fmt.Errorf("plant max_voltage must be positive, got %v", cfg.MaxVoltage)
	}
	return &Plant{cfg: cfg}, nil
}

// DriveVolts latches the motor voltages, saturated at the supply limit
func (p *Plant) DriveVolts(_ context.Context, v control.WheelQuad) error {
	lim := p.cfg.MaxVoltage
	p.volts = control.WheelQuad{
		FL: control.ClampFloat(v.FL, -lim, lim),
		BL: control.ClampFloat(v.BL, -lim, lim),
		FR: control.ClampFloat(v.FR, -lim, lim),
		BR: control.ClampFloat(v.BR, -lim, lim),
	}
	return nil
}

// Advance integrates the plant over d
func (p *Plant) Advance(d time.Duration) {
	dt := d.Seconds()
	if dt <= 0 {
		return
	}
	k := dt / p.cfg.Motor.TimeConstant
	if k > 1 {
		k = 1
	}
	p.omega.BL += (p.cfg.Motor.Gain*p.volts.BL - p.omega.BL) * k
	p.omega.BR += (p.cfg.Motor.Gain*p.volts.BR - p.omega.BR) * k
	p.omega.FL = p.omega.BL
	p.omega.FR = p.omega.BR

	p.angle.FL += p.omega.FL * dt
	p.angle.BL += p.omega.BL * dt
	p.angle.FR += p.omega.FR * dt
	p.angle.BR += p.omega.BR * dt

	r, b := p.cfg.WheelRadiusM, p.cfg.TrackHalfWidthM
	v := r * (p.omega.BR + p.omega.BL) / 2
	w := r * (p.omega.BR - p.omega.BL) / (2 * b)

	mid := p.theta + w*dt/2
	step := r2.Point{X: math.Cos(mid), Y: math.Sin(mid)}.Mul(v * dt)
	p.pos = p.pos.Add(step)
	p.path += step.Norm()
	p.theta += w * dt
}

// Ticks returns the cumulative encoder counts
func (p *Plant) Ticks() control.TickQuad {
	perRad := float64(p.cfg.TicksPerRev) / (2 * math.Pi)
	toTicks := func(a float64) int32 { return int32(int64(math.Floor(a * perRad))) }
	return control.TickQuad{
		FL: toTicks(p.angle.FL),
		BL: toTicks(p.angle.BL),
		FR: toTicks(p.angle.FR),
		BR: toTicks(p.angle.BR),
	}
}

// HeadingDegrees returns a compass-style heading in [0, 360): it decreases as
// the robot turns counter-clockwise.
func (p *Plant) HeadingDegrees(context.Context) (float64, error) {
	h := math.Mod(p.cfg.InitialHeadingDeg-p.theta*180/math.Pi, 360)
	if h < 0 {
		h += 360
	}
	return h, nil
}

// Position returns the true position (m)
func (p *Plant) Position() r2.Point { return p.pos }

// Theta returns the true heading (rad, unwrapped)
func (p *Plant) Theta() float64 { return p.theta }

// PathLength returns the true distance travelled (m)
func (p *Plant) PathLength() float64 { return p.path }

// WheelSpeeds returns the true wheel speeds (rad/s)
func (p *Plant) WheelSpeeds() control.WheelQuad { return p.omega }

// Voltages returns the applied, saturated voltages
func (p *Plant) Voltages() control.WheelQuad { return p.volts }

// Encoders is a WheelSensor reading the plant's encoders through a
// VelocityEstimator
type Encoders struct {
	plant *Plant
	est   *control.VelocityEstimator
}

// NewEncoders wraps plant with an estimator
func NewEncoders(plant *Plant, alpha float64) (*Encoders, error) {
	est, err := control.NewVelocityEstimator(plant.cfg.TicksPerRev, alpha)
	if err != nil {
		return nil, err
	}
	return &Encoders{plant: plant, est: est}, nil
}

func (e *Encoders) Sample(_ context.Context, dt float64) (control.WheelReading, error) {
	return e.est.Update(e.plant.Ticks(), dt), nil
}

// Clock is a manually advanced control.Clock
type Clock struct {
	now time.Duration
}

func (c *Clock) Now() time.Duration { return c.now }

// Advance moves the clock forward by d
func (c *Clock) Advance(d time.Duration) { c.now += d }
