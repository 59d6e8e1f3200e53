package control

import (
	"fmt"
	"math"
)

// IntegralBound returns the anti-windup clamp for the integral accumulator.
// The integral term alone can reach at most half the actuator voltage.
func IntegralBound(maxVoltage, ki float64) float64 {
	if ki == 0 {
		return math.Inf(1)
	}
	return (maxVoltage / ki) / 2
}

// PIDController implements a discrete PID wheel velocity controller
// with a clamped integral accumulator
type PIDController struct {
	cfg   PIDConfig
	bound float64

	// State
	integral  float64
	prevError float64
}

// NewPIDController creates a new PID controller with given configuration
func NewPIDController(cfg PIDConfig) *PIDController {
	return &PIDController{
		cfg:   cfg,
		bound: IntegralBound(cfg.MaxVoltage, cfg.Ki),
	}
}

// Reset clears the PID state
func (pid *PIDController) Reset() {
	pid.integral = 0.0
	pid.prevError = 0.0
}

// Step advances the controller by one cycle of length dt seconds and returns
// the voltage command for the given velocity error (setpoint - measured).
//
// dt must be positive and finite; anything else is a caller bug and panics.
func (pid *PIDController) Step(error float64, dt float64) float64 {
	if !(dt > 0) || math.IsInf(dt, 0) {
		panic(fmt.Sprintf("control: PID step requires dt > 0, got %v", dt))
	}

	// Proportional term
	p := pid.cfg.Kp * error

	// Integral term with anti-windup
	pid.integral = ClampFloat(pid.integral+error*dt, -pid.bound, pid.bound)
	i := pid.cfg.Ki * pid.integral

	// Derivative term on the error
	d := pid.cfg.Kd * (error - pid.prevError) / dt

	pid.prevError = error

	return p + i + d
}

// GetDiagnostics returns current PID state for logging/debugging
func (pid *PIDController) GetDiagnostics() PIDDiagnostics {
	return PIDDiagnostics{
		Error:    pid.prevError,
		Integral: pid.integral,
		P:        pid.cfg.Kp * pid.prevError,
		I:        pid.cfg.Ki * pid.integral,
	}
}

// PIDDiagnostics contains PID internal state for monitoring
type PIDDiagnostics struct {
	Error    float64
	Integral float64
	P        float64
	I        float64
}

// GetError returns the most recent velocity error
func (pid *PIDController) GetError() float64 {
	return pid.prevError
}

// GetIntegral returns the current integral accumulator value
func (pid *PIDController) GetIntegral() float64 {
	return pid.integral
}

// IntegralBound returns the clamp applied to the integral accumulator
func (pid *PIDController) IntegralBound() float64 {
	return pid.bound
}
