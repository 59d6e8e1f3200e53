package control

import "fmt"

// ControllerBank runs one independent PIDController per wheel position.
// Only the rear outputs reach the motors; the front ones are kept for
// diagnostics.
type ControllerBank struct {
	fl, bl, fr, br *PIDController
	dt             float64
}

// NewControllerBank builds four controllers sharing cfg and the fixed cycle
// period dt (seconds).
func NewControllerBank(cfg PIDConfig, dt float64) (*ControllerBank, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !(dt > 0) || !isFinite(dt) {
		return nil, fmt.Errorf("%w: controller dt must be positive, got %v", ErrInvalidConfig, dt)
	}
	return &ControllerBank{
		fl: NewPIDController(cfg),
		bl: NewPIDController(cfg),
		fr: NewPIDController(cfg),
		br: NewPIDController(cfg),
		dt: dt,
	}, nil
}

// Step computes one voltage per wheel from setpoint - measured.
func (b *ControllerBank) Step(setpoints, measured WheelQuad) WheelQuad {
	e := setpoints.Sub(measured)
	return WheelQuad{
		FL: b.fl.Step(e.FL, b.dt),
		BL: b.bl.Step(e.BL, b.dt),
		FR: b.fr.Step(e.FR, b.dt),
		BR: b.br.Step(e.BR, b.dt),
	}
}

// Reset clears every controller
func (b *ControllerBank) Reset() {
	for _, c := range b.controllers() {
		c.Reset()
	}
}

// Diagnostics returns the per-wheel PID state keyed by wheel position
func (b *ControllerBank) Diagnostics() map[string]PIDDiagnostics {
	return map[string]PIDDiagnostics{
		"fl": b.fl.GetDiagnostics(),
		"bl": b.bl.GetDiagnostics(),
		"fr": b.fr.GetDiagnostics(),
		"br": b.br.GetDiagnostics(),
	}
}

// Integrals returns the four integral accumulators
func (b *ControllerBank) Integrals() WheelQuad {
	return WheelQuad{
		FL: b.fl.GetIntegral(),
		BL: b.bl.GetIntegral(),
		FR: b.fr.GetIntegral(),
		BR: b.br.GetIntegral(),
	}
}

func (b *ControllerBank) controllers() []*PIDController {
	return []*PIDController{b.fl, b.bl, b.fr, b.br}
}
