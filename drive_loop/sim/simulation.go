package sim

import (
	"context"
	"fmt"
	"time"

	control "diffdrive-core/drive_loop/differential_control"
	"diffdrive-core/utils"
)

// Simulation steps a plant and a drive loop on a shared simulated clock
type Simulation struct {
	Clock *Clock
	Plant *Plant
	Loop  *control.Loop

	step time.Duration
	log  *utils.Logger
}

// Result summarises a finished simulation
type Result struct {
	Elapsed       time.Duration
	Terminal      bool
	Estimated     control.OdometryRecord
	TruePathM     float64
	TrueX, TrueY  float64
	TrueTheta     float64
	FinalHeading  float64
	ControlCycles uint64
	Reports       uint64
}

// New builds a simulation. step is the physics and loop-poll step; it should
// be well below the control period.
func New(robot control.RobotConfig, loopCfg control.LoopConfig, plantCfg PlantConfig, step time.Duration,
	telemetry control.TelemetrySink, reporters []control.Reporter, log *utils.Logger) (*Simulation, error) {
	if step <= 0 {
		return nil, fmt.Errorf("simulation step must be positive, got %s", step)
	}
	plant, err := NewPlant(plantCfg)
	if err != nil {
		return nil, err
	}
	enc, err := NewEncoders(plant, robot.VelocityFilterAlpha)
	if err != nil {
		return nil, err
	}
	clock := &Clock{}

	// no wall-clock sleeping in simulated time
	loopCfg.PollInterval = 0
	loop, err := control.NewLoop(robot, loopCfg, control.Collaborators{
		Clock:     clock,
		Wheels:    enc,
		Heading:   plant,
		Actuator:  plant,
		Telemetry: telemetry,
		Reporters: reporters,
	}, log)
	if err != nil {
		return nil, err
	}
	return &Simulation{Clock: clock, Plant: plant, Loop: loop, step: step, log: log}, nil
}

// Run advances the simulation for duration, or until the plan is terminal
// and the robot has settled for settle. A zero settle runs the full duration.
func (s *Simulation) Run(ctx context.Context, duration, settle time.Duration) (Result, error) {
	start := s.Clock.Now()
	var terminalAt time.Duration
	terminal := false

	for s.Clock.Now()-start < duration {
		if err := ctx.Err(); err != nil {
			return s.result(start), err
		}
		s.Clock.Advance(s.step)
		s.Plant.Advance(s.step)
		if err := s.Loop.Tick(ctx); err != nil {
			return s.result(start), err
		}

		if !terminal && s.Loop.Terminal() {
			terminal = true
			terminalAt = s.Clock.Now()
			s.log.Info("Plan terminal at t=%s path_distance=%.3fm", terminalAt-start, s.Loop.PathState().Distance)
		}
		if settle > 0 && terminal && s.Clock.Now()-terminalAt >= settle {
			break
		}
	}

	// mirror Run's shutdown
	if err := s.Plant.DriveVolts(ctx, control.WheelQuad{}); err != nil {
		return s.result(start), err
	}
	res := s.result(start)
	s.log.Info("Simulation done: t=%s cycles=%d true_path=%.3fm est_path=%.3fm pos=(%.3f,%.3f)",
		res.Elapsed, res.ControlCycles, res.TruePathM, res.Estimated.PathDistance, res.TrueX, res.TrueY)
	return res, nil
}

func (s *Simulation) result(start time.Duration) Result {
	stats := s.Loop.Stats()
	pos := s.Plant.Position()
	heading, _ := s.Plant.HeadingDegrees(context.Background())
	return Result{
		Elapsed:       s.Clock.Now() - start,
		Terminal:      s.Loop.Terminal(),
		Estimated:     s.Loop.Snapshot(),
		TruePathM:     s.Plant.PathLength(),
		TrueX:         pos.X,
		TrueY:         pos.Y,
		TrueTheta:     s.Plant.Theta(),
		FinalHeading:  heading,
		ControlCycles: stats.ControlCycles,
		Reports:       stats.Reports,
	}
}
