package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/multierr"

	"diffdrive-core/utils"
)

// WheelSensor supplies one encoder sample per control cycle
type WheelSensor interface {
	Sample(ctx context.Context, dt float64) (WheelReading, error)
}

// HeadingSensor supplies the absolute inertial heading in degrees [0, 360)
type HeadingSensor interface {
	HeadingDegrees(ctx context.Context) (float64, error)
}

// Actuator applies one voltage per motor
type Actuator interface {
	DriveVolts(ctx context.Context, volts WheelQuad) error
}

// TelemetrySink receives a snapshot every control cycle
type TelemetrySink interface {
	SendOdometry(ctx context.Context, rec OdometryRecord) error
}

// Reporter receives the latest snapshot and heading at the report cadence
type Reporter interface {
	Report(ctx context.Context, rec OdometryRecord, headingDeg float64) error
}

// Collaborators are the I/O edges of a Loop. Telemetry and Reporters are
// optional.
type Collaborators struct {
	Clock     Clock
	Wheels    WheelSensor
	Heading   HeadingSensor
	Actuator  Actuator
	Telemetry TelemetrySink
	Reporters []Reporter
}

// LoopStats is a diagnostic view of the loop
type LoopStats struct {
	Iterations    uint64
	ControlCycles uint64
	Reports       uint64
	Segment       int
	LastCommand   MotionCommand
	LastSetpoints WheelQuad
	LastVoltages  WheelQuad
}

// Loop is one control loop instance. It owns its pose, controllers and
// snapshot; nothing is shared between instances.
type Loop struct {
	cfg  LoopConfig
	dt   float64
	deps Collaborators
	log  *utils.Logger

	pose  *PoseIntegrator
	traj  *TrajectorySupervisor
	mixer *Mixer
	bank  *ControllerBank

	controlGate pollGate
	reportGate  pollGate

	heading  float64
	snapshot OdometryRecord
	stats    LoopStats
}

// NewLoop wires the core components from configuration
func NewLoop(robot RobotConfig, cfg LoopConfig, deps Collaborators, log *utils.Logger) (*Loop, error) {
	if err := robot.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Clock == nil || deps.Wheels == nil || deps.Heading == nil || deps.Actuator == nil {
		return nil, fmt.Errorf("%w: clock, wheel sensor, heading sensor and actuator are required", ErrInvalidConfig)
	}

	segCfgs := robot.Segments
	if len(segCfgs) == 0 {
		segCfgs = DefaultSegmentConfigs()
	}
	segments, err := BuildSegments(segCfgs)
	if err != nil {
		return nil, err
	}
	traj, err := NewTrajectorySupervisor(segments)
	if err != nil {
		return nil, err
	}
	pose, err := NewPoseIntegrator(robot.WheelRadiusM, robot.TrackHalfWidthM, robot.Integration)
	if err != nil {
		return nil, err
	}
	mixer, err := NewMixer(robot.WheelRadiusM, robot.TrackHalfWidthM)
	if err != nil {
		return nil, err
	}
	bank, err := NewControllerBank(robot.PID, cfg.ControlDT())
	if err != nil {
		return nil, err
	}

	log.Info("Drive loop ready: r=%.3fm b=%.3fm kp=%.2f ki=%.2f kd=%.2f vmax=%.1fV integral_bound=%.3f control=%s report=%s segments=%d",
		robot.WheelRadiusM, robot.TrackHalfWidthM, robot.PID.Kp, robot.PID.Ki, robot.PID.Kd,
		robot.PID.MaxVoltage, IntegralBound(robot.PID.MaxVoltage, robot.PID.Ki),
		cfg.ControlPeriod, cfg.ReportPeriod, traj.Len())

	return &Loop{
		cfg:         cfg,
		dt:          cfg.ControlDT(),
		deps:        deps,
		log:         log,
		pose:        pose,
		traj:        traj,
		mixer:       mixer,
		bank:        bank,
		controlGate: newPollGate(cfg.ControlPeriod, time.Microsecond),
		reportGate:  newPollGate(cfg.ReportPeriod, time.Millisecond),
	}, nil
}

// Tick runs one pass of the loop body: poll heading, then the control gate,
// then the report gate. It never blocks on a gate.
func (l *Loop) Tick(ctx context.Context) error {
	l.stats.Iterations++

	heading, err := l.deps.Heading.HeadingDegrees(ctx)
	if err != nil {
		return fmt.Errorf("read heading: %w", err)
	}
	if !isFinite(heading) {
		return fmt.Errorf("%w: heading %v", ErrInvalidInput, heading)
	}
	l.heading = heading

	if l.controlGate.poll(l.deps.Clock.Now()) {
		if err := l.controlCycle(ctx); err != nil {
			return err
		}
	}

	if l.reportGate.poll(l.deps.Clock.Now()) {
		if err := l.report(ctx); err != nil {
			return err
		}
	}
	return nil
}

// controlCycle: sample, pose, telemetry, trajectory, mixer, controllers,
// actuation. Each stage consumes the previous stage's output.
func (l *Loop) controlCycle(ctx context.Context) error {
	reading, err := l.deps.Wheels.Sample(ctx, l.dt)
	if err != nil {
		return fmt.Errorf("sample wheels: %w", err)
	}
	if err := reading.Delta.Validate("wheel angle delta"); err != nil {
		return err
	}
	if err := reading.Velocity.Validate("wheel velocity"); err != nil {
		return err
	}

	pose, path := l.pose.Update(reading.Delta.Left(), reading.Delta.Right())

	l.snapshot = Snapshot(pose, path, reading.Velocity, l.deps.Clock.Now())
	if l.deps.Telemetry != nil {
		if err := l.deps.Telemetry.SendOdometry(ctx, l.snapshot); err != nil {
			// telemetry is best effort; control keeps running
			l.log.Warn("Send odometry failed: %v", err)
		}
	}

	cmd, err := l.traj.NextCommand(path.Distance, l.heading)
	if err != nil {
		return fmt.Errorf("trajectory: %w", err)
	}
	if seg := l.traj.ActiveSegment(path.Distance); seg != l.stats.Segment {
		s := l.traj.Segment(seg)
		l.log.Info("Segment %d -> %d (%s) at path_distance=%.3fm vel=%.2f",
			l.stats.Segment, seg, s.Comment, path.Distance, s.Velocity)
		l.stats.Segment = seg
	}
	if cmd.Curvature != 0 {
		l.log.Trace("Steering k=%.2f heading=%.2f", cmd.Curvature, l.heading)
	}

	setpoints := l.mixer.MixCommand(cmd)
	volts := l.bank.Step(setpoints, reading.Velocity)

	if err := l.deps.Actuator.DriveVolts(ctx, volts.RearOnly()); err != nil {
		return fmt.Errorf("drive volts: %w", err)
	}

	l.stats.ControlCycles++
	l.stats.LastCommand = cmd
	l.stats.LastSetpoints = setpoints
	l.stats.LastVoltages = volts

	if l.log.Enabled(utils.TRACE) {
		l.log.Trace("cycle=%d d=%.3f vel=%.2f k=%.2f sp=(%.2f,%.2f) meas=(%.2f,%.2f) V=(%.2f,%.2f)",
			l.stats.ControlCycles, path.Distance, cmd.LinearVelocity, cmd.Curvature,
			setpoints.BL, setpoints.BR, reading.Velocity.BL, reading.Velocity.BR, volts.BL, volts.BR)
	}
	return nil
}

func (l *Loop) report(ctx context.Context) error {
	var errs error
	for _, r := range l.deps.Reporters {
		errs = multierr.Append(errs, r.Report(ctx, l.snapshot, l.heading))
	}
	l.stats.Reports++
	if errs != nil {
		return fmt.Errorf("report: %w", errs)
	}
	return nil
}

// Run ticks until ctx is done, then commands zero volts on every motor.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		if err := l.deps.Actuator.DriveVolts(context.WithoutCancel(ctx), WheelQuad{}); err != nil {
			l.log.Error("Stop motors failed: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			l.log.Info("Drive loop stopped: cycles=%d reports=%d path_distance=%.3fm",
				l.stats.ControlCycles, l.stats.Reports, l.pose.PathState().Distance)
			return ctx.Err()
		default:
		}

		cycles, reports := l.stats.ControlCycles, l.stats.Reports
		if err := l.Tick(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			l.log.Critical("Drive loop halted: %v", err)
			return err
		}
		if l.cfg.PollInterval > 0 && cycles == l.stats.ControlCycles && reports == l.stats.Reports {
			time.Sleep(l.cfg.PollInterval)
		}
	}
}

// Pose returns the current pose estimate
func (l *Loop) Pose() Pose { return l.pose.Pose() }

// PathState returns the current path distance
func (l *Loop) PathState() PathState { return l.pose.PathState() }

// Snapshot returns the record produced by the last control cycle
func (l *Loop) Snapshot() OdometryRecord { return l.snapshot }

// Heading returns the last heading read
func (l *Loop) Heading() float64 { return l.heading }

// Stats returns loop counters and the last command chain
func (l *Loop) Stats() LoopStats { return l.stats }

// Terminal reports whether the path plan has reached its final segment
func (l *Loop) Terminal() bool { return l.traj.Terminal(l.pose.PathState().Distance) }

// Controllers exposes the controller bank for diagnostics
func (l *Loop) Controllers() *ControllerBank { return l.bank }

// TextReporter writes FormatTelemetryLine records to w
type TextReporter struct {
	w io.Writer
}

// NewTextReporter reports to any writer: a serial port, a file, stdout
func NewTextReporter(w io.Writer) *TextReporter {
	return &TextReporter{w: w}
}

func (t *TextReporter) Report(_ context.Context, rec OdometryRecord, headingDeg float64) error {
	_, err := io.WriteString(t.w, FormatTelemetryLine(rec, headingDeg))
	return err
}
