package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	control "diffdrive-core/drive_loop/differential_control"
	"diffdrive-core/utils"
)

// CAN frame and signal names from config/can/can_map.csv
const (
	frameEncoderFront = "WHEEL_ENCODER_FRONT"
	frameEncoderRear  = "WHEEL_ENCODER_REAR"
	frameIMUHeading   = "IMU_HEADING"
	frameMotorCmd     = "MOTOR_VOLTAGE_CMD"
	frameOdomPose     = "ODOMETRY_POSE"
	frameOdomPath     = "ODOMETRY_PATH"
	frameOdomVel      = "ODOMETRY_VEL"
)

var (
	rxFrames = []string{frameEncoderFront, frameEncoderRear, frameIMUHeading}
	txFrames = []string{frameMotorCmd, frameOdomPose, frameOdomPath, frameOdomVel}
)

// ErrStaleSensor means a sensor frame has not arrived within the timeout
var ErrStaleSensor = errors.New("stale sensor frame")

type sampleSource interface {
	Latest(frameName string) (utils.SignalSample, bool)
}

// freshValues returns the latest values of frameName, or ErrStaleSensor
func freshValues(src sampleSource, frameName string, timeout time.Duration, now time.Time) (map[string]float64, error) {
	s, ok := src.Latest(frameName)
	if !ok {
		return nil, fmt.Errorf("%w: %s never received", ErrStaleSensor, frameName)
	}
	if age := now.Sub(s.Received); age > timeout {
		return nil, fmt.Errorf("%w: %s is %s old", ErrStaleSensor, frameName, age.Round(time.Millisecond))
	}
	return s.Values, nil
}

// canWheelSensor turns the cumulative encoder counts in the two encoder
// frames into a WheelReading
type canWheelSensor struct {
	src     sampleSource
	est     *control.VelocityEstimator
	timeout time.Duration
	now     func() time.Time
}

func newCANWheelSensor(src sampleSource, robot control.RobotConfig, timeout time.Duration) (*canWheelSensor, error) {
	est, err := control.NewVelocityEstimator(robot.TicksPerRev, robot.VelocityFilterAlpha)
	if err != nil {
		return nil, err
	}
	return &canWheelSensor{src: src, est: est, timeout: timeout, now: time.Now}, nil
}

func (s *canWheelSensor) Sample(_ context.Context, dt float64) (control.WheelReading, error) {
	now := s.now()
	front, err := freshValues(s.src, frameEncoderFront, s.timeout, now)
	if err != nil {
		return control.WheelReading{}, err
	}
	rear, err := freshValues(s.src, frameEncoderRear, s.timeout, now)
	if err != nil {
		return control.WheelReading{}, err
	}
	ticks := control.TickQuad{
		FL: int32(front["fl_ticks"]),
		FR: int32(front["fr_ticks"]),
		BL: int32(rear["bl_ticks"]),
		BR: int32(rear["br_ticks"]),
	}
	return s.est.Update(ticks, dt), nil
}

type canHeadingSensor struct {
	src     sampleSource
	timeout time.Duration
	now     func() time.Time
}

func (s *canHeadingSensor) HeadingDegrees(context.Context) (float64, error) {
	v, err := freshValues(s.src, frameIMUHeading, s.timeout, s.now())
	if err != nil {
		return 0, err
	}
	return math.Mod(v["heading_deg"], 360), nil
}

type frameSender interface {
	Send(ctx context.Context, frameName string, values map[string]float64) error
}

// canActuator sends MOTOR_VOLTAGE_CMD, saturated at the supply limit
type canActuator struct {
	tx         frameSender
	maxVoltage float64
}

func (a *canActuator) DriveVolts(ctx context.Context, v control.WheelQuad) error {
	lim := a.maxVoltage
	return a.tx.Send(ctx, frameMotorCmd, map[string]float64{
		"fl_voltage": control.ClampFloat(v.FL, -lim, lim),
		"bl_voltage": control.ClampFloat(v.BL, -lim, lim),
		"fr_voltage": control.ClampFloat(v.FR, -lim, lim),
		"br_voltage": control.ClampFloat(v.BR, -lim, lim),
	})
}

// canOdometrySink publishes each snapshot as three frames
type canOdometrySink struct {
	tx frameSender
}

func (s *canOdometrySink) SendOdometry(ctx context.Context, rec control.OdometryRecord) error {
	if err := s.tx.Send(ctx, frameOdomPose, map[string]float64{
		"x_m": rec.X,
		"y_m": rec.Y,
	}); err != nil {
		return err
	}
	if err := s.tx.Send(ctx, frameOdomPath, map[string]float64{
		"theta_rad":       rec.Theta,
		"path_distance_m": rec.PathDistance,
	}); err != nil {
		return err
	}
	return s.tx.Send(ctx, frameOdomVel, map[string]float64{
		"vel_left":  rec.LeftVelocity,
		"vel_right": rec.RightVelocity,
		"time_ms":   float64(rec.Timestamp.Milliseconds()),
	})
}
