package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	control "diffdrive-core/drive_loop/differential_control"
	"diffdrive-core/drive_loop/sim"
)

const (
	configFileName = "robot"
	configFileType = "yaml"
	envPrefix      = "DIFFDRIVE"
)

// LogConfig selects the log file and level
type LogConfig struct {
	Level  string `mapstructure:"level"`
	File   string `mapstructure:"file"`
	Stdout bool   `mapstructure:"stdout"`
}

// CANConfig describes the SocketCAN side of the hardware run
type CANConfig struct {
	Interface       string        `mapstructure:"interface"`
	Map             string        `mapstructure:"map"`
	SensorTimeout   time.Duration `mapstructure:"sensor_timeout"`
	PublishOdometry bool          `mapstructure:"publish_odometry"`
}

// SerialConfig is the text telemetry port; an empty port disables it
type SerialConfig struct {
	Port string `mapstructure:"port"`
	Baud int    `mapstructure:"baud"`
}

// SimConfig drives the simulate command
type SimConfig struct {
	Step              time.Duration  `mapstructure:"step"`
	Duration          time.Duration  `mapstructure:"duration"`
	Settle            time.Duration  `mapstructure:"settle"`
	InitialHeadingDeg float64        `mapstructure:"initial_heading_deg"`
	Motor             sim.MotorModel `mapstructure:"motor"`
}

// StoreConfig is the sqlite run database; an empty path disables recording
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// AppConfig is the whole robot.yaml
type AppConfig struct {
	Log    LogConfig           `mapstructure:"log"`
	Robot  control.RobotConfig `mapstructure:"robot"`
	Loop   control.LoopConfig  `mapstructure:"loop"`
	CAN    CANConfig           `mapstructure:"can"`
	Serial SerialConfig        `mapstructure:"serial"`
	Sim    SimConfig           `mapstructure:"sim"`
	Store  StoreConfig         `mapstructure:"store"`
}

// setDefaults registers every scalar key so env overrides such as
// DIFFDRIVE_ROBOT_PID_KP reach Unmarshal.
func setDefaults(v *viper.Viper) {
	robot := control.DefaultRobotConfig()
	loop := control.DefaultLoopConfig()
	plant := sim.DefaultPlantConfig(robot)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "diffdrive.log")
	v.SetDefault("log.stdout", true)

	v.SetDefault("robot.wheel_radius_m", robot.WheelRadiusM)
	v.SetDefault("robot.track_half_width_m", robot.TrackHalfWidthM)
	v.SetDefault("robot.ticks_per_rev", robot.TicksPerRev)
	v.SetDefault("robot.velocity_filter_alpha", robot.VelocityFilterAlpha)
	v.SetDefault("robot.integration", string(robot.Integration))
	v.SetDefault("robot.pid.kp", robot.PID.Kp)
	v.SetDefault("robot.pid.ki", robot.PID.Ki)
	v.SetDefault("robot.pid.kd", robot.PID.Kd)
	v.SetDefault("robot.pid.max_voltage", robot.PID.MaxVoltage)

	v.SetDefault("loop.control_period", loop.ControlPeriod)
	v.SetDefault("loop.report_period", loop.ReportPeriod)
	v.SetDefault("loop.poll_interval", loop.PollInterval)

	v.SetDefault("can.interface", "can0")
	v.SetDefault("can.map", "config/can/can_map.csv")
	v.SetDefault("can.sensor_timeout", 100*time.Millisecond)
	v.SetDefault("can.publish_odometry", true)

	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud", 115200)

	v.SetDefault("sim.step", time.Millisecond)
	v.SetDefault("sim.duration", 60*time.Second)
	v.SetDefault("sim.settle", 2*time.Second)
	v.SetDefault("sim.initial_heading_deg", plant.InitialHeadingDeg)
	v.SetDefault("sim.motor.gain", plant.Motor.Gain)
	v.SetDefault("sim.motor.time_constant", plant.Motor.TimeConstant)

	v.SetDefault("store.path", "")
}

// loadConfig reads robot.yaml from path, or from ./config and . when path is
// empty. A missing default file is not an error; a missing explicit file is.
func loadConfig(path string) (AppConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath("config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return AppConfig{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.Robot.Segments) == 0 {
		cfg.Robot.Segments = control.DefaultSegmentConfigs()
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate checks everything the commands rely on before any device opens
func (c AppConfig) Validate() error {
	if err := c.Robot.Validate(); err != nil {
		return err
	}
	if err := c.Loop.Validate(); err != nil {
		return err
	}
	segs, err := control.BuildSegments(c.Robot.Segments)
	if err != nil {
		return err
	}
	if _, err := control.NewTrajectorySupervisor(segs); err != nil {
		return err
	}
	if c.Serial.Port != "" && c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
	}
	if c.CAN.SensorTimeout <= 0 {
		return fmt.Errorf("can.sensor_timeout must be positive, got %s", c.CAN.SensorTimeout)
	}
	return nil
}

// PlantConfig is the simulated robot matching this configuration
func (c AppConfig) PlantConfig() sim.PlantConfig {
	p := sim.DefaultPlantConfig(c.Robot)
	p.InitialHeadingDeg = c.Sim.InitialHeadingDeg
	p.Motor = c.Sim.Motor
	return p
}
