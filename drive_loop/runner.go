package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	control "diffdrive-core/drive_loop/differential_control"
	"diffdrive-core/store"
	"diffdrive-core/utils"
)

// Runner owns the hardware edges of one drive: CAN in and out, the optional
// serial telemetry port and the optional run database.
type Runner struct {
	cfg  AppConfig
	log  *utils.Logger
	cmap *utils.CANMap

	writer utils.CANWriter
	reader utils.CANReader
	cache  *utils.FrameCache
	serial *utils.SerialLink
	db     *store.Store
	rec    *store.Recorder

	loop *control.Loop
}

func NewRunner(ctx context.Context, cfg AppConfig, logger *utils.Logger) (r *Runner, err error) {
	cmap, err := utils.LoadCANMap(cfg.CAN.Map)
	if err != nil {
		return nil, fmt.Errorf("load can map: %w", err)
	}
	if err := cmap.Require(utils.DirectionRX, rxFrames...); err != nil {
		return nil, fmt.Errorf("can map: %w", err)
	}
	if err := cmap.Require(utils.DirectionTX, txFrames...); err != nil {
		return nil, fmt.Errorf("can map: %w", err)
	}

	r = &Runner{cfg: cfg, log: logger, cmap: cmap}
	defer func() {
		if err != nil {
			err = multierr.Append(err, r.Close())
			r = nil
		}
	}()

	writer, err := utils.NewSocketCANWriter(ctx, cfg.CAN.Interface)
	if err != nil {
		return r, err
	}
	r.writer = writer
	reader, err := utils.NewSocketCANReader(ctx, cfg.CAN.Interface)
	if err != nil {
		return r, err
	}
	r.reader = reader
	r.cache = utils.NewFrameCache(cmap, logger)

	var reporters []control.Reporter
	if cfg.Serial.Port != "" {
		if r.serial, err = utils.OpenSerialLink(cfg.Serial.Port, cfg.Serial.Baud); err != nil {
			return r, err
		}
		reporters = append(reporters, control.NewTextReporter(r.serial))
	}
	if cfg.Store.Path != "" {
		if r.db, err = store.Open(cfg.Store.Path); err != nil {
			return r, err
		}
		if r.rec, err = r.db.StartRun(ctx, "run", cfg); err != nil {
			return r, err
		}
		reporters = append(reporters, r.rec)
	}

	r.loop, err = r.buildLoop(r.cache, utils.NewFrameEncoder(cmap, r.writer), reporters)
	return r, err
}

func (r *Runner) buildLoop(src sampleSource, tx frameSender, reporters []control.Reporter) (*control.Loop, error) {
	wheels, err := newCANWheelSensor(src, r.cfg.Robot, r.cfg.CAN.SensorTimeout)
	if err != nil {
		return nil, err
	}
	deps := control.Collaborators{
		Clock:     control.NewSystemClock(),
		Wheels:    wheels,
		Heading:   &canHeadingSensor{src: src, timeout: r.cfg.CAN.SensorTimeout, now: time.Now},
		Actuator:  &canActuator{tx: tx, maxVoltage: r.cfg.Robot.PID.MaxVoltage},
		Reporters: reporters,
	}
	if r.cfg.CAN.PublishOdometry {
		deps.Telemetry = &canOdometrySink{tx: tx}
	}
	return control.NewLoop(r.cfg.Robot, r.cfg.Loop, deps, r.log)
}

// Close releases every device; safe on a partly built Runner
func (r *Runner) Close() error {
	var err error
	if r.rec != nil {
		err = multierr.Append(err, r.rec.Finish(context.Background()))
	}
	if r.db != nil {
		err = multierr.Append(err, r.db.Close())
	}
	if r.serial != nil {
		err = multierr.Append(err, r.serial.Close())
	}
	if r.reader != nil {
		err = multierr.Append(err, r.reader.Close())
	}
	if r.writer != nil {
		err = multierr.Append(err, r.writer.Close())
	}
	return err
}

// waitForSensors blocks until every rx frame has been seen once
func (r *Runner) waitForSensors(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		missing := ""
		for _, name := range rxFrames {
			if _, ok := r.cache.Latest(name); !ok {
				missing = name
				break
			}
		}
		if missing == "" {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", missing, ctx.Err())
		case <-tick.C:
		}
	}
}

// Run listens on the bus, waits for the sensors, then runs the drive loop
// until ctx is done or the loop halts.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("Starting drive: iface=%s map=%s serial=%q store=%q control=%s report=%s",
		r.cfg.CAN.Interface, r.cfg.CAN.Map, r.cfg.Serial.Port, r.cfg.Store.Path,
		r.cfg.Loop.ControlPeriod, r.cfg.Loop.ReportPeriod)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	listenErr := make(chan error, 1)
	go func() {
		err := r.cache.Listen(ctx, r.reader)
		if err != nil {
			r.log.Error("CAN listener stopped: %v", err)
		}
		listenErr <- err
		cancel()
	}()

	if err := r.waitForSensors(ctx, 2*time.Second); err != nil {
		return err
	}
	r.log.Info("Sensors online; driving")

	err := r.loop.Run(ctx)
	stats := r.loop.Stats()
	r.log.Info("Completed drive. cycles=%d reports=%d path_distance=%.3fm dropped_frames=%d",
		stats.ControlCycles, stats.Reports, r.loop.PathState().Distance, r.cache.Dropped())

	cancel()
	if lerr := <-listenErr; lerr != nil {
		return multierr.Append(err, lerr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
