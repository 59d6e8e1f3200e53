package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	control "diffdrive-core/drive_loop/differential_control"
	"diffdrive-core/drive_loop/sim"
	"diffdrive-core/report"
	"diffdrive-core/store"
)

var (
	flagIface    string
	flagSerial   string
	flagDB       string
	flagDuration time.Duration
	flagSettle   time.Duration
	flagText     string
	flagSimPlot  string
	flagSimWheel string
	flagPlotOut  string
	flagPlotWhl  string
	flagRunID    string
)

func init() {
	runCmd.Flags().StringVar(&flagIface, "iface", "", "SocketCAN interface (overrides can.interface)")
	runCmd.Flags().StringVar(&flagSerial, "serial", "", "serial telemetry port (overrides serial.port)")
	runCmd.Flags().StringVar(&flagDB, "db", "", "sqlite run database (overrides store.path)")

	simulateCmd.Flags().DurationVar(&flagDuration, "duration", 0, "simulated time limit (overrides sim.duration)")
	simulateCmd.Flags().DurationVar(&flagSettle, "settle", 0, "stop this long after the plan turns terminal (overrides sim.settle)")
	simulateCmd.Flags().StringVar(&flagDB, "db", "", "sqlite run database (overrides store.path)")
	simulateCmd.Flags().StringVar(&flagText, "telemetry", "", "write text telemetry lines to this file, - for stdout")
	simulateCmd.Flags().StringVar(&flagSimPlot, "plot", "", "save the path plot here after the run (needs --db)")
	simulateCmd.Flags().StringVar(&flagSimWheel, "wheels-plot", "", "save the wheel speed plot here after the run (needs --db)")

	plotCmd.Flags().StringVar(&flagDB, "db", "", "sqlite run database (overrides store.path)")
	plotCmd.Flags().StringVar(&flagRunID, "run", "", "run id (default: latest run)")
	plotCmd.Flags().StringVar(&flagPlotOut, "out", "path.png", "path plot file")
	plotCmd.Flags().StringVar(&flagPlotWhl, "wheels", "", "wheel speed plot file")
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}

func dbPath() string {
	if flagDB != "" {
		return flagDB
	}
	return appCfg.Store.Path
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive the robot over SocketCAN",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appCfg
		if flagIface != "" {
			cfg.CAN.Interface = flagIface
		}
		if flagSerial != "" {
			cfg.Serial.Port = flagSerial
		}
		cfg.Store.Path = dbPath()

		ctx, stop := signalContext(cmd)
		defer stop()

		runner, err := NewRunner(ctx, cfg, logger)
		if err != nil {
			logger.Critical("Startup failed: %v", err)
			return err
		}

		err = runner.Run(ctx)
		if cerr := runner.Close(); cerr != nil {
			logger.Error("Close failed: %v", cerr)
			err = multierr.Append(err, cerr)
		}
		if err != nil {
			logger.Critical("Run failed: %v", err)
		}
		return err
	},
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the drive loop against the simulated robot",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		duration, settle := appCfg.Sim.Duration, appCfg.Sim.Settle
		if cmd.Flags().Changed("duration") {
			duration = flagDuration
		}
		if cmd.Flags().Changed("settle") {
			settle = flagSettle
		}
		if (flagSimPlot != "" || flagSimWheel != "") && dbPath() == "" {
			return errors.New("--plot needs a run database: set --db or store.path")
		}

		ctx, stop := signalContext(cmd)
		defer stop()

		var reporters []control.Reporter
		if flagText != "" {
			w, closeText, err := openTextOutput(cmd, flagText)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, closeText()) }()
			reporters = append(reporters, control.NewTextReporter(w))
		}

		var (
			db  *store.Store
			rec *store.Recorder
		)
		if path := dbPath(); path != "" {
			if db, err = store.Open(path); err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, db.Close()) }()
			if rec, err = db.StartRun(ctx, "simulate", appCfg); err != nil {
				return err
			}
			// stamp the run even when the simulation fails or is interrupted
			defer func() { err = multierr.Append(err, rec.Finish(context.WithoutCancel(ctx))) }()
			reporters = append(reporters, rec)
		}

		s, err := sim.New(appCfg.Robot, appCfg.Loop, appCfg.PlantConfig(), appCfg.Sim.Step, nil, reporters, logger)
		if err != nil {
			return err
		}
		res, err := s.Run(ctx, duration, settle)
		if err != nil {
			return err
		}
		printSimResult(cmd.OutOrStdout(), res)

		if rec == nil {
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "run_id         %s\n", rec.RunID())
		if flagSimPlot == "" && flagSimWheel == "" {
			return nil
		}
		samples, err := db.LoadRun(ctx, rec.RunID())
		if err != nil {
			return err
		}
		return report.SavePlots(samples, rec.RunID(), flagSimPlot, flagSimWheel)
	},
}

var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Summarise and plot a recorded run",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		path := dbPath()
		if path == "" {
			return errors.New("no run database: set --db or store.path")
		}
		ctx := cmd.Context()

		db, err := store.Open(path)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, db.Close()) }()

		var run store.Run
		if flagRunID == "" {
			run, err = db.LatestRun(ctx)
		} else {
			run, err = db.GetRun(ctx, flagRunID)
		}
		if err != nil {
			return err
		}
		samples, err := db.LoadRun(ctx, run.ID)
		if err != nil {
			return err
		}

		opt := report.DefaultOptions()
		opt.WheelRadiusM = appCfg.Robot.WheelRadiusM
		sum, err := report.Summarize(samples, opt)
		if err != nil {
			return err
		}
		if err := report.WriteSummary(cmd.OutOrStdout(), run.ID, sum); err != nil {
			return err
		}
		if err := report.SavePlots(samples, run.ID, flagPlotOut, flagPlotWhl); err != nil {
			return err
		}
		logger.Info("Plotted run %s (%d samples) to %s", run.ID, len(samples), flagPlotOut)
		return nil
	},
}

func openTextOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry output: %w", err)
	}
	return f, f.Close, nil
}

func printSimResult(w io.Writer, res sim.Result) {
	fmt.Fprintf(w, "elapsed        %s\n", res.Elapsed)
	fmt.Fprintf(w, "terminal       %v\n", res.Terminal)
	fmt.Fprintf(w, "cycles         %d\n", res.ControlCycles)
	fmt.Fprintf(w, "reports        %d\n", res.Reports)
	fmt.Fprintf(w, "est_path       %.3f m\n", res.Estimated.PathDistance)
	fmt.Fprintf(w, "true_path      %.3f m\n", res.TruePathM)
	fmt.Fprintf(w, "true_position  (%.3f, %.3f) m\n", res.TrueX, res.TrueY)
	fmt.Fprintf(w, "final_heading  %.2f deg\n", res.FinalHeading)
}
