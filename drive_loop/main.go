// Command diffdrive runs the differential-drive control loop on CAN hardware
// or against the built-in simulator, and reports on recorded runs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"diffdrive-core/utils"
)

var version = "dev"

var (
	// configFile is set by the --config flag.
	configFile string
	logLevel   string

	appCfg AppConfig
	logger *utils.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "diffdrive",
	Short: "Differential-drive motion control",
	Long: `diffdrive runs the wheel velocity control loop of a two-wheel
differential-drive robot: encoder odometry, a distance-gated path plan with
heading hold, differential mixing and per-wheel PI control.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error { return logger.Close() },
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: config/robot.yaml or ./robot.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "", "trace|debug|info|warn|error|critical (overrides log.level)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(plotCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "diffdrive %s\n", version)
	},
}

// setup loads config and opens the log for every command but version
func setup(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}

	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	appCfg = cfg

	level := utils.ParseLevel(cfg.Log.Level)
	if cfg.Log.File == "" {
		logger = utils.NewWriterLogger(cmd.ErrOrStderr(), level)
		return nil
	}
	logger, err = utils.NewFileLogger(cfg.Log.File, level, cfg.Log.Stdout)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", cfg.Log.File, err)
	}
	return nil
}
