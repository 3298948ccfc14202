package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/gensched/internal/config"
)

// version is overridden at build time with -ldflags "-X".
var version = "0.1.0-dev"

var (
	cfgFile string
	verbose bool

	// appConfig is loaded before any subcommand runs.
	appConfig *config.Config
	logFile   *os.File
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gensched",
	Short: "A persistent job scheduler",
	Long: `gensched runs jobs on schedules stored in SQLite:

  - One-shot, interval, cron, daily, weekly, monthly and calendar triggers
  - Tasks that depend on the outcome of another task
  - Bounded parallelism with retries and per-task time limits
  - Execution history with optional S3 archiving
  - An HTTP API with a live event stream

Start the scheduler:
  gensched serve

Apply task definitions:
  gensched task apply -f tasks.yaml`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.LoadOptions{ConfigFile: cfgFile})
		if err != nil {
			return err
		}
		appConfig = cfg
		return setupLogging(cfg.Logging, cmd.ErrOrStderr())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			_ = logFile.Close()
			logFile = nil
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./gensched.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// setupLogging configures zerolog from the logging section. --verbose
// forces debug level.
func setupLogging(lc config.LoggingConfig, stderr io.Writer) error {
	level, err := zerolog.ParseLevel(strings.ToLower(lc.Level))
	if err != nil || lc.Level == "" {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	out := stderr
	if lc.Output != "" {
		f, err := os.OpenFile(lc.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening log output: %w", err)
		}
		logFile = f
		out = f
	}

	if lc.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, NoColor: lc.Output != ""}
	}

	lctx := zerolog.New(out).With()
	if lc.Timestamp {
		lctx = lctx.Timestamp()
	}
	if lc.Caller {
		lctx = lctx.Caller()
	}
	log.Logger = lctx.Logger()
	return nil
}

// AddCommand adds a command to the root command.
func AddCommand(cmd *cobra.Command) {
	rootCmd.AddCommand(cmd)
}

// Version returns the version string.
func Version() string {
	return fmt.Sprintf("gensched version %s", version)
}
