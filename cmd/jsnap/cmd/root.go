package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jsnap/pkg/config"
	apperrors "github.com/jsnap/pkg/errors"
	"github.com/jsnap/pkg/telemetry"
	"github.com/jsnap/pkg/utils"
)

var (
	// Global flags
	configPath string
	dataDir    string
	verbose    bool

	cfg               *config.Config
	logger            utils.Logger = &utils.NullLogger{}
	logCloser         io.Closer
	shutdownTelemetry telemetry.ShutdownFunc
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "jsnap",
	Short: "Decode JVM heap dumps into a queryable database",
	Long: `jsnap reads JVM heap dumps in HPROF format in a single pass and stores
the symbols, classes, threads and stack traces they contain in a database
kept in a per-dump workspace under the data directory.

Dumps may be plain, gzip or zstd compressed, on local disk or in a COS
bucket (cos://key).`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, os.Args[1:])
}

func execute(ctx context.Context, args []string) int {
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	teardown()
	if err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), errorStyle.Render("Error:"), err)
	}
	return apperrors.ExitCode(err)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: jsnap.yaml in ., ~/.jsnap, /etc/jsnap)")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "Directory holding one workspace per dump (overrides data_dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	binName := BinName()
	rootCmd.Example = `  # Decode a heap dump into ~/.jsnap/heap.hprof
  ` + binName + ` parse ./heap.hprof

  # Decode again from scratch into a custom data directory
  ` + binName + ` parse ./heap.hprof.gz -d /data/dumps -r

  # Decode a dump stored in COS
  ` + binName + ` parse cos://prod/app-1/heap.hprof -c ./jsnap.yaml

  # Query an analysed dump
  ` + binName + ` classes ./heap.hprof --name java.util`
}

func setup(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeConfigError, "failed to load configuration", err)
	}
	if dataDir != "" {
		c.DataDir = dataDir
		if err := c.Validate(); err != nil {
			return apperrors.Wrap(apperrors.CodeConfigError, "invalid configuration", err)
		}
	}

	level := utils.ParseLogLevel(c.Log.Level)
	if verbose {
		level = utils.LevelDebug
	}
	if c.Log.OutputPath != "" {
		l, closer, err := utils.NewFileLogger(level, c.Log.OutputPath)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeConfigError, "failed to open log file", err)
		}
		logger, logCloser = l, closer
	} else {
		logger = utils.NewDefaultLogger(level, cmd.ErrOrStderr())
	}

	shutdown, err := telemetry.Init(cmd.Context(), nil)
	if err != nil {
		logger.Warn("Tracing disabled: %v", err)
	}
	shutdownTelemetry = shutdown
	cfg = c
	return nil
}

func teardown() {
	if shutdownTelemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("Failed to flush traces: %v", err)
		}
		cancel()
		shutdownTelemetry = nil
	}
	if logCloser != nil {
		logCloser.Close()
		logCloser = nil
	}
}

// BinName returns the base name of the current executable
func BinName() string {
	return filepath.Base(os.Args[0])
}
