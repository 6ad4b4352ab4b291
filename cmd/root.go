package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/huanfeng/apkstore-cli/internal/config"
	apperrors "github.com/huanfeng/apkstore-cli/internal/errors"
	"github.com/huanfeng/apkstore-cli/internal/i18n"
	"github.com/huanfeng/apkstore-cli/internal/version"
	"github.com/huanfeng/apkstore-cli/pkg/utils"
)

var (
	cfgFile   string
	verbose   bool
	logFile   string
	langFlag  string
	deviceID  string
	assumeYes bool

	cfg *config.Config
)

// skipConfig marks commands that must run without a valid configuration.
const skipConfig = "skip-config"

var rootCmd = &cobra.Command{
	Use:   "apkstore",
	Short: "ApkStore CLI - install and update store apps on Android devices",
	Long: `ApkStore CLI fetches the app store catalog, downloads packages and
installs, updates or removes them on a connected Android device through adb.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipConfig] == "true" {
			return initLogging(config.Default().Log)
		}

		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded

		lang := langFlag
		if lang == "" {
			lang = cfg.Lang
		}
		if lang != "" {
			if err := i18n.Init(lang); err != nil {
				return err
			}
		}
		if deviceID != "" {
			cfg.ADB.Device = deviceID
		}
		return initLogging(cfg.Log)
	},
}

func initLogging(lc config.LogConfig) error {
	level, err := utils.ParseLogLevel(lc.Level)
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrorTypeConfiguration, "INVALID_LOG_LEVEL", "invalid log.level")
	}
	if verbose {
		level = utils.LogLevelDebug
	}
	path := lc.File
	if logFile != "" {
		path = logFile
	}
	return utils.InitGlobalLogger(&utils.LoggerConfig{
		Level:       level,
		Format:      utils.ParseLogFormat(lc.Format),
		Output:      os.Stderr,
		FilePath:    path,
		EnableColor: true,
	})
}

// Execute runs the CLI until it finishes or is interrupted.
func Execute() {
	if err := i18n.Init(""); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	applyCommandLocalization()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	started := time.Now()
	executed, err := rootCmd.ExecuteContextC(ctx)
	stop()
	if err != nil {
		reportError(err, executed, time.Since(started))
		os.Exit(1)
	}
}

func reportError(err error, executed *cobra.Command, elapsed time.Duration) {
	var logger apperrors.Logger
	if verbose {
		logger = utils.GetGlobalLogger()
	}
	storeErr := apperrors.NewErrorHandler(logger).HandleWithRecovery(err)
	if !verbose {
		fmt.Fprintf(os.Stderr, "Error: %s\n", storeErr.Error())
		for _, s := range storeErr.Suggestions {
			fmt.Fprintf(os.Stderr, "  - %s\n", s)
		}
		return
	}

	fmt.Fprintln(os.Stderr, storeErr.FormatDetailed())
	if cfg == nil || executed == nil {
		return
	}
	reporter := apperrors.NewErrorReporter(filepath.Join(cfg.Store.CacheDir, "reports"), version.Version, nil)
	report := reporter.GenerateReport(storeErr, apperrors.OperationContext{
		Command:   executed.CommandPath(),
		Arguments: executed.Flags().Args(),
		Device:    cfg.ADB.Device,
		Duration:  elapsed,
	}, cfgFile)
	if path, saveErr := reporter.SaveReport(report); saveErr == nil {
		fmt.Fprintf(os.Stderr, "Error report: %s\n", path)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default: ./apkstore.yaml or ~/.config/apkstore/apkstore.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this file")
	rootCmd.PersistentFlags().StringVar(&langFlag, "lang", "", "Language for messages (en, zh)")
	rootCmd.PersistentFlags().StringVarP(&deviceID, "device", "s", "", "Target device serial")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Approve confirmations without asking")
}
