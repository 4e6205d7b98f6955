package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	errs "xmediagrab/pkg/errors"
	"xmediagrab/pkg/logger"
	"xmediagrab/pkg/ui"
)

var (
	// Version information, set with -ldflags at build time
	version   = "0.4.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile    string
	logLevel      string
	noColor       bool
	notifications bool
	quiet         bool
	verbose       bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "xmediagrab",
	Short: "Save every image from an X user's media timeline",
	Long: `xmediagrab drives a real browser through an X (Twitter) user's media
timeline, opens each thumbnail, walks through multi-image posts and saves the
large images as image_1.jpg, image_2.png ... in discovery order.

Features:
  - Auth token stored in the system keychain or an encrypted file
  - rod or chromedp browser engines
  - Concurrent, rate limited downloads with retries
  - Checkpoints so an interrupted download can be resumed
  - Progress bar, full-screen dashboard and desktop notifications`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Version = version
		ui.SetColor(!noColor)
		if quiet {
			logLevel = "error"
		}

		if !quiet && cmd.Name() != "help" && cmd.Name() != "path" && !useTUI {
			ui.PrintLogo()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err.Error())
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is $HOME/.config/xmediagrab/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&notifications, "notifications", true, "enable desktop notifications")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors and the summary")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "also print structured logs and skipped files")

	rootCmd.SetVersionTemplate(`xmediagrab {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// globalFlags returns the persistent flags in the shape config.Load merges.
// Only flags the user actually set are included.
func globalFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	if noColor {
		flags["no-color"] = true
	}
	if cmd.Flags().Changed("notifications") {
		flags["notifications"] = notifications
	}
	return flags
}

// exitCode maps a failed command to the process status: 130 for an
// interrupted run, 2 for setup and credential problems and 1 otherwise
func exitCode(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return 130
	case errs.IsSetup(err), errs.TypeOf(err) == errs.ErrorTypeAuth:
		return 2
	default:
		return 1
	}
}
