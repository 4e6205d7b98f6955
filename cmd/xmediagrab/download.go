package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"xmediagrab/pkg/discovery"
	"xmediagrab/pkg/logger"
	"xmediagrab/pkg/scraper"
	"xmediagrab/pkg/ui"
)

var downloadUser string

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download images from the last checkpoint of a user",
	Long: `Repeat the download phase using the URLs recorded by the last scrape of
a user. No browser is started. Files already on disk are kept, so an
interrupted download continues where it stopped and numbering stays stable.`,
	Example: `  # Finish an interrupted download
  xmediagrab download --user nasa

  # Save the checkpointed images somewhere else
  xmediagrab download --user nasa --output /mnt/archive`,
	Args: cobra.NoArgs,
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().StringVarP(&downloadUser, "user", "u", "", "user whose checkpoint to download (required)")
	downloadCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for downloads")
	_ = downloadCmd.MarkFlagRequired("user")
}

func runDownload(cmd *cobra.Command, args []string) error {
	flags := globalFlags(cmd)
	flags["output"] = outputDir

	cfg, err := setup(flags)
	if err != nil {
		return err
	}
	log := logger.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := discovery.MultiSink{
		ui.NewConsoleSink(os.Stdout, quiet, verbose),
		discovery.LoggerSink{Log: log},
	}
	s, err := scraper.New(cfg, scraper.WithEvents(events), scraper.WithLogger(log))
	if err != nil {
		return err
	}

	out, err := s.Resume(ctx, downloadUser)
	printOutcome(out)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if out.Report != nil && out.Report.Failed > 0 && out.Report.Downloaded == 0 && out.Report.Skipped == 0 {
		return errors.New("no image could be downloaded")
	}
	return nil
}
