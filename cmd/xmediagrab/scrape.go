package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"xmediagrab/pkg/auth"
	"xmediagrab/pkg/config"
	"xmediagrab/pkg/discovery"
	"xmediagrab/pkg/logger"
	"xmediagrab/pkg/scraper"
	"xmediagrab/pkg/ui"
	"xmediagrab/pkg/ui/tui"
)

var (
	// Scrape command flags
	outputDir   string
	maxScrolls  int
	headless    bool
	engine      string
	authToken   string
	accountName string
	useTUI      bool
	noDownload  bool
	concurrent  int
	browserBin  string
)

// scrapeCmd represents the scrape command
var scrapeCmd = &cobra.Command{
	Use:   "scrape <user>",
	Short: "Discover and download the images of a user's media timeline",
	Long: `Open https://x.com/<user>/media in a browser signed in with your auth
token, scroll the grid, open every thumbnail and save all large images.

The auth token is taken from, in order:
  - the --auth-token flag or XMEDIAGRAB_AUTH_TOKEN
  - the stored account named with --account
  - the default stored account (see 'xmediagrab auth login')

Images are saved as image_1.jpg, image_2.png ... in discovery order under a
directory named after the user. Press Ctrl+C to stop early: the images found
so far are checkpointed and can be fetched with 'xmediagrab download'.`,
	Example: `  # Download with default settings
  xmediagrab scrape nasa

  # Custom directory, visible browser and more scrolling
  xmediagrab scrape nasa --output ./pics --headless=false --max-scrolls 100

  # Use chromedp and a specific stored account
  xmediagrab scrape nasa --engine chromedp --account work

  # Only discover, download later with 'xmediagrab download --user nasa'
  xmediagrab scrape nasa --no-download`,
	Args: cobra.ExactArgs(1),
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for downloads (default: ./downloads)")
	scrapeCmd.Flags().IntVar(&maxScrolls, "max-scrolls", 0, "maximum scroll iterations (default 40)")
	scrapeCmd.Flags().BoolVar(&headless, "headless", true, "run the browser without a window")
	scrapeCmd.Flags().StringVar(&engine, "engine", "", "browser engine: rod or chromedp (default rod)")
	scrapeCmd.Flags().StringVar(&authToken, "auth-token", "", "X auth_token cookie value")
	scrapeCmd.Flags().StringVarP(&accountName, "account", "a", "", "use a specific stored account")
	scrapeCmd.Flags().BoolVar(&useTUI, "tui", false, "use the full-screen dashboard")
	scrapeCmd.Flags().BoolVar(&noDownload, "no-download", false, "discover only and checkpoint the URLs")
	scrapeCmd.Flags().IntVar(&concurrent, "concurrent", 0, "number of concurrent downloads (default 3)")
	scrapeCmd.Flags().StringVar(&browserBin, "browser-bin", "", "path to a Chrome or Edge binary")

	// Make scraping work without the "scrape" subcommand
	rootCmd.Args = cobra.ArbitraryArgs
	rootCmd.Flags().AddFlagSet(scrapeCmd.Flags())
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 && !isKnownCommand(args[0]) {
			return runScrape(cmd, args)
		}
		return cmd.Help()
	}
}

func isKnownCommand(arg string) bool {
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == arg || cmd.HasAlias(arg) {
			return true
		}
	}
	return false
}

func scrapeFlags(cmd *cobra.Command, user string) map[string]interface{} {
	flags := globalFlags(cmd)
	flags["user"] = user
	flags["output"] = outputDir
	flags["max-scrolls"] = maxScrolls
	flags["engine"] = engine
	flags["auth-token"] = authToken
	flags["account"] = accountName
	flags["no-download"] = noDownload
	flags["concurrent"] = concurrent
	flags["browser-bin"] = browserBin
	if cmd.Flags().Changed("headless") {
		flags["headless"] = headless
	}
	return flags
}

// setup loads the configuration and the global logger. Console logs go to
// stderr in verbose mode only; the event sinks own the terminal otherwise.
func setup(flags map[string]interface{}) (*config.Config, error) {
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}

	var console io.Writer
	if verbose && !useTUI {
		console = os.Stderr
	}
	if err := logger.InitializeWithConsole(&cfg.Logging, console); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	ui.SetColor(!cfg.Logging.NoColor)
	return cfg, nil
}

func runScrape(cmd *cobra.Command, args []string) error {
	user := strings.TrimPrefix(strings.TrimSpace(args[0]), "@")

	cfg, err := setup(scrapeFlags(cmd, user))
	if err != nil {
		return err
	}
	log := logger.GetLogger()

	credentials, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Warn("Credential store unavailable")
		credentials = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if useTUI {
		return scrapeWithDashboard(ctx, cfg, credentials, user)
	}

	if !quiet {
		ui.PrintInfo("Target", "@"+user)
		ui.PrintInfo("Engine", cfg.Browser.Engine)
	}
	events := discovery.MultiSink{
		ui.NewConsoleSink(os.Stdout, quiet, verbose),
		discovery.LoggerSink{Log: log},
	}
	s, err := newScraper(cfg, credentials, events)
	if err != nil {
		return err
	}

	logger.LogComponentStart("scraper", map[string]interface{}{
		"user":   user,
		"engine": cfg.Browser.Engine,
	})
	out, err := s.Run(ctx)
	printOutcome(out)
	if err != nil {
		logger.LogComponentStop("scraper", err.Error())
		log.WithError(err).WithField("user", user).Error("Scrape failed")
		return err
	}
	logger.LogComponentStop("scraper", "finished")
	return nil
}

func scrapeWithDashboard(ctx context.Context, cfg *config.Config, credentials *auth.Manager, user string) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	dash := tui.NewTUI(user, cancel)
	events := discovery.MultiSink{dash, discovery.LoggerSink{Log: logger.GetLogger()}}
	s, err := newScraper(cfg, credentials, events)
	if err != nil {
		return err
	}

	var out *scraper.Outcome
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(dash.Start)
	g.Go(func() error {
		defer dash.Stop()
		var runErr error
		out, runErr = s.Run(gctx)
		return runErr
	})
	err = g.Wait()

	printOutcome(out)
	return err
}

func newScraper(cfg *config.Config, credentials *auth.Manager, events discovery.EventSink) (*scraper.Scraper, error) {
	opts := []scraper.Option{
		scraper.WithEvents(events),
		scraper.WithLogger(logger.GetLogger()),
	}
	if credentials != nil {
		opts = append(opts, scraper.WithCredentials(credentials))
	}
	return scraper.New(cfg, opts...)
}

func printOutcome(out *scraper.Outcome) {
	if out == nil || quiet {
		return
	}
	fmt.Fprintln(ui.Output)
	ui.PrintInfo("Run", out.RunID)
	if out.Discovery.Reason != "" {
		ui.PrintInfo("Images found", fmt.Sprintf("%d (stopped by %s)", len(out.Discovery.URLs), out.Discovery.Reason))
	}
	if out.Report != nil {
		ui.PrintInfo("Saved", fmt.Sprintf("%d downloaded, %d skipped, %d failed", out.Report.Downloaded, out.Report.Skipped, out.Report.Failed))
		ui.PrintInfo("Directory", out.OutputDir)
	}
	if out.ManifestPath != "" {
		ui.PrintInfo("Manifest", out.ManifestPath)
	}
	if out.Checkpoint != "" {
		ui.PrintInfo("Checkpoint", out.Checkpoint)
	}
}
