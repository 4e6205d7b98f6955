package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"xmediagrab/pkg/auth"
	"xmediagrab/pkg/config"
	"xmediagrab/pkg/ui"
)

var forceInit bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage xmediagrab configuration files.

Configuration is merged from, highest priority first:
  - Command line flags
  - Environment variables (XMEDIAGRAB_*), including .env files
  - Configuration file
  - Default values`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default values",
	Long: `Write a configuration file containing every option at its default value.

The file is written to ~/.config/xmediagrab/config.yaml unless a different
path is given with --config.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging all sources.

The auth token is masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load and validate the configuration file and print every problem found.

This command checks:
  - YAML syntax
  - Value types and ranges
  - Output and log directories can be created
  - An auth token is available`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

// pathCmd represents the config path command
var pathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file in use",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if path := configPath(); path != "" {
			fmt.Println(path)
			return
		}
		fmt.Printf("%s (not created yet)\n", config.DefaultPath())
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
	configCmd.AddCommand(pathCmd)

	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "overwrite an existing file")
}

// configPath returns the file config.Load would read, or ""
func configPath() string {
	if configFile != "" {
		return configFile
	}
	return config.FindConfigFile()
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = config.DefaultPath()
	}

	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + path)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Store your auth token with 'xmediagrab auth login'")
	fmt.Println("2. Run 'xmediagrab config validate' to check the configuration")
	fmt.Println("3. Start downloading with 'xmediagrab scrape <user>'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, globalFlags(cmd))
	if err != nil {
		return err
	}

	display := *cfg
	if display.X.AuthToken != "" {
		display.X.AuthToken = auth.MaskToken(display.X.AuthToken)
	}

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (XMEDIAGRAB_*)")
	if path := configPath(); path != "" {
		fmt.Printf("3. Configuration file: %s\n", path)
	} else {
		fmt.Println("3. Configuration file: (none found)")
	}
	fmt.Println("4. Default values")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configPath()
	if path == "" {
		ui.PrintWarning("No configuration file found, validating defaults and environment")
	} else {
		ui.PrintInfo("Validating configuration", path)
	}

	cfg, err := config.Load(path, globalFlags(cmd))
	if err != nil {
		return err
	}

	var warnings, problems []string

	if cfg.X.AuthToken == "" {
		manager, err := auth.NewManager()
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("credential store unavailable: %v", err))
		} else if cfg.X.Account != "" {
			if _, err := manager.Retrieve(cfg.X.Account); err != nil {
				problems = append(problems, fmt.Sprintf("stored account %q not found", cfg.X.Account))
			}
		} else if _, err := manager.RetrieveDefault(); err != nil {
			warnings = append(warnings, "no auth token configured and no stored account")
		}
	} else if err := auth.ValidateToken(cfg.X.AuthToken); err != nil {
		problems = append(problems, fmt.Sprintf("auth token: %v", err))
	}

	if err := os.MkdirAll(cfg.Output.BaseDirectory, 0755); err != nil {
		problems = append(problems, fmt.Sprintf("cannot create output directory: %v", err))
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}

	if len(problems) > 0 {
		ui.PrintError("Configuration has errors:")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		return fmt.Errorf("%d configuration error(s)", len(problems))
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")

	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Browser engine: %s (headless: %t)\n", cfg.Browser.Engine, cfg.Browser.Headless)
	fmt.Printf("  Max scrolls: %d\n", cfg.Discovery.MaxScrolls)
	fmt.Printf("  Output directory: %s\n", cfg.Output.BaseDirectory)
	fmt.Printf("  Concurrent downloads: %d\n", cfg.Download.ConcurrentDownloads)
	fmt.Printf("  Rate limit: %d requests/minute\n", cfg.RateLimit.RequestsPerMinute)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}
