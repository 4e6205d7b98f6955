package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"xmediagrab/pkg/auth"
	"xmediagrab/pkg/config"
	"xmediagrab/pkg/ui"
	"xmediagrab/pkg/xsite"
)

var logoutAll bool

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored X auth tokens",
	Long: `Manage the auth_token cookies xmediagrab signs in with.

Tokens are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (XMEDIAGRAB_AUTH_TOKEN, read only)

Never share your auth token or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [name]",
	Short: "Store an auth token securely",
	Long: `Store an X auth_token cookie in the system keychain or an encrypted file.

You will be prompted for an account name (if not provided) and the token.
The token is hidden as you type. The first stored account becomes the
default one.`,
	Example: `  # Interactive login
  xmediagrab auth login

  # Login under a name
  xmediagrab auth login work`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [name]",
	Short: "Remove stored tokens",
	Long: `Remove a stored account.

If no name is provided you will be shown the stored accounts to choose
from. Use --all to remove every account.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts",
	Long:  `List all stored accounts with masked tokens.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

// switchCmd represents the auth switch command
var switchCmd = &cobra.Command{
	Use:   "switch [name]",
	Short: "Choose the default account",
	Long: `Choose the account used when --account is not given.

If no name is provided you will be shown the stored accounts to choose from.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSwitch,
}

// statusCmd represents the auth status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which token a scrape would use",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
	authCmd.AddCommand(switchCmd)
	authCmd.AddCommand(statusCmd)

	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "remove all stored accounts")
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)

	var name string
	if len(args) > 0 {
		name = strings.TrimSpace(args[0])
	}

	auth.ShowTokenGuide(os.Stdout)

	if name == "" {
		fmt.Print("Account name (e.g. your @handle): ")
		name = readLine(reader)
	}
	if name == "" {
		return fmt.Errorf("account name is required")
	}

	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("\nAccount '%s' already exists. Replace its token? (y/N): ", name)
		if !confirm(reader) {
			return nil
		}
	}

	var token string
	for {
		fmt.Print("auth_token cookie value: ")
		token, err = readPassword(reader)
		if err != nil {
			return fmt.Errorf("failed to read token: %w", err)
		}
		if err := auth.ValidateToken(token); err != nil {
			ui.PrintError("Invalid token", err.Error())
			auth.ShowQuickTokenGuide(os.Stdout)
			fmt.Print("Try again? (Y/n): ")
			if strings.EqualFold(readLine(reader), "n") {
				return err
			}
			continue
		}
		break
	}

	account := &auth.Account{
		Name:         name,
		AuthToken:    token,
		Domain:       siteDomain(cmd),
		LastModified: time.Now(),
	}
	if err := manager.Store(account); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	if manager.DefaultName() == "" {
		if err := manager.SetDefault(name); err == nil {
			fmt.Printf("Set '%s' as default account\n", name)
		}
	}

	ui.PrintSuccess(fmt.Sprintf("Account saved: %s (%s)", name, auth.MaskToken(token)))
	fmt.Println("\nDownload a user's images with:")
	fmt.Println("  $ xmediagrab scrape <user>")
	if manager.DefaultName() != name {
		fmt.Printf("  $ xmediagrab scrape <user> --account %s\n", name)
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	reader := bufio.NewReader(os.Stdin)

	if logoutAll {
		fmt.Print("Remove ALL accounts? This cannot be undone! (yes/N): ")
		if readLine(reader) != "yes" {
			return nil
		}
		if err := manager.DeleteAll(); err != nil {
			return fmt.Errorf("failed to remove all accounts: %w", err)
		}
		ui.PrintSuccess("All accounts removed")
		return nil
	}

	var name string
	if len(args) > 0 {
		name = args[0]
	} else {
		accounts, err := manager.List()
		if err != nil || len(accounts) == 0 {
			ui.PrintWarning("No stored accounts found")
			return nil
		}
		if name, err = chooseAccount(reader, accounts, "Select account to remove:"); err != nil || name == "" {
			return err
		}
	}

	if err := manager.Delete(name); err != nil {
		return fmt.Errorf("failed to remove account: %w", err)
	}
	ui.PrintSuccess("Account removed: " + name)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "Use 'xmediagrab auth login' to add one")
		return nil
	}

	def := manager.DefaultName()
	ui.PrintHighlight("Stored Accounts")
	fmt.Println()
	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		marker := ""
		if sanitized.Name == def {
			marker = " (default)"
		}
		fmt.Printf("%d. %s%s\n", i+1, sanitized.Name, marker)
		fmt.Printf("   Token: %s\n", sanitized.AuthToken)
		if sanitized.Domain != "" {
			fmt.Printf("   Domain: %s\n", sanitized.Domain)
		}
		if !sanitized.AddedAt.IsZero() {
			fmt.Printf("   Added: %s\n", sanitized.AddedAt.Format("2006-01-02 15:04:05"))
		}
		if !sanitized.LastModified.IsZero() {
			fmt.Printf("   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
	}
	return nil
}

func runSwitch(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	var name string
	if len(args) > 0 {
		name = args[0]
	} else {
		accounts, err := manager.List()
		if err != nil || len(accounts) == 0 {
			ui.PrintWarning("No stored accounts found")
			return nil
		}
		if name, err = chooseAccount(bufio.NewReader(os.Stdin), accounts, "Select default account:"); err != nil || name == "" {
			return err
		}
	}

	if err := manager.SetDefault(name); err != nil {
		return fmt.Errorf("failed to switch to %s: %w", name, err)
	}
	ui.PrintSuccess("Default account: " + name)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	if token := os.Getenv("XMEDIAGRAB_AUTH_TOKEN"); token != "" {
		ui.PrintInfo("Token source", "XMEDIAGRAB_AUTH_TOKEN")
		ui.PrintInfo("Token", auth.MaskToken(token))
		return nil
	}

	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if _, err := auth.NewKeyringStore(); err == nil {
		ui.PrintInfo("System keychain", "available")
	} else {
		ui.PrintInfo("System keychain", "unavailable, using encrypted file")
	}

	account, err := manager.RetrieveDefault()
	if err != nil {
		ui.PrintWarning("Not logged in", "run 'xmediagrab auth login'")
		return nil
	}
	ui.PrintInfo("Account", account.Name)
	ui.PrintInfo("Token", auth.MaskToken(account.AuthToken))
	if account.Domain != "" {
		ui.PrintInfo("Cookie domain", account.Domain)
	}
	if !account.AddedAt.IsZero() {
		ui.PrintInfo("Added", fmt.Sprintf("%s (%s ago)", account.AddedAt.Format("2006-01-02"), time.Since(account.AddedAt).Round(time.Hour)))
	}
	if base := siteBaseURL(cmd); !account.MatchesSite(base) {
		ui.PrintWarning("Token domain differs from the configured site", base)
	}
	return nil
}

// siteBaseURL returns the configured site root, or the default one when the
// configuration cannot be read
func siteBaseURL(cmd *cobra.Command) string {
	cfg, err := config.Load(configFile, globalFlags(cmd))
	if err != nil || cfg.X.BaseURL == "" {
		return xsite.BaseURL
	}
	return cfg.X.BaseURL
}

func siteDomain(cmd *cobra.Command) string {
	return xsite.CookieDomain(siteBaseURL(cmd))
}

func chooseAccount(reader *bufio.Reader, accounts []*auth.Account, prompt string) (string, error) {
	if len(accounts) == 1 {
		fmt.Printf("Use account '%s'? (y/N): ", accounts[0].Name)
		if !confirm(reader) {
			return "", nil
		}
		return accounts[0].Name, nil
	}

	fmt.Println(prompt)
	for i, account := range accounts {
		fmt.Printf("  %d. %s\n", i+1, account.Name)
	}
	fmt.Printf("  0. Cancel\n\n")
	fmt.Print("Choice: ")

	var choice int
	fmt.Sscanf(readLine(reader), "%d", &choice)
	switch {
	case choice == 0:
		return "", nil
	case choice < 0 || choice > len(accounts):
		return "", fmt.Errorf("invalid choice %d", choice)
	}
	return accounts[choice-1].Name, nil
}

func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func confirm(reader *bufio.Reader) bool {
	return strings.HasPrefix(strings.ToLower(readLine(reader)), "y")
}

// readPassword reads a secret from stdin without echoing it when stdin is
// a terminal
func readPassword(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
