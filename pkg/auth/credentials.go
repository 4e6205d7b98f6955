package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"xmediagrab/pkg/xsite"
)

// Account is one X login: the auth_token cookie of a signed-in browser
type Account struct {
	Name      string `json:"name"`
	AuthToken string `json:"auth_token"`
	// Domain is the cookie domain the token was issued for, e.g. ".x.com"
	Domain       string    `json:"domain,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	AddedAt      time.Time `json:"added_at"`
	LastModified time.Time `json:"last_modified"`
}

// prepareAccount validates the token and fills the fields every writable
// store keeps. previous is the record being replaced, or nil; its AddedAt
// survives the update.
func prepareAccount(account, previous *Account) error {
	if account == nil || account.Name == "" {
		return ErrInvalidCredentials
	}
	account.AuthToken = strings.TrimSpace(account.AuthToken)
	if err := ValidateToken(account.AuthToken); err != nil {
		return err
	}

	if account.Domain == "" {
		account.Domain = xsite.CookieDomain(xsite.BaseURL)
	}
	if account.LastModified.IsZero() {
		account.LastModified = time.Now()
	}
	if previous != nil && !previous.AddedAt.IsZero() {
		account.AddedAt = previous.AddedAt
	} else if account.AddedAt.IsZero() {
		account.AddedAt = account.LastModified
	}
	return nil
}

// MatchesSite reports whether the token was stored for the site at base
func (a *Account) MatchesSite(base string) bool {
	return a.Domain == "" || a.Domain == xsite.CookieDomain(base)
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	// Store saves credentials for a given account
	Store(account *Account) error

	// Retrieve gets credentials for a specific account name
	Retrieve(name string) (*Account, error)

	// List returns all stored accounts
	List() ([]*Account, error)

	// Delete removes credentials for a specific account name
	Delete(name string) error

	// Exists checks if credentials exist for an account name
	Exists(name string) bool
}

// defaultFile holds the name of the account selected with SetDefault
const defaultFile = "default_account"

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores    []CredentialStore
	configDir string
}

// NewManager creates a credential manager backed by the system keychain
// when available, an encrypted file and the environment
func NewManager() (*Manager, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	var stores []CredentialStore

	// Try keyring first (system keychain)
	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	// Always add encrypted file store as fallback
	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	// Add environment store as last resort
	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores, configDir: configDir}, nil
}

// NewManagerWithStores creates a Manager over explicit stores. configDir
// holds the default account pointer; empty disables it.
func NewManagerWithStores(configDir string, stores ...CredentialStore) *Manager {
	return &Manager{stores: stores, configDir: configDir}
}

// Store saves credentials using the first store that accepts them. The
// first-login time of an account already known to any store is kept.
func (m *Manager) Store(account *Account) error {
	if account == nil || account.Name == "" {
		return errors.New("account name is required")
	}

	account.LastModified = time.Now()
	previous, _ := m.Retrieve(account.Name)
	if err := prepareAccount(account, previous); err != nil {
		return err
	}

	// Try each store in order
	var lastErr error
	for _, store := range m.stores {
		err := store.Store(account)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Retrieve gets credentials from the first store that has them
func (m *Manager) Retrieve(name string) (*Account, error) {
	for _, store := range m.stores {
		if account, err := store.Retrieve(name); err == nil && account != nil {
			return account, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, name)
}

// RetrieveDefault returns the environment account if set, then the account
// chosen with SetDefault, then the first stored account by name
func (m *Manager) RetrieveDefault() (*Account, error) {
	// First try to get from environment
	for _, store := range m.stores {
		if envStore, ok := store.(*EnvironmentStore); ok {
			if account, err := envStore.Retrieve(""); err == nil {
				return account, nil
			}
		}
	}

	if name := m.DefaultName(); name != "" {
		if account, err := m.Retrieve(name); err == nil {
			return account, nil
		}
	}

	// Then try to get the first available account
	accounts, err := m.List()
	if err == nil && len(accounts) > 0 {
		return accounts[0], nil
	}

	return nil, ErrCredentialsNotFound
}

// SetDefault records name as the account used when none is given
func (m *Manager) SetDefault(name string) error {
	if m.configDir == "" {
		return ErrStoreUnavailable
	}
	if _, err := m.Retrieve(name); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(m.configDir, defaultFile), []byte(name), 0600); err != nil {
		return fmt.Errorf("failed to save default account: %w", err)
	}
	return nil
}

// DefaultName returns the account chosen with SetDefault, or ""
func (m *Manager) DefaultName() string {
	if m.configDir == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(m.configDir, defaultFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// List returns all stored accounts from all stores sorted by name. When
// several stores hold the same account the most recent copy wins.
func (m *Manager) List() ([]*Account, error) {
	accountMap := make(map[string]*Account)

	for _, store := range m.stores {
		accounts, err := store.List()
		if err != nil {
			continue
		}
		for _, account := range accounts {
			// Use the most recently modified version
			if existing, ok := accountMap[account.Name]; !ok || account.LastModified.After(existing.LastModified) {
				accountMap[account.Name] = account
			}
		}
	}

	result := make([]*Account, 0, len(accountMap))
	for _, account := range accountMap {
		result = append(result, account)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return result, nil
}

// Delete removes credentials from all stores
func (m *Manager) Delete(name string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(name); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil && !errors.Is(lastErr, ErrCredentialsNotFound) && !errors.Is(lastErr, ErrStoreUnavailable) {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w: %s", ErrCredentialsNotFound, name)
	}

	if m.DefaultName() == name {
		_ = os.Remove(filepath.Join(m.configDir, defaultFile))
	}
	return nil
}

// DeleteAll removes all stored credentials
func (m *Manager) DeleteAll() error {
	accounts, err := m.List()
	if err != nil {
		return err
	}

	for _, account := range accounts {
		_ = m.Delete(account.Name)
	}

	return nil
}

// ValidateToken rejects values that cannot be an auth_token cookie: the
// cookie is a 40 character hex string
func ValidateToken(token string) error {
	if token == "" {
		return fmt.Errorf("%w: auth token is required", ErrInvalidCredentials)
	}
	if len(token) < 20 || strings.ContainsAny(token, " ;=\t\n") {
		return fmt.Errorf("%w: that does not look like an auth_token value", ErrInvalidCredentials)
	}
	return nil
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "xmediagrab")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "xmediagrab")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "xmediagrab")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "xmediagrab")
		}
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// SanitizeAccount creates a copy of the account with the token masked
func SanitizeAccount(account *Account) *Account {
	if account == nil {
		return nil
	}

	return &Account{
		Name:         account.Name,
		AuthToken:    MaskToken(account.AuthToken),
		Domain:       account.Domain,
		UserAgent:    account.UserAgent,
		AddedAt:      account.AddedAt,
		LastModified: account.LastModified,
	}
}

// MaskToken masks all but the first 4 and last 4 characters of a token
func MaskToken(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
