package auth

import (
	"os"
	"time"
)

const (
	envAuthToken = "XMEDIAGRAB_AUTH_TOKEN"
	envAccount   = "XMEDIAGRAB_ACCOUNT"
	envUserAgent = "XMEDIAGRAB_USER_AGENT"
)

// EnvironmentStore implements CredentialStore over environment variables.
// It is read-only and holds at most one account.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment account. An empty name matches it, as
// does the name in XMEDIAGRAB_ACCOUNT (default "env").
func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	token := os.Getenv(envAuthToken)
	if token == "" {
		return nil, ErrCredentialsNotFound
	}

	envName := os.Getenv(envAccount)
	if envName == "" {
		envName = "env"
	}
	if name != "" && name != envName {
		return nil, ErrCredentialsNotFound
	}

	return &Account{
		Name:         envName,
		AuthToken:    token,
		UserAgent:    os.Getenv(envUserAgent),
		LastModified: time.Now(),
	}, nil
}

// List returns a single account if the token variable is set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if the named environment account is present
func (e *EnvironmentStore) Exists(name string) bool {
	_, err := e.Retrieve(name)
	return err == nil
}
