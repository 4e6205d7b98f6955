package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000

	// vaultVersion 2 stores the cookie domain and first-login time per token
	vaultVersion = 2
)

// envPassphrase overrides the generated key file
const envPassphrase = "XMEDIAGRAB_PASSPHRASE"

// EncryptedFileStore keeps auth tokens in an AES-GCM encrypted file next to
// the configuration. It is the store used when no keychain is available.
type EncryptedFileStore struct {
	path       string
	passphrase string
	mu         sync.RWMutex
}

// vaultFile is the on-disk envelope. Only the salt is readable without the
// passphrase.
type vaultFile struct {
	Version  int       `json:"version"`
	Salt     string    `json:"salt"`
	Tokens   string    `json:"tokens"`
	Modified time.Time `json:"modified"`
}

// vault is the decrypted content: one record per account name
type vault struct {
	salt     []byte
	Accounts map[string]Account `json:"accounts"`
}

// NewEncryptedFileStore opens the token file at path, creating its
// directory and key file on first use
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	store := &EncryptedFileStore{path: path}

	// Get or create passphrase
	passphrase, err := store.getPassphrase()
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	store.passphrase = passphrase

	return store, nil
}

// Store validates the token and saves it. Replacing a token keeps the time
// the account was first added.
func (e *EncryptedFileStore) Store(account *Account) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if account == nil || account.Name == "" {
		return ErrInvalidCredentials
	}

	// Load existing tokens
	v, err := e.load()
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load existing tokens: %w", err)
	}
	if v == nil {
		v = &vault{Accounts: make(map[string]Account)}
	}

	// Update account
	record := *account
	var previous *Account
	if old, ok := v.Accounts[record.Name]; ok {
		previous = &old
	}
	if err := prepareAccount(&record, previous); err != nil {
		return err
	}
	v.Accounts[record.Name] = record

	// Save tokens
	return e.save(v)
}

// Retrieve returns the account stored under name
func (e *EncryptedFileStore) Retrieve(name string) (*Account, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if name == "" {
		return nil, ErrInvalidCredentials
	}

	v, err := e.load()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}

	account, ok := v.Accounts[name]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &account, nil
}

// List returns every stored account
func (e *EncryptedFileStore) List() ([]*Account, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	v, err := e.load()
	if err != nil {
		if os.IsNotExist(err) {
			return []*Account{}, nil
		}
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}

	accounts := make([]*Account, 0, len(v.Accounts))
	for _, account := range v.Accounts {
		acc := account
		accounts = append(accounts, &acc)
	}
	return accounts, nil
}

// Delete removes the account stored under name
func (e *EncryptedFileStore) Delete(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if name == "" {
		return ErrInvalidCredentials
	}

	v, err := e.load()
	if err != nil {
		if os.IsNotExist(err) {
			return ErrCredentialsNotFound
		}
		return fmt.Errorf("failed to load tokens: %w", err)
	}

	if _, ok := v.Accounts[name]; !ok {
		return ErrCredentialsNotFound
	}
	delete(v.Accounts, name)

	// No tokens left, remove the file
	if len(v.Accounts) == 0 {
		return os.Remove(e.path)
	}

	return e.save(v)
}

// Exists reports whether a token is stored under name
func (e *EncryptedFileStore) Exists(name string) bool {
	account, err := e.Retrieve(name)
	return err == nil && account != nil
}

// load reads and decrypts the token file
func (e *EncryptedFileStore) load() (*vault, error) {
	// Read file
	content, err := os.ReadFile(e.path)
	if err != nil {
		return nil, err
	}

	// Parse envelope
	var file vaultFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	if file.Version > vaultVersion {
		return nil, fmt.Errorf("token file version %d is newer than this build supports", file.Version)
	}

	// Decode salt and ciphertext
	salt, err := base64.StdEncoding.DecodeString(file.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(file.Tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tokens: %w", err)
	}

	// Derive key
	key := pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)

	// Decrypt
	plain, err := decrypt(sealed, key)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt tokens: %w", err)
	}

	// Parse accounts
	v := &vault{salt: salt}
	if err := json.Unmarshal(plain, v); err != nil {
		return nil, fmt.Errorf("failed to parse accounts: %w", err)
	}
	if v.Accounts == nil {
		v.Accounts = make(map[string]Account)
	}
	return v, nil
}

// save encrypts v and replaces the token file atomically
func (e *EncryptedFileStore) save(v *vault) error {
	// Generate new salt if needed
	if len(v.salt) == 0 {
		v.salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, v.salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
	}

	// Derive key
	key := pbkdf2.Key([]byte(e.passphrase), v.salt, iterations, keySize, sha256.New)

	// Marshal accounts
	plain, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal accounts: %w", err)
	}

	// Encrypt
	sealed, err := encrypt(plain, key)
	if err != nil {
		return fmt.Errorf("failed to encrypt tokens: %w", err)
	}

	content, err := json.MarshalIndent(vaultFile{
		Version:  vaultVersion,
		Salt:     base64.StdEncoding.EncodeToString(v.salt),
		Tokens:   base64.StdEncoding.EncodeToString(sealed),
		Modified: time.Now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token file: %w", err)
	}

	// Write to temporary file first
	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	// Rename to final location
	return os.Rename(tmp, e.path)
}

// getPassphrase returns XMEDIAGRAB_PASSPHRASE or the key file beside the
// store, generating the key file on first use
func (e *EncryptedFileStore) getPassphrase() (string, error) {
	// First check environment variable
	if pass := os.Getenv(envPassphrase); pass != "" {
		return pass, nil
	}

	keyFile := filepath.Join(filepath.Dir(e.path), ".passphrase")

	// Try to read existing passphrase
	if content, err := os.ReadFile(keyFile); err == nil && len(content) > 0 {
		return string(content), nil
	}

	// Generate new passphrase
	passphrase, err := generatePassphrase()
	if err != nil {
		return "", err
	}

	// Save it
	if err := os.WriteFile(keyFile, []byte(passphrase), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}

	return passphrase, nil
}

// generatePassphrase returns 32 random bytes, URL-safe encoded
func generatePassphrase() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// encrypt seals plaintext with AES-GCM, prefixing the nonce
func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt opens a nonce-prefixed AES-GCM ciphertext
func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
