package credential

import (
	"errors"
	"fmt"
	"os"

	"github.com/99designs/keyring"
)

const serviceName = "ideaboard"

// TokenKey is the keyring entry holding the API bearer token.
const TokenKey = "api-token"

// tokenEnv overrides the keyring when set.
const tokenEnv = "IDEABOARD_API_TOKEN"

// ErrNotFound is returned when the keyring holds no value for a key.
var ErrNotFound = keyring.ErrKeyNotFound

// Keyring stores credentials. The zero value uses the platform backends;
// tests and headless hosts can pin Backends and FileDir.
type Keyring struct {
	Backends []keyring.BackendType
	FileDir  string
}

// Default is the keyring used by Get, Set and Delete.
var Default = &Keyring{}

// open returns a configured keyring instance.
func (k *Keyring) open() (keyring.Keyring, error) {
	backends := k.Backends
	if len(backends) == 0 {
		backends = []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		}
	}
	dir := k.FileDir
	if dir == "" {
		dir = "~/.config/ideaboard/credentials"
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:              serviceName,
		AllowedBackends:          backends,
		FileDir:                  dir,
		FilePasswordFunc:         keyring.FixedStringPrompt("ideaboard-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key.
func (k *Keyring) Get(key string) (string, error) {
	ring, err := k.open()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key.
func (k *Keyring) Set(key string, value string) error {
	ring, err := k.open()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key.
func (k *Keyring) Delete(key string) error {
	ring, err := k.open()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) { return Default.Get(key) }

// Set stores a credential value by key in the system keyring.
func Set(key, value string) error { return Default.Set(key, value) }

// Delete removes a credential by key from the system keyring.
func Delete(key string) error { return Default.Delete(key) }

// Token resolves the API token: an explicit value wins, then the
// IDEABOARD_API_TOKEN environment variable, then the keyring. A missing
// keyring entry yields "" without error so an unauthenticated dev server
// still works.
func (k *Keyring) Token(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if v := os.Getenv(tokenEnv); v != "" {
		return v, nil
	}
	token, err := k.Get(TokenKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	return token, err
}
