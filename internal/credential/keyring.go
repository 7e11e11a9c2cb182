package credential

import (
	"errors"
	"fmt"
	"sync"

	"github.com/99designs/keyring"
)

const serviceName = "scfet"

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("credential not found")

// Store persists small secrets by key.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// Keyring is a Store backed by the operating system keyring.
type Keyring struct {
	once sync.Once
	ring keyring.Keyring
	err  error
}

// NewKeyring returns a Keyring that opens the system keyring on first use.
func NewKeyring() *Keyring {
	return &Keyring{}
}

// open returns the configured keyring instance.
func (k *Keyring) open() (keyring.Keyring, error) {
	k.once.Do(func() {
		k.ring, k.err = keyring.Open(keyring.Config{
			ServiceName: serviceName,
			AllowedBackends: []keyring.BackendType{
				keyring.KeychainBackend,
				keyring.SecretServiceBackend,
				keyring.WinCredBackend,
				keyring.PassBackend,
				keyring.FileBackend,
			},
			FileDir:                  "~/.config/scfet/credentials",
			FilePasswordFunc:         keyring.FixedStringPrompt("scfet-file-key"),
			KeychainTrustApplication: true,
		})
		if k.err != nil {
			k.err = fmt.Errorf("opening keyring: %w", k.err)
		}
	})
	return k.ring, k.err
}

// Get retrieves a credential value by key from the system keyring.
func (k *Keyring) Get(key string) (string, error) {
	ring, err := k.open()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
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

// Delete removes a credential by key from the system keyring. Deleting a
// missing key is not an error.
func (k *Keyring) Delete(key string) error {
	ring, err := k.open()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}
