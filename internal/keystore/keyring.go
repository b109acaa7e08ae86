package keystore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// keyringUser is the account name the key list is stored under.
const keyringUser = "api-keys"

// KeyringStore keeps the key list as a single newline-separated OS keyring secret.
type KeyringStore struct {
	service string
}

var _ Store = (*KeyringStore)(nil)

// NewKeyringStore returns a store using the given keyring service name.
func NewKeyringStore(service string) (*KeyringStore, error) {
	if service == "" {
		return nil, errors.New("keyring service cannot be empty")
	}
	return &KeyringStore{service: service}, nil
}

func (s *KeyringStore) Read(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	secret, err := keyring.Get(s.service, keyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading keyring: %w", err)
	}
	return ParseKeys(secret), nil
}

// Write replaces the secret. Clearing the store deletes the keyring entry.
func (s *KeyringStore) Write(ctx context.Context, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	keys = Normalize(keys)
	if len(keys) == 0 {
		if err := keyring.Delete(s.service, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("deleting keyring entry: %w", err)
		}
		return nil
	}

	if err := keyring.Set(s.service, keyringUser, strings.Join(keys, "\n")); err != nil {
		return fmt.Errorf("writing keyring: %w", err)
	}
	return nil
}
