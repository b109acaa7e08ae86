// Package keystore persists the upstream API key list.
//
// Keys come from one of three backends: the environment (read-only), a local file
// with one key per line, or the OS keyring. All backends return keys in the order they
// were added, without blanks or duplicates.
package keystore

import (
	"context"
	"errors"
	"strings"
)

// ErrReadOnly is returned when writing to a store that cannot be modified.
var ErrReadOnly = errors.New("key store is read-only")

// Store reads and replaces the persisted key list.
type Store interface {
	Read(ctx context.Context) ([]string, error)
	// Write replaces all stored keys. An empty list clears the store.
	Write(ctx context.Context, keys []string) error
}

// ParseKeys splits a comma- or newline-separated key list. Blank entries are dropped
// and duplicates keep their first position.
func ParseKeys(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	return Normalize(fields)
}

// Normalize trims keys, dropping blanks and later duplicates.
func Normalize(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	result := make([]string, 0, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, key)
	}
	return result
}

// Add appends key to the store unless it is already present. It reports whether the
// key was new.
func Add(ctx context.Context, store Store, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, errors.New("key cannot be empty")
	}

	keys, err := store.Read(ctx)
	if err != nil {
		return false, err
	}
	for _, existing := range keys {
		if existing == key {
			return false, nil
		}
	}

	if err := store.Write(ctx, append(keys, key)); err != nil {
		return false, err
	}
	return true, nil
}
