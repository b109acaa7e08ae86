package keystore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestParseKeys(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "single", input: "sk-1", want: []string{"sk-1"}},
		{name: "comma separated", input: "sk-1,sk-2, sk-3 ", want: []string{"sk-1", "sk-2", "sk-3"}},
		{name: "blank entries dropped", input: "sk-1,, ,sk-2,", want: []string{"sk-1", "sk-2"}},
		{name: "duplicates keep first position", input: "sk-2,sk-1,sk-2", want: []string{"sk-2", "sk-1"}},
		{name: "newlines", input: "sk-1\r\nsk-2\n\n", want: []string{"sk-1", "sk-2"}},
		{name: "empty", input: "", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseKeys(tt.input))
		})
	}
}

func TestEnvStore(t *testing.T) {
	store := NewEnvStore([]string{"sk-1", " sk-1 ", "sk-2"})

	keys, err := store.Read(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"sk-1", "sk-2"}, keys)

	assert.ErrorIs(t, store.Write(t.Context(), []string{"sk-3"}), ErrReadOnly)

	_, err = Add(t.Context(), store, "sk-3")
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "keys")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	keys, err := store.Read(t.Context())
	require.NoError(t, err)
	assert.Empty(t, keys, "missing file is an empty store")

	added, err := Add(t.Context(), store, "sk-1")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = Add(t.Context(), store, "sk-2")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = Add(t.Context(), store, "sk-1")
	require.NoError(t, err)
	assert.False(t, added)

	keys, err = store.Read(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"sk-1", "sk-2"}, keys)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-1\nsk-2\n", string(data))

	require.NoError(t, store.Write(t.Context(), nil))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, store.Write(t.Context(), nil), "clearing twice is fine")
}

func TestFileStore_EmptyPath(t *testing.T) {
	_, err := NewFileStore("")
	assert.Error(t, err)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore("msgbridge-test")
	require.NoError(t, err)

	keys, err := store.Read(t.Context())
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, store.Write(t.Context(), []string{"sk-1", "sk-2", "sk-1"}))

	keys, err = store.Read(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"sk-1", "sk-2"}, keys)

	secret, err := keyring.Get("msgbridge-test", keyringUser)
	require.NoError(t, err)
	assert.Equal(t, "sk-1\nsk-2", secret)

	require.NoError(t, store.Write(t.Context(), []string{}))
	keys, err = store.Read(t.Context())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestAdd_RejectsBlank(t *testing.T) {
	store := NewEnvStore(nil)
	_, err := Add(t.Context(), store, "  ")
	assert.Error(t, err)
}
