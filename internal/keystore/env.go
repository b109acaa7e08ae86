package keystore

import "context"

// EnvStore serves keys supplied through configuration or the environment.
type EnvStore struct {
	keys []string
}

var _ Store = (*EnvStore)(nil)

// NewEnvStore returns a read-only store over keys.
func NewEnvStore(keys []string) *EnvStore {
	return &EnvStore{keys: Normalize(keys)}
}

func (s *EnvStore) Read(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]string(nil), s.keys...), nil
}

func (s *EnvStore) Write(context.Context, []string) error {
	return ErrReadOnly
}
