package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hakola/stageflow/internal/security"
	"github.com/hakola/stageflow/internal/store"
)

type SecretService struct {
	secretStore  store.SecretStore
	aesEncrypter security.Encrypter
}

func NewSecretService(
	secretStore store.SecretStore,
	aesEncrypter security.Encrypter,
) *SecretService {
	return &SecretService{secretStore: secretStore, aesEncrypter: aesEncrypter}
}

func (s *SecretService) CreateSecret(
	ctx context.Context,
	name, description, value string,
) (*store.Secret, error) {
	return s.secretStore.CreateSecret(
		ctx, name, description, s.aesEncrypter.EncryptAES(value))
}

func (s *SecretService) ListSecrets(ctx context.Context) ([]*store.Secret, error) {
	secrets, err := s.secretStore.ListSecrets(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return secrets, nil
}

func (s *SecretService) DeleteSecret(ctx context.Context, id int64) error {
	return s.secretStore.DeleteSecret(ctx, id)
}

// ResolveSecrets decrypts the named secrets into a plain map for a
// run's immutable context. A missing secret is an error: a stage that
// declares a secret cannot run without it.
func (s *SecretService) ResolveSecrets(
	ctx context.Context,
	names []string,
) (map[string]string, error) {
	resolved := make(map[string]string, len(names))
	for _, name := range names {
		secret, err := s.secretStore.ReadSecretByName(ctx, name)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("secret %q is not configured", name)
			}
			return nil, err
		}
		value, err := s.aesEncrypter.DecryptAES(secret.ValueHash)
		if err != nil {
			return nil, err
		}
		resolved[name] = string(value)
	}
	return resolved, nil
}
