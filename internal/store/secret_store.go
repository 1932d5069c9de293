package store

import "context"

// Secret is a named token injected into stage environments that
// declare it, e.g. the e2e auth tokens or the index upload token.
// Values are AES-encrypted at rest and only decrypted into a run's
// immutable context at execution time.
type Secret struct {
	SecretID    int64
	Name        string
	Description string
	// AES-encrypted value, never serialized
	ValueHash string `json:"-"`
}

type SecretStore interface {
	CreateSecret(context.Context, string, string, string) (*Secret, error)
	ReadSecretByName(context.Context, string) (*Secret, error)
	UpdateSecret(context.Context, int64, string, string) error
	DeleteSecret(context.Context, int64) error
	ListSecrets(context.Context) ([]*Secret, error)
}
