package store

import (
	"context"
	"database/sql"

	"github.com/georgysavva/scany/v2/sqlscan"
)

type SecretSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewSecretSQLiteStore(rdb, rwdb *sql.DB) *SecretSQLiteStore {
	return &SecretSQLiteStore{rdb, rwdb}
}

func (store *SecretSQLiteStore) CreateSecret(
	ctx context.Context,
	name, description, valueHash string,
) (*Secret, error) {
	s := &Secret{
		Name:        name,
		Description: description,
		ValueHash:   valueHash,
	}
	query := `insert into secrets (
		name,
		description,
		value_hash
	)
	values ($1, $2, $3)
	returning secret_id`
	if err := sqlscan.Get(
		ctx, store.rwdb, s, query,
		s.Name, s.Description, s.ValueHash,
	); err != nil {
		return nil, err
	}
	return s, nil
}

func (store *SecretSQLiteStore) ReadSecretByName(
	ctx context.Context,
	name string,
) (*Secret, error) {
	s := new(Secret)
	query := "select * from secrets where name = $1"
	if err := sqlscan.Get(ctx, store.rdb, s, query, name); err != nil {
		return nil, err
	}
	return s, nil
}

func (store *SecretSQLiteStore) UpdateSecret(
	ctx context.Context,
	id int64,
	description, valueHash string,
) error {
	query := `update secrets
	set description = $1,
		value_hash = $2
	where secret_id = $3`
	_, err := store.rwdb.ExecContext(ctx, query, description, valueHash, id)
	return err
}

func (store *SecretSQLiteStore) DeleteSecret(ctx context.Context, id int64) error {
	query := "delete from secrets where secret_id = $1"
	_, err := store.rwdb.ExecContext(ctx, query, id)
	return err
}

func (store *SecretSQLiteStore) ListSecrets(ctx context.Context) ([]*Secret, error) {
	query := "select * from secrets order by name"
	secrets := make([]*Secret, 0)
	err := sqlscan.Select(ctx, store.rdb, &secrets, query)
	return secrets, err
}
