package store

import (
	"context"
	"database/sql"

	"github.com/georgysavva/scany/v2/sqlscan"
)

type AgentSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewAgentSQLiteStore(rdb, rwdb *sql.DB) *AgentSQLiteStore {
	return &AgentSQLiteStore{rdb, rwdb}
}

func (store *AgentSQLiteStore) CreateAgent(
	ctx context.Context,
	name, description, osLabel, hostname, username, workspace, sshPrivateKeyHash string,
) (*Agent, error) {
	a := &Agent{
		Name:              name,
		Description:       description,
		OSLabel:           osLabel,
		Hostname:          hostname,
		Username:          username,
		Workspace:         workspace,
		SSHPrivateKeyHash: sshPrivateKeyHash,
	}
	query := `insert into agents (
		name,
		description,
		os_label,
		hostname,
		username,
		workspace,
		ssh_private_key_hash
	)
	values ($1, $2, $3, $4, $5, $6, $7)
	returning agent_id`
	if err := sqlscan.Get(
		ctx, store.rwdb, a, query,
		a.Name,
		a.Description,
		a.OSLabel,
		a.Hostname,
		a.Username,
		a.Workspace,
		a.SSHPrivateKeyHash,
	); err != nil {
		return nil, err
	}
	return a, nil
}

func (store *AgentSQLiteStore) ReadAgentByID(ctx context.Context, id int64) (*Agent, error) {
	a := &Agent{AgentID: id}
	query := "select * from agents where agent_id = $1"
	if err := sqlscan.Get(ctx, store.rdb, a, query, a.AgentID); err != nil {
		return nil, err
	}
	return a, nil
}

func (store *AgentSQLiteStore) ReadAgentByOSLabel(
	ctx context.Context,
	osLabel string,
) (*Agent, error) {
	a := new(Agent)
	query := `select * from agents
	where os_label = $1
	order by agent_id limit 1`
	if err := sqlscan.Get(ctx, store.rdb, a, query, osLabel); err != nil {
		return nil, err
	}
	return a, nil
}

func (store *AgentSQLiteStore) UpdateAgent(
	ctx context.Context,
	id int64,
	name, description, osLabel, hostname, username, workspace string,
) error {
	query := `update agents
	set name = $1,
		description = $2,
		os_label = $3,
		hostname = $4,
		username = $5,
		workspace = $6
	where agent_id = $7`
	_, err := store.rwdb.ExecContext(
		ctx, query,
		name, description, osLabel, hostname, username, workspace, id,
	)
	return err
}

func (store *AgentSQLiteStore) DeleteAgent(ctx context.Context, id int64) error {
	query := "delete from agents where agent_id = $1"
	_, err := store.rwdb.ExecContext(ctx, query, id)
	return err
}

func (store *AgentSQLiteStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	query := "select * from agents order by name"
	agents := make([]*Agent, 0)
	err := sqlscan.Select(ctx, store.rdb, &agents, query)
	return agents, err
}
