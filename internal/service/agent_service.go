package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hakola/stageflow/internal/security"
	"github.com/hakola/stageflow/internal/store"
)

type AgentService struct {
	agentStore   store.AgentStore
	aesEncrypter security.Encrypter
}

func NewAgentService(
	agentStore store.AgentStore,
	aesEncrypter security.Encrypter,
) *AgentService {
	return &AgentService{agentStore: agentStore, aesEncrypter: aesEncrypter}
}

func (s *AgentService) CreateAgent(
	ctx context.Context,
	name, description, osLabel, hostname, username, workspace, privateKey string,
) (*store.Agent, error) {
	return s.agentStore.CreateAgent(
		ctx,
		name,
		description,
		osLabel,
		hostname,
		username,
		workspace,
		s.aesEncrypter.EncryptAES(privateKey),
	)
}

func (s *AgentService) GetAgentByID(ctx context.Context, id int64) (*store.Agent, error) {
	return s.agentStore.ReadAgentByID(ctx, id)
}

func (s *AgentService) ReadAgentByOSLabel(
	ctx context.Context,
	osLabel string,
) (*store.Agent, error) {
	return s.agentStore.ReadAgentByOSLabel(ctx, osLabel)
}

func (s *AgentService) UpdateAgent(
	ctx context.Context,
	id int64,
	name, description, osLabel, hostname, username, workspace string,
) error {
	return s.agentStore.UpdateAgent(
		ctx, id, name, description, osLabel, hostname, username, workspace)
}

func (s *AgentService) DeleteAgent(ctx context.Context, id int64) error {
	return s.agentStore.DeleteAgent(ctx, id)
}

func (s *AgentService) ListAgents(ctx context.Context) ([]*store.Agent, error) {
	agents, err := s.agentStore.ListAgents(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return agents, nil
}

// TestConnection dials the agent over SSH with its stored key and
// closes the connection immediately.
func (s *AgentService) TestConnection(ctx context.Context, id int64) error {
	agent, err := s.agentStore.ReadAgentByID(ctx, id)
	if err != nil {
		return err
	}
	privateKey, err := s.aesEncrypter.DecryptAES(agent.SSHPrivateKeyHash)
	if err != nil {
		return err
	}
	client, err := connectSSH(agent.Username, agent.Hostname, privateKey)
	if err != nil {
		return err
	}
	return client.Close()
}
