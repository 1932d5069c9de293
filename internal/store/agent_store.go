package store

import "context"

// Agent is a remote build environment reachable over SSH. Matrix
// cells are placed on an agent whose OS label matches the cell's OS;
// the empty label matches the default agent.
type Agent struct {
	AgentID     int64
	Name        string
	Description string
	// Label as used in workflow matrices, e.g. ubuntu-latest
	OSLabel   string
	Hostname  string
	Username  string
	Workspace string
	// AES-encrypted SSH private key, never serialized
	SSHPrivateKeyHash string `json:"-"`
}

type AgentStore interface {
	CreateAgent(context.Context, string, string, string, string, string, string, string) (*Agent, error)
	ReadAgentByID(context.Context, int64) (*Agent, error)
	ReadAgentByOSLabel(context.Context, string) (*Agent, error)
	UpdateAgent(context.Context, int64, string, string, string, string, string, string) error
	DeleteAgent(context.Context, int64) error
	ListAgents(context.Context) ([]*Agent, error)
}
