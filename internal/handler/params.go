package handler

type PipelineParams struct {
	PipelineID  int64   `param:"pipeline_id" json:"pipeline_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Repository  string  `json:"repository"`
	ScriptPath  string  `json:"script_path"`
	MainBranch  string  `json:"main_branch"`
	Schedule    *string `json:"schedule"`
}

type RunParams struct {
	PipelineID int64 `param:"pipeline_id"`
	RunID      int64 `param:"run_id"`
	Page       int64 `query:"page"`
}

// WebhookParams is the payload of the external build-trigger endpoint:
// a bare branch name, token carried as a query parameter.
type WebhookParams struct {
	PipelineID int64  `param:"pipeline_id"`
	Branch     string `json:"branch"`
	Token      string `query:"token"`
}

// EventParams is the payload of the repository webhook endpoint.
type EventParams struct {
	PipelineID int64  `param:"pipeline_id"`
	Kind       string `json:"kind"`
	Ref        string `json:"ref"`
	SHA        string `json:"sha"`
}

type AgentParams struct {
	AgentID       int64  `param:"agent_id" json:"agent_id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	OSLabel       string `json:"os_label"`
	Hostname      string `json:"hostname"`
	Username      string `json:"username"`
	Workspace     string `json:"workspace"`
	SSHPrivateKey string `json:"ssh_private_key"`
}

type SecretParams struct {
	SecretID    int64  `param:"secret_id" json:"secret_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Value       string `json:"value"`
}

type ConfigParams struct {
	QueueSize                  int64 `json:"queue_size"`
	DefaultStageTimeoutSeconds int64 `json:"default_stage_timeout_seconds"`
	DefaultStepTimeoutSeconds  int64 `json:"default_step_timeout_seconds"`
	CloneTimeoutSeconds        int64 `json:"clone_timeout_seconds"`
}
