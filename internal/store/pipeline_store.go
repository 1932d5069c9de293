package store

import (
	"context"
)

type Pipeline struct {
	PipelineID  int64
	Name        string
	Description string
	// Git repository path
	Repository string
	// Workflow script path within the repository
	ScriptPath string
	// Branch the daily scheduled run checks out
	MainBranch string
	// Scheduled run in cron syntax, nil when disabled
	Schedule *string
	// Scheduled job ID
	ScheduleJobID *string
}

type PipelineStore interface {
	CreatePipeline(context.Context, string, string, string, string, string) (*Pipeline, error)
	ReadPipelineByID(context.Context, int64) (*Pipeline, error)
	UpdatePipeline(context.Context, int64, string, string, string, string, string) error
	UpdatePipelineSchedule(context.Context, int64, *string, *string) error
	UpdatePipelineScheduleJobID(context.Context, int64, *string) error
	DeletePipeline(context.Context, int64) error
	ListPipelines(context.Context) ([]*Pipeline, error)
	ListScheduledPipelines(context.Context) ([]*Pipeline, error)
}
