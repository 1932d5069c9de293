package store

import (
	"context"
	"time"
)

type StageStatus string

const (
	StagePending StageStatus = "pending"
	StageRunning StageStatus = "running"
	StagePassed  StageStatus = "passed"
	StageFailed  StageStatus = "failed"
	StageSkipped StageStatus = "skipped"
)

// StageResult is the recorded outcome of one stage within a run.
type StageResult struct {
	StageResultID int64
	StageRunID    int64
	Name          string
	Status        StageStatus
	StartedOn     *time.Time
	EndedOn       *time.Time
}

// CellResult is the recorded outcome of one matrix cell of a stage.
// Logs are kept per cell so a failing cell never hides a sibling's
// output.
type CellResult struct {
	CellResultID      int64
	CellStageResultID int64
	OS                string
	Version           string
	Status            StageStatus
	CacheKey          *string
	CacheHit          bool
	Log               *string
	StartedOn         *time.Time
	EndedOn           *time.Time
}

type StageStore interface {
	CreateStageResult(context.Context, int64, string) (*StageResult, error)
	UpdateStageResult(context.Context, int64, StageStatus, *time.Time, *time.Time) error
	ListRunStageResults(context.Context, int64) ([]StageResult, error)

	CreateCellResult(context.Context, int64, string, string) (*CellResult, error)
	UpdateCellResultStarted(context.Context, int64, *string, bool, *time.Time) error
	UpdateCellResultEnded(context.Context, int64, StageStatus, *string, *time.Time) error
	ListStageCellResults(context.Context, int64) ([]CellResult, error)
}
