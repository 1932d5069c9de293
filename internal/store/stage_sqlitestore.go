package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/hakola/stageflow/internal"
)

type StageSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewStageSQLiteStore(rdb, rwdb *sql.DB) *StageSQLiteStore {
	return &StageSQLiteStore{rdb, rwdb}
}

func (store *StageSQLiteStore) CreateStageResult(
	ctx context.Context,
	runID int64,
	name string,
) (*StageResult, error) {
	sr := &StageResult{
		StageRunID: runID,
		Name:       name,
		Status:     StagePending,
	}
	query := `insert into stage_results (
		stage_run_id,
		name,
		status
	)
	values ($1, $2, $3)
	returning stage_result_id`
	if err := sqlscan.Get(
		ctx, store.rwdb, sr, query,
		sr.StageRunID, sr.Name, sr.Status,
	); err != nil {
		return nil, err
	}
	return sr, nil
}

func (store *StageSQLiteStore) UpdateStageResult(
	ctx context.Context,
	id int64,
	status StageStatus,
	startedOn, endedOn *time.Time,
) error {
	query := `update stage_results
	set status = $1,
		started_on = $2,
		ended_on = $3
	where stage_result_id = $4`
	_, err := store.rwdb.ExecContext(
		ctx, query,
		status,
		formatTimestamp(startedOn),
		formatTimestamp(endedOn),
		id,
	)
	return err
}

func (store *StageSQLiteStore) ListRunStageResults(
	ctx context.Context,
	runID int64,
) ([]StageResult, error) {
	query := `select * from stage_results
	where stage_run_id = $1
	order by stage_result_id`
	results := make([]StageResult, 0)
	err := sqlscan.Select(ctx, store.rdb, &results, query, runID)
	return results, err
}

func (store *StageSQLiteStore) CreateCellResult(
	ctx context.Context,
	stageResultID int64,
	osName, version string,
) (*CellResult, error) {
	cr := &CellResult{
		CellStageResultID: stageResultID,
		OS:                osName,
		Version:           version,
		Status:            StagePending,
	}
	query := `insert into cell_results (
		cell_stage_result_id,
		os,
		version,
		status
	)
	values ($1, $2, $3, $4)
	returning cell_result_id`
	if err := sqlscan.Get(
		ctx, store.rwdb, cr, query,
		cr.CellStageResultID, cr.OS, cr.Version, cr.Status,
	); err != nil {
		return nil, err
	}
	return cr, nil
}

func (store *StageSQLiteStore) UpdateCellResultStarted(
	ctx context.Context,
	id int64,
	cacheKey *string,
	cacheHit bool,
	startedOn *time.Time,
) error {
	query := `update cell_results
	set status = $1,
		cache_key = $2,
		cache_hit = $3,
		started_on = $4
	where cell_result_id = $5`
	_, err := store.rwdb.ExecContext(
		ctx, query,
		StageRunning,
		cacheKey,
		cacheHit,
		formatTimestamp(startedOn),
		id,
	)
	return err
}

func (store *StageSQLiteStore) UpdateCellResultEnded(
	ctx context.Context,
	id int64,
	status StageStatus,
	cellLog *string,
	endedOn *time.Time,
) error {
	query := `update cell_results
	set status = $1,
		log = $2,
		ended_on = $3
	where cell_result_id = $4`
	_, err := store.rwdb.ExecContext(
		ctx, query,
		status,
		cellLog,
		formatTimestamp(endedOn),
		id,
	)
	return err
}

func (store *StageSQLiteStore) ListStageCellResults(
	ctx context.Context,
	stageResultID int64,
) ([]CellResult, error) {
	query := `select * from cell_results
	where cell_stage_result_id = $1
	order by cell_result_id`
	results := make([]CellResult, 0)
	err := sqlscan.Select(ctx, store.rdb, &results, query, stageResultID)
	return results, err
}

func formatTimestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(internal.DBTimestampLayout)
	return &s
}
