package store

import (
	"context"
	"database/sql"

	"github.com/georgysavva/scany/v2/sqlscan"
)

type PipelineSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewPipelineSQLiteStore(rdb, rwdb *sql.DB) *PipelineSQLiteStore {
	return &PipelineSQLiteStore{rdb, rwdb}
}

func (store *PipelineSQLiteStore) CreatePipeline(
	ctx context.Context,
	name, description, repository, scriptPath, mainBranch string,
) (*Pipeline, error) {
	p := &Pipeline{
		Name:        name,
		Description: description,
		Repository:  repository,
		ScriptPath:  scriptPath,
		MainBranch:  mainBranch,
	}
	query := `insert into pipelines (
		name,
		description,
		repository,
		script_path,
		main_branch
	)
	values ($1, $2, $3, $4, $5)
	returning pipeline_id`
	if err := sqlscan.Get(
		ctx, store.rwdb, p, query,
		p.Name,
		p.Description,
		p.Repository,
		p.ScriptPath,
		p.MainBranch,
	); err != nil {
		return nil, err
	}
	return p, nil
}

func (store *PipelineSQLiteStore) ReadPipelineByID(
	ctx context.Context,
	id int64,
) (*Pipeline, error) {
	p := &Pipeline{PipelineID: id}
	query := "select * from pipelines where pipeline_id = $1"
	if err := sqlscan.Get(ctx, store.rdb, p, query, p.PipelineID); err != nil {
		return nil, err
	}
	return p, nil
}

func (store *PipelineSQLiteStore) UpdatePipeline(
	ctx context.Context,
	id int64,
	name, description, repository, scriptPath, mainBranch string,
) error {
	query := `update pipelines
	set name = $1,
		description = $2,
		repository = $3,
		script_path = $4,
		main_branch = $5
	where pipeline_id = $6`
	_, err := store.rwdb.ExecContext(
		ctx, query,
		name, description, repository, scriptPath, mainBranch, id,
	)
	return err
}

func (store *PipelineSQLiteStore) UpdatePipelineSchedule(
	ctx context.Context,
	id int64,
	schedule, jobID *string,
) error {
	query := `update pipelines
	set schedule = $1,
		schedule_job_id = $2
	where pipeline_id = $3`
	_, err := store.rwdb.ExecContext(ctx, query, schedule, jobID, id)
	return err
}

func (store *PipelineSQLiteStore) UpdatePipelineScheduleJobID(
	ctx context.Context,
	id int64,
	jobID *string,
) error {
	query := `update pipelines
	set schedule_job_id = $1
	where pipeline_id = $2`
	_, err := store.rwdb.ExecContext(ctx, query, jobID, id)
	return err
}

func (store *PipelineSQLiteStore) DeletePipeline(ctx context.Context, id int64) error {
	query := "delete from pipelines where pipeline_id = $1"
	_, err := store.rwdb.ExecContext(ctx, query, id)
	return err
}

func (store *PipelineSQLiteStore) ListPipelines(ctx context.Context) ([]*Pipeline, error) {
	query := "select * from pipelines order by name"
	pipelines := make([]*Pipeline, 0)
	err := sqlscan.Select(ctx, store.rdb, &pipelines, query)
	return pipelines, err
}

func (store *PipelineSQLiteStore) ListScheduledPipelines(
	ctx context.Context,
) ([]*Pipeline, error) {
	query := `select * from pipelines
	where schedule is not null
	order by name`
	pipelines := make([]*Pipeline, 0)
	err := sqlscan.Select(ctx, store.rdb, &pipelines, query)
	return pipelines, err
}
