package storage

import (
	"context"
	"database/sql"
)

const createProcessingRun = `-- name: CreateProcessingRun :exec
INSERT INTO processing_runs (job_id, subsidiary_id, run_id)
VALUES (?, ?, ?)
`

type CreateProcessingRunParams struct {
	JobID        int64
	SubsidiaryID int64
	RunID        string
}

func (q *Queries) CreateProcessingRun(ctx context.Context, arg CreateProcessingRunParams) error {
	_, err := q.db.ExecContext(ctx, createProcessingRun, arg.JobID, arg.SubsidiaryID, arg.RunID)
	return err
}

const completeProcessingRun = `-- name: CompleteProcessingRun :exec
UPDATE processing_runs SET
    matched_count = ?,
    unmatched_count = ?,
    total_summit_amount = ?,
    unmatched_summit_total = ?,
    original_total = ?,
    processed_total = ?,
    difference = ?,
    verification_passed = ?,
    unmatched_json = ?,
    completed_at = ?
WHERE job_id = ? AND subsidiary_id = ? AND run_id = ?
`

type CompleteProcessingRunParams struct {
	MatchedCount         int64
	UnmatchedCount       int64
	TotalSummitAmount    string
	UnmatchedSummitTotal string
	OriginalTotal        string
	ProcessedTotal       string
	Difference           string
	VerificationPassed   bool
	UnmatchedJson        string
	CompletedAt          sql.NullTime
	JobID                int64
	SubsidiaryID         int64
	RunID                string
}

func (q *Queries) CompleteProcessingRun(ctx context.Context, arg CompleteProcessingRunParams) error {
	_, err := q.db.ExecContext(ctx, completeProcessingRun,
		arg.MatchedCount,
		arg.UnmatchedCount,
		arg.TotalSummitAmount,
		arg.UnmatchedSummitTotal,
		arg.OriginalTotal,
		arg.ProcessedTotal,
		arg.Difference,
		arg.VerificationPassed,
		arg.UnmatchedJson,
		arg.CompletedAt,
		arg.JobID,
		arg.SubsidiaryID,
		arg.RunID,
	)
	return err
}

const processingRunColumns = `job_id, subsidiary_id, run_id, matched_count, unmatched_count, total_summit_amount,
    unmatched_summit_total, original_total, processed_total, difference, verification_passed,
    unmatched_json, created_at, completed_at, synced_at`

const getProcessingRun = `-- name: GetProcessingRun :one
SELECT ` + processingRunColumns + `
FROM processing_runs
WHERE job_id = ? AND subsidiary_id = ?
`

func (q *Queries) GetProcessingRun(ctx context.Context, arg DatasetParams) (ProcessingRun, error) {
	row := q.db.QueryRowContext(ctx, getProcessingRun, arg.JobID, arg.SubsidiaryID)
	return scanProcessingRun(row)
}

const listUnsyncedRuns = `-- name: ListUnsyncedRuns :many
SELECT ` + processingRunColumns + `
FROM processing_runs
WHERE completed_at IS NOT NULL AND synced_at IS NULL
ORDER BY completed_at
LIMIT ?
`

func (q *Queries) ListUnsyncedRuns(ctx context.Context, limit int64) ([]ProcessingRun, error) {
	rows, err := q.db.QueryContext(ctx, listUnsyncedRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ProcessingRun
	for rows.Next() {
		i, err := scanProcessingRun(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markRunSynced = `-- name: MarkRunSynced :execrows
UPDATE processing_runs SET synced_at = ?
WHERE job_id = ? AND subsidiary_id = ? AND run_id = ?
`

type MarkRunSyncedParams struct {
	SyncedAt     sql.NullTime
	JobID        int64
	SubsidiaryID int64
	RunID        string
}

func (q *Queries) MarkRunSynced(ctx context.Context, arg MarkRunSyncedParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, markRunSynced, arg.SyncedAt, arg.JobID, arg.SubsidiaryID, arg.RunID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteProcessingRun = `-- name: DeleteProcessingRun :execrows
DELETE FROM processing_runs
WHERE job_id = ? AND subsidiary_id = ?
`

func (q *Queries) DeleteProcessingRun(ctx context.Context, arg DatasetParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteProcessingRun, arg.JobID, arg.SubsidiaryID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProcessingRun(row rowScanner) (ProcessingRun, error) {
	var i ProcessingRun
	err := row.Scan(
		&i.JobID,
		&i.SubsidiaryID,
		&i.RunID,
		&i.MatchedCount,
		&i.UnmatchedCount,
		&i.TotalSummitAmount,
		&i.UnmatchedSummitTotal,
		&i.OriginalTotal,
		&i.ProcessedTotal,
		&i.Difference,
		&i.VerificationPassed,
		&i.UnmatchedJson,
		&i.CreatedAt,
		&i.CompletedAt,
		&i.SyncedAt,
	)
	return i, err
}
