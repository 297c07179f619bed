package storage

import (
	"context"
)

const createMatchResult = `-- name: CreateMatchResult :exec
INSERT INTO match_results (
    job_id, subsidiary_id, client_id, status, total_received, installment_amount, remaining_amount
) VALUES (?, ?, ?, ?, ?, ?, ?)
`

type CreateMatchResultParams struct {
	JobID             int64
	SubsidiaryID      int64
	ClientID          string
	Status            string
	TotalReceived     string
	InstallmentAmount string
	RemainingAmount   string
}

func (q *Queries) CreateMatchResult(ctx context.Context, arg CreateMatchResultParams) error {
	_, err := q.db.ExecContext(ctx, createMatchResult,
		arg.JobID,
		arg.SubsidiaryID,
		arg.ClientID,
		arg.Status,
		arg.TotalReceived,
		arg.InstallmentAmount,
		arg.RemainingAmount,
	)
	return err
}

const countMatchResults = `-- name: CountMatchResults :one
SELECT COUNT(*) FROM match_results
WHERE job_id = ? AND subsidiary_id = ?
`

func (q *Queries) CountMatchResults(ctx context.Context, arg DatasetParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, countMatchResults, arg.JobID, arg.SubsidiaryID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const listMatchResults = `-- name: ListMatchResults :many
SELECT id, job_id, subsidiary_id, client_id, status, total_received, installment_amount, remaining_amount, created_at
FROM match_results
WHERE job_id = ? AND subsidiary_id = ?
ORDER BY id
`

func (q *Queries) ListMatchResults(ctx context.Context, arg DatasetParams) ([]MatchResult, error) {
	rows, err := q.db.QueryContext(ctx, listMatchResults, arg.JobID, arg.SubsidiaryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MatchResult
	for rows.Next() {
		var i MatchResult
		if err := rows.Scan(
			&i.ID,
			&i.JobID,
			&i.SubsidiaryID,
			&i.ClientID,
			&i.Status,
			&i.TotalReceived,
			&i.InstallmentAmount,
			&i.RemainingAmount,
			&i.CreatedAt,
		); err != nil {
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

const deleteMatchResults = `-- name: DeleteMatchResults :execrows
DELETE FROM match_results
WHERE job_id = ? AND subsidiary_id = ?
`

func (q *Queries) DeleteMatchResults(ctx context.Context, arg DatasetParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteMatchResults, arg.JobID, arg.SubsidiaryID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
