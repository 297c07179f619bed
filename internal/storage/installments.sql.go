package storage

import (
	"context"
)

const createInstallmentRecord = `-- name: CreateInstallmentRecord :exec
INSERT INTO installment_records (
    job_id, subsidiary_id, client_id, region, amount, line_count
) VALUES (?, ?, ?, ?, ?, ?)
`

type CreateInstallmentRecordParams struct {
	JobID        int64
	SubsidiaryID int64
	ClientID     string
	Region       string
	Amount       string
	LineCount    int64
}

func (q *Queries) CreateInstallmentRecord(ctx context.Context, arg CreateInstallmentRecordParams) error {
	_, err := q.db.ExecContext(ctx, createInstallmentRecord,
		arg.JobID,
		arg.SubsidiaryID,
		arg.ClientID,
		arg.Region,
		arg.Amount,
		arg.LineCount,
	)
	return err
}

const countInstallmentRecords = `-- name: CountInstallmentRecords :one
SELECT COUNT(*) FROM installment_records
WHERE job_id = ? AND subsidiary_id = ?
`

func (q *Queries) CountInstallmentRecords(ctx context.Context, arg DatasetParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, countInstallmentRecords, arg.JobID, arg.SubsidiaryID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const listInstallmentRecords = `-- name: ListInstallmentRecords :many
SELECT id, job_id, subsidiary_id, client_id, region, amount, line_count, created_at
FROM installment_records
WHERE job_id = ? AND subsidiary_id = ?
ORDER BY id
`

func (q *Queries) ListInstallmentRecords(ctx context.Context, arg DatasetParams) ([]InstallmentRecord, error) {
	rows, err := q.db.QueryContext(ctx, listInstallmentRecords, arg.JobID, arg.SubsidiaryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []InstallmentRecord
	for rows.Next() {
		var i InstallmentRecord
		if err := rows.Scan(
			&i.ID,
			&i.JobID,
			&i.SubsidiaryID,
			&i.ClientID,
			&i.Region,
			&i.Amount,
			&i.LineCount,
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

const deleteInstallmentRecords = `-- name: DeleteInstallmentRecords :execrows
DELETE FROM installment_records
WHERE job_id = ? AND subsidiary_id = ?
`

func (q *Queries) DeleteInstallmentRecords(ctx context.Context, arg DatasetParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteInstallmentRecords, arg.JobID, arg.SubsidiaryID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
