package storage

import (
	"context"
)

const createJournalRow = `-- name: CreateJournalRow :exec
INSERT INTO journal_rows (
    job_id, subsidiary_id, journal_type, client_id, invoice_number, amount, columns_json, filename
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateJournalRowParams struct {
	JobID         int64
	SubsidiaryID  int64
	JournalType   string
	ClientID      string
	InvoiceNumber string
	Amount        string
	ColumnsJson   string
	Filename      string
}

func (q *Queries) CreateJournalRow(ctx context.Context, arg CreateJournalRowParams) error {
	_, err := q.db.ExecContext(ctx, createJournalRow,
		arg.JobID,
		arg.SubsidiaryID,
		arg.JournalType,
		arg.ClientID,
		arg.InvoiceNumber,
		arg.Amount,
		arg.ColumnsJson,
		arg.Filename,
	)
	return err
}

const countJournalRows = `-- name: CountJournalRows :one
SELECT COUNT(*) FROM journal_rows
WHERE job_id = ? AND subsidiary_id = ?
`

func (q *Queries) CountJournalRows(ctx context.Context, arg DatasetParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, countJournalRows, arg.JobID, arg.SubsidiaryID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const countJournalRowsByType = `-- name: CountJournalRowsByType :one
SELECT COUNT(*) FROM journal_rows
WHERE job_id = ? AND subsidiary_id = ? AND journal_type = ?
`

type CountJournalRowsByTypeParams struct {
	JobID        int64
	SubsidiaryID int64
	JournalType  string
}

func (q *Queries) CountJournalRowsByType(ctx context.Context, arg CountJournalRowsByTypeParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, countJournalRowsByType, arg.JobID, arg.SubsidiaryID, arg.JournalType)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const listJournalRows = `-- name: ListJournalRows :many
SELECT id, job_id, subsidiary_id, journal_type, client_id, invoice_number, amount, columns_json, filename, created_at
FROM journal_rows
WHERE job_id = ? AND subsidiary_id = ?
ORDER BY id
`

func (q *Queries) ListJournalRows(ctx context.Context, arg DatasetParams) ([]JournalRow, error) {
	rows, err := q.db.QueryContext(ctx, listJournalRows, arg.JobID, arg.SubsidiaryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []JournalRow
	for rows.Next() {
		var i JournalRow
		if err := rows.Scan(
			&i.ID,
			&i.JobID,
			&i.SubsidiaryID,
			&i.JournalType,
			&i.ClientID,
			&i.InvoiceNumber,
			&i.Amount,
			&i.ColumnsJson,
			&i.Filename,
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

const listJournalRowsByType = `-- name: ListJournalRowsByType :many
SELECT id, job_id, subsidiary_id, journal_type, client_id, invoice_number, amount, columns_json, filename, created_at
FROM journal_rows
WHERE job_id = ? AND subsidiary_id = ? AND journal_type = ?
ORDER BY id
`

type ListJournalRowsByTypeParams struct {
	JobID        int64
	SubsidiaryID int64
	JournalType  string
}

func (q *Queries) ListJournalRowsByType(ctx context.Context, arg ListJournalRowsByTypeParams) ([]JournalRow, error) {
	rows, err := q.db.QueryContext(ctx, listJournalRowsByType, arg.JobID, arg.SubsidiaryID, arg.JournalType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []JournalRow
	for rows.Next() {
		var i JournalRow
		if err := rows.Scan(
			&i.ID,
			&i.JobID,
			&i.SubsidiaryID,
			&i.JournalType,
			&i.ClientID,
			&i.InvoiceNumber,
			&i.Amount,
			&i.ColumnsJson,
			&i.Filename,
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

const listJournalAmounts = `-- name: ListJournalAmounts :many
SELECT journal_type, amount FROM journal_rows
WHERE job_id = ? AND subsidiary_id = ?
ORDER BY id
`

func (q *Queries) ListJournalAmounts(ctx context.Context, arg DatasetParams) ([]AmountRow, error) {
	rows, err := q.db.QueryContext(ctx, listJournalAmounts, arg.JobID, arg.SubsidiaryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AmountRow
	for rows.Next() {
		var i AmountRow
		if err := rows.Scan(&i.JournalType, &i.Amount); err != nil {
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

const deleteJournalRows = `-- name: DeleteJournalRows :execrows
DELETE FROM journal_rows
WHERE job_id = ? AND subsidiary_id = ?
`

func (q *Queries) DeleteJournalRows(ctx context.Context, arg DatasetParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteJournalRows, arg.JobID, arg.SubsidiaryID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
