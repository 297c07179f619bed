package storage

import (
	"context"
)

const copyJournalRowsToProcessed = `-- name: CopyJournalRowsToProcessed :execrows
INSERT INTO processed_journal_rows (
    source_row_id, job_id, subsidiary_id, journal_type, client_id, invoice_number, amount, columns_json
)
SELECT id, job_id, subsidiary_id, journal_type, client_id, invoice_number, amount, columns_json
FROM journal_rows
WHERE job_id = ? AND subsidiary_id = ?
ORDER BY id
`

func (q *Queries) CopyJournalRowsToProcessed(ctx context.Context, arg DatasetParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, copyJournalRowsToProcessed, arg.JobID, arg.SubsidiaryID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const createProcessedRow = `-- name: CreateProcessedRow :exec
INSERT INTO processed_journal_rows (
    source_row_id, job_id, subsidiary_id, journal_type, client_id, invoice_number, amount, columns_json
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateProcessedRowParams struct {
	SourceRowID   int64
	JobID         int64
	SubsidiaryID  int64
	JournalType   string
	ClientID      string
	InvoiceNumber string
	Amount        string
	ColumnsJson   string
}

func (q *Queries) CreateProcessedRow(ctx context.Context, arg CreateProcessedRowParams) error {
	_, err := q.db.ExecContext(ctx, createProcessedRow,
		arg.SourceRowID,
		arg.JobID,
		arg.SubsidiaryID,
		arg.JournalType,
		arg.ClientID,
		arg.InvoiceNumber,
		arg.Amount,
		arg.ColumnsJson,
	)
	return err
}

const updateProcessedAmount = `-- name: UpdateProcessedAmount :exec
UPDATE processed_journal_rows SET amount = ?
WHERE id = ?
`

type UpdateProcessedAmountParams struct {
	Amount string
	ID     int64
}

func (q *Queries) UpdateProcessedAmount(ctx context.Context, arg UpdateProcessedAmountParams) error {
	_, err := q.db.ExecContext(ctx, updateProcessedAmount, arg.Amount, arg.ID)
	return err
}

const countProcessedRows = `-- name: CountProcessedRows :one
SELECT COUNT(*) FROM processed_journal_rows
WHERE job_id = ? AND subsidiary_id = ?
`

func (q *Queries) CountProcessedRows(ctx context.Context, arg DatasetParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, countProcessedRows, arg.JobID, arg.SubsidiaryID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const listProcessedRows = `-- name: ListProcessedRows :many
SELECT id, source_row_id, job_id, subsidiary_id, journal_type, client_id, invoice_number, amount, columns_json, created_at
FROM processed_journal_rows
WHERE job_id = ? AND subsidiary_id = ?
ORDER BY id
`

func (q *Queries) ListProcessedRows(ctx context.Context, arg DatasetParams) ([]ProcessedJournalRow, error) {
	rows, err := q.db.QueryContext(ctx, listProcessedRows, arg.JobID, arg.SubsidiaryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ProcessedJournalRow
	for rows.Next() {
		var i ProcessedJournalRow
		if err := rows.Scan(
			&i.ID,
			&i.SourceRowID,
			&i.JobID,
			&i.SubsidiaryID,
			&i.JournalType,
			&i.ClientID,
			&i.InvoiceNumber,
			&i.Amount,
			&i.ColumnsJson,
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

const listProcessedRowsByType = `-- name: ListProcessedRowsByType :many
SELECT id, source_row_id, job_id, subsidiary_id, journal_type, client_id, invoice_number, amount, columns_json, created_at
FROM processed_journal_rows
WHERE job_id = ? AND subsidiary_id = ? AND journal_type = ?
ORDER BY id
`

type ListProcessedRowsByTypeParams struct {
	JobID        int64
	SubsidiaryID int64
	JournalType  string
}

func (q *Queries) ListProcessedRowsByType(ctx context.Context, arg ListProcessedRowsByTypeParams) ([]ProcessedJournalRow, error) {
	rows, err := q.db.QueryContext(ctx, listProcessedRowsByType, arg.JobID, arg.SubsidiaryID, arg.JournalType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ProcessedJournalRow
	for rows.Next() {
		var i ProcessedJournalRow
		if err := rows.Scan(
			&i.ID,
			&i.SourceRowID,
			&i.JobID,
			&i.SubsidiaryID,
			&i.JournalType,
			&i.ClientID,
			&i.InvoiceNumber,
			&i.Amount,
			&i.ColumnsJson,
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

const listProcessedAmounts = `-- name: ListProcessedAmounts :many
SELECT journal_type, amount FROM processed_journal_rows
WHERE job_id = ? AND subsidiary_id = ?
ORDER BY id
`

func (q *Queries) ListProcessedAmounts(ctx context.Context, arg DatasetParams) ([]AmountRow, error) {
	rows, err := q.db.QueryContext(ctx, listProcessedAmounts, arg.JobID, arg.SubsidiaryID)
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

const deleteProcessedRows = `-- name: DeleteProcessedRows :execrows
DELETE FROM processed_journal_rows
WHERE job_id = ? AND subsidiary_id = ?
`

func (q *Queries) DeleteProcessedRows(ctx context.Context, arg DatasetParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteProcessedRows, arg.JobID, arg.SubsidiaryID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
