package http

import (
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"summit/internal/core"
	"summit/internal/log"
)

func (s *Server) handleUploadJournals(w http.ResponseWriter, r *http.Request) {
	key, err := ParseDatasetKey(r)
	if err != nil {
		s.writeError(w, r, log.OpUploadJournals, key, err)
		return
	}

	up, err := ParseJournalUpload(w, r, s.maxUpload)
	if err != nil {
		s.writeError(w, r, log.OpUploadJournals, key, err)
		return
	}

	res, err := s.svc.UploadJournals(r.Context(), key, up.JournalType, up.Filename, up.Records)
	if err != nil {
		s.writeError(w, r, log.OpUploadJournals, key, err)
		return
	}

	NewJSONResponse().
		Status(http.StatusCreated).
		Message(fmt.Sprintf("Uploaded %d %s journal rows", res.Created, res.JournalType)).
		Fields(map[string]any{
			"journal_type":   res.JournalType,
			"created":        res.Created,
			"total":          amount(res.Total),
			"dataset_status": res.State,
		}).
		Write(w)
}

func (s *Server) handleJournalsUploadStatus(w http.ResponseWriter, r *http.Request) {
	key, err := ParseDatasetKey(r)
	if err != nil {
		s.writeError(w, r, "journals_upload_status", key, err)
		return
	}

	states, err := s.svc.JournalsUploadStatus(r.Context(), key)
	if err != nil {
		s.writeError(w, r, "journals_upload_status", key, err)
		return
	}

	uploaded := make(map[core.JournalType]bool, len(states))
	counts := make(map[core.JournalType]int, len(states))
	totals := make(map[core.JournalType]any, len(states))
	anyUploaded, allUploaded := false, len(states) > 0
	for _, st := range states {
		uploaded[st.JournalType] = st.Uploaded
		counts[st.JournalType] = st.Count
		totals[st.JournalType] = amount(st.Total)
		anyUploaded = anyUploaded || st.Uploaded
		allUploaded = allUploaded && st.Uploaded
	}

	NewJSONResponse().
		Fields(map[string]any{
			"uploaded":     uploaded,
			"counts":       counts,
			"totals":       totals,
			"any_uploaded": anyUploaded,
			"all_uploaded": allUploaded,
		}).
		Write(w)
}

func (s *Server) handleCombinedData(w http.ResponseWriter, r *http.Request) {
	key, err := ParseDatasetKey(r)
	if err != nil {
		s.writeError(w, r, "combined_data", key, err)
		return
	}

	rows, err := s.svc.CombinedData(r.Context(), key)
	if err != nil {
		s.writeError(w, r, "combined_data", key, err)
		return
	}

	out := make([]core.Record, 0, len(rows))
	byType := make(map[core.JournalType]any)
	totals := make(map[core.JournalType]decimal.Decimal)
	grand := decimal.Zero
	for _, row := range rows {
		rec := core.Record{
			{Name: "_journal_type", Value: string(row.JournalType)},
			{Name: "_client_id", Value: row.ClientID},
			{Name: "_invoice_number", Value: row.InvoiceNumber},
			{Name: "_amount", Value: core.FormatAmount(row.Amount)},
		}
		out = append(out, append(rec, row.Columns...))
		totals[row.JournalType] = totals[row.JournalType].Add(row.Amount)
		grand = grand.Add(row.Amount)
	}
	for jt, total := range totals {
		byType[jt] = amount(total)
	}

	NewJSONResponse().
		Fields(map[string]any{
			"rows":    out,
			"count":   len(out),
			"total":   amount(grand),
			"by_type": byType,
		}).
		Write(w)
}

func (s *Server) handleClearJournals(w http.ResponseWriter, r *http.Request) {
	key, err := ParseDatasetKey(r)
	if err != nil {
		s.writeError(w, r, log.OpClear, key, err)
		return
	}

	res, err := s.svc.ClearJournals(r.Context(), key)
	if err != nil {
		s.writeError(w, r, log.OpClear, key, err)
		return
	}

	NewJSONResponse().
		Message(fmt.Sprintf("Deleted %d journal rows and all derived data", res.Journals)).
		Field("deleted", clearedFields(res)).
		Field("dataset_status", core.StateEmpty).
		Write(w)
}
