package http

import (
	"fmt"
	"net/http"

	"summit/internal/core"
	"summit/internal/log"
	"summit/internal/services"
)

type journalSummaryView struct {
	JournalType core.JournalType `json:"journal_type"`
	Count       int              `json:"count"`
	Total       any              `json:"total"`
}

func summaryViews(summaries []core.JournalSummary) []journalSummaryView {
	out := make([]journalSummaryView, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, journalSummaryView{JournalType: sum.JournalType, Count: sum.Count, Total: amount(sum.Total)})
	}
	return out
}

type unmatchedView struct {
	ClientID          string             `json:"oak_id"`
	Region            string             `json:"region"`
	InstallmentAmount any                `json:"installment_amount"`
	ClientTotal       any                `json:"client_total"`
	Reason            core.UnmatchReason `json:"reason"`
	Description       string             `json:"description"`
}

func unmatchedViews(unmatched []core.UnmatchedInstallment) []unmatchedView {
	out := make([]unmatchedView, 0, len(unmatched))
	for _, u := range unmatched {
		out = append(out, unmatchedView{
			ClientID:          u.ClientID,
			Region:            u.Region,
			InstallmentAmount: amount(u.InstallmentAmount),
			ClientTotal:       amount(u.ClientTotal),
			Reason:            u.Reason,
			Description:       u.Describe(),
		})
	}
	return out
}

// runFields are the reconciliation figures of a processing run.
func runFields(run core.ProcessingRun) map[string]any {
	fields := map[string]any{
		"run_id":                 run.ID,
		"matched_count":          run.MatchedCount,
		"total_summit_amount":    amount(run.TotalSummitAmount),
		"unmatched_count":        run.UnmatchedCount,
		"unmatched_summit_total": amount(run.UnmatchedSummitTotal),
		"original_total":         amount(run.OriginalTotal),
		"processed_total":        amount(run.ProcessedTotal),
		"difference":             amount(run.Difference),
		"verification_passed":    run.VerificationPassed,
		"unmatched":              unmatchedViews(run.Unmatched),
		"created_at":             run.CreatedAt,
	}
	if run.CompletedAt != nil {
		fields["completed_at"] = *run.CompletedAt
	}
	if run.SyncedAt != nil {
		fields["synced_at"] = *run.SyncedAt
	}
	return fields
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	key, err := ParseDatasetKey(r)
	if err != nil {
		s.writeError(w, r, "status", key, err)
		return
	}

	st, err := s.svc.Status(r.Context(), key)
	if err != nil {
		s.writeError(w, r, "status", key, err)
		return
	}

	resp := NewJSONResponse().Fields(map[string]any{
		"job_id":         key.JobID,
		"subsidiary_id":  key.SubsidiaryID,
		"dataset_status": st.State,
		"original_journals": map[string]any{
			"count":   st.Counts.Journals,
			"total":   amount(st.OriginalTotal),
			"by_type": summaryViews(st.Journals),
		},
		"summit_uploaded":     st.Counts.Installments > 0,
		"summit_count":        st.Counts.Installments,
		"processing_complete": st.State == core.StateProcessingComplete,
		"processed_count":     st.Counts.Processed,
		"match_complete":      st.Counts.Matches > 0,
		"match_count":         st.Counts.Matches,
	})

	if st.State == core.StateProcessingComplete {
		counts := make(map[core.JournalType]int, len(st.Processed))
		for _, sum := range st.Processed {
			counts[sum.JournalType] = sum.Count
		}
		resp.Field("processed_journals", map[string]any{
			"total":        amount(st.ProcessedTotal),
			"summit_total": amount(st.SummitTotal),
			"counts":       counts,
		})
		if st.Run != nil {
			resp.Field("last_run", runFields(*st.Run))
		}
	}
	resp.Write(w)
}

func (s *Server) handleUploadSummit(w http.ResponseWriter, r *http.Request) {
	key, err := ParseDatasetKey(r)
	if err != nil {
		s.writeError(w, r, log.OpUploadSummit, key, err)
		return
	}

	lines, err := ParseSummitUpload(w, r, s.maxUpload)
	if err != nil {
		s.writeError(w, r, log.OpUploadSummit, key, err)
		return
	}

	res, err := s.svc.UploadSummit(r.Context(), key, lines)
	if err != nil {
		s.writeError(w, r, log.OpUploadSummit, key, err)
		return
	}

	NewJSONResponse().
		Message(fmt.Sprintf("Uploaded %d installment lines for %d clients", res.UploadedCount, res.ClientCount)).
		Fields(map[string]any{
			"uploaded_count":      res.UploadedCount,
			"client_count":        res.ClientCount,
			"duplicates_combined": res.DuplicatesCombined,
			"skipped_count":       res.SkippedCount,
			"total_amount":        amount(res.TotalAmount),
			"dataset_status":      core.StateSummitUploaded,
		}).
		Write(w)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	key, err := ParseDatasetKey(r)
	if err != nil {
		s.writeError(w, r, log.OpProcess, key, err)
		return
	}

	out, err := s.svc.Process(r.Context(), key)
	if err != nil {
		s.writeError(w, r, log.OpProcess, key, err)
		return
	}

	files := make([]map[string]any, 0, len(out.Files))
	for _, f := range out.Files {
		files = append(files, map[string]any{
			"journal_type": f.JournalType,
			"row_count":    f.RowCount,
			"total_amount": amount(f.TotalAmount),
		})
	}

	message := fmt.Sprintf("Processed %d matched clients", out.Run.MatchedCount)
	if !out.Run.VerificationPassed {
		message = fmt.Sprintf("Processing completed but verification failed: totals differ by %s", amount(out.Run.Difference))
	}

	NewJSONResponse().
		Message(message).
		Fields(runFields(out.Run)).
		Field("generated_files", files).
		Field("dataset_status", core.StateProcessingComplete).
		Write(w)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	key, err := ParseDatasetKey(r)
	if err != nil {
		s.writeError(w, r, log.OpClear, key, err)
		return
	}

	res, err := s.svc.Clear(r.Context(), key)
	if err != nil {
		s.writeError(w, r, log.OpClear, key, err)
		return
	}

	NewJSONResponse().
		Message("Summit data and processed journals cleared, original journals kept").
		Field("deleted", clearedFields(res)).
		Field("dataset_status", core.StateJournalsUploaded).
		Write(w)
}

func clearedFields(res services.ClearResult) map[string]int64 {
	return map[string]int64{
		"journals":     res.Journals,
		"installments": res.Installments,
		"processed":    res.Processed,
		"matches":      res.Matches,
		"runs":         res.Runs,
	}
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	key, err := ParseDatasetKey(r)
	if err != nil {
		s.writeError(w, r, log.OpDownload, key, err)
		return
	}
	jt, err := core.ParseJournalType(r.PathValue("journal_type"))
	if err != nil {
		s.writeError(w, r, log.OpDownload, key, err)
		return
	}

	table, err := s.svc.JournalExport(r.Context(), key, jt)
	if err != nil {
		s.writeError(w, r, log.OpDownload, key, err)
		return
	}
	s.writeTable(w, r, key, string(jt), table)
}

func (s *Server) handleListJournals(w http.ResponseWriter, r *http.Request) {
	key, err := ParseDatasetKey(r)
	if err != nil {
		s.writeError(w, r, "list_journals", key, err)
		return
	}

	summaries, err := s.svc.ListJournals(r.Context(), key)
	if err != nil {
		s.writeError(w, r, "list_journals", key, err)
		return
	}

	NewJSONResponse().
		Field("journals", summaryViews(summaries)).
		Write(w)
}
