package http

import (
	"fmt"
	"net/http"

	"summit/internal/core"
	"summit/internal/log"
	"summit/internal/services"
)

type matchView struct {
	ClientID          string           `json:"oak_id"`
	Status            core.MatchStatus `json:"status"`
	TotalReceived     any              `json:"total_received"`
	InstallmentAmount any              `json:"installment_amount"`
	RemainingAmount   any              `json:"remaining_amount"`
}

func matchFields(sum services.MatchSummary) map[string]any {
	groups := map[core.MatchStatus][]matchView{
		core.MatchMatched:      {},
		core.MatchInsufficient: {},
		core.MatchUnmatched:    {},
	}
	for _, m := range sum.Results {
		groups[m.Status] = append(groups[m.Status], matchView{
			ClientID:          m.ClientID,
			Status:            m.Status,
			TotalReceived:     amount(m.TotalReceived),
			InstallmentAmount: amount(m.InstallmentAmount),
			RemainingAmount:   amount(m.RemainingAmount),
		})
	}

	t := sum.Totals
	return map[string]any{
		"matched":      groups[core.MatchMatched],
		"insufficient": groups[core.MatchInsufficient],
		"unmatched":    groups[core.MatchUnmatched],
		"totals": map[string]any{
			"matched_count":          t.MatchedCount,
			"matched_total_received": amount(t.MatchedTotalReceived),
			"matched_installment":    amount(t.MatchedInstallment),
			"matched_remaining":      amount(t.MatchedRemaining),
			"insufficient_count":     t.InsufficientCount,
			"unmatched_count":        t.UnmatchedCount,
		},
	}
}

func (s *Server) handleMatchSummit(w http.ResponseWriter, r *http.Request) {
	key, err := ParseDatasetKey(r)
	if err != nil {
		s.writeError(w, r, log.OpMatch, key, err)
		return
	}

	sum, err := s.svc.MatchSummit(r.Context(), key)
	if err != nil {
		s.writeError(w, r, log.OpMatch, key, err)
		return
	}

	NewJSONResponse().
		Message(fmt.Sprintf("Matched %d of %d clients", sum.Totals.MatchedCount, len(sum.Results))).
		Fields(matchFields(sum)).
		Write(w)
}

func (s *Server) handleMatchResults(w http.ResponseWriter, r *http.Request) {
	key, err := ParseDatasetKey(r)
	if err != nil {
		s.writeError(w, r, log.OpMatch, key, err)
		return
	}

	sum, err := s.svc.MatchResults(r.Context(), key)
	if err != nil {
		s.writeError(w, r, log.OpMatch, key, err)
		return
	}

	NewJSONResponse().Fields(matchFields(sum)).Write(w)
}

func (s *Server) handleDownloadMatchResults(w http.ResponseWriter, r *http.Request) {
	key, err := ParseDatasetKey(r)
	if err != nil {
		s.writeError(w, r, log.OpDownload, key, err)
		return
	}
	matchType := r.PathValue("match_type")
	status, err := core.ParseMatchStatus(matchType)
	if err != nil {
		s.writeError(w, r, log.OpDownload, key, err)
		return
	}

	table, err := s.svc.MatchResultsExport(r.Context(), key, status)
	if err != nil {
		s.writeError(w, r, log.OpDownload, key, err)
		return
	}
	s.writeTable(w, r, key, "summit_"+matchType, table)
}

func (s *Server) handleClearMatches(w http.ResponseWriter, r *http.Request) {
	key, err := ParseDatasetKey(r)
	if err != nil {
		s.writeError(w, r, log.OpClear, key, err)
		return
	}

	n, err := s.svc.ClearMatches(r.Context(), key)
	if err != nil {
		s.writeError(w, r, log.OpClear, key, err)
		return
	}

	NewJSONResponse().
		Message(fmt.Sprintf("Deleted %d match results", n)).
		Field("deleted_count", n).
		Write(w)
}

func (s *Server) handleDownloadUnmatched(w http.ResponseWriter, r *http.Request) {
	key, err := ParseDatasetKey(r)
	if err != nil {
		s.writeError(w, r, log.OpDownload, key, err)
		return
	}

	table, err := s.svc.UnmatchedExport(r.Context(), key)
	if err != nil {
		s.writeError(w, r, log.OpDownload, key, err)
		return
	}
	s.writeTable(w, r, key, "unmatched_installments", table)
}
