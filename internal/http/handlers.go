package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"summit/internal/core"
	"summit/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().
		Field("status", "ok").
		Field("timestamp", time.Now().UTC().Format(time.RFC3339)).
		Field("uptime", time.Since(s.startedAt).Round(time.Second).String()).
		Write(w)
}

// handleReady checks the database and the templates.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ready := true
	checks := make(map[string]any)

	if err := s.svc.Ready(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Readiness check failed",
			log.FieldComponent, log.ComponentStorage,
			log.FieldError, err.Error())
		checks["database"] = "failed"
		ready = false
	} else {
		checks["database"] = "ok"
	}

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		ready = false
	} else {
		checks["templates"] = "ok"
	}

	checks["status_cache"] = map[string]any{"entries": s.svc.StatusCacheEntries()}
	checks["rate_limiter"] = map[string]any{"active_clients": s.rateLimiter.ActiveClients()}

	resp := NewJSONResponse().
		Field("status", "ready").
		Field("timestamp", time.Now().UTC().Format(time.RFC3339)).
		Field("checks", checks)
	if !ready {
		resp.Status(http.StatusServiceUnavailable).
			Field("success", false).
			Field("status", "not_ready")
	}
	resp.Write(w)
}

// handleMetrics provides request, rate limiting and security counters in
// plain text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.traceMiddleware.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}

	w.WriteHeader(http.StatusOK)
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_requests_failed_total", "counter", "HTTP requests answered with a 5xx status", traceMetrics.FailedRequests)
	metric("http_request_duration_avg_microseconds", "gauge", "Average request duration", traceMetrics.AverageResponseTime)
	metric("rate_limit_hits_total", "counter", "Requests rejected by the rate limiter", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("blocked_requests_total", "counter", "Requests blocked by the detector", securityMetrics.BlockedRequests)
	metric("status_cache_entries", "gauge", "Cached dataset status entries", s.svc.StatusCacheEntries())
	metric("uptime_seconds", "gauge", "Application uptime in seconds", fmt.Sprintf("%.0f", time.Since(s.startedAt).Seconds()))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded",
			log.FieldPath, r.URL.Path,
			log.FieldErrorType, log.ErrorTypeInternal)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	data := struct {
		StandardJournals []core.JournalType
		EUJournals       []core.JournalType
		SummitJournal    core.JournalType
	}{
		StandardJournals: core.UploadJournalTypes(false),
		EUJournals:       core.UploadJournalTypes(true),
		SummitJournal:    core.JournalSummitInstallments,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		s.logger.ErrorContext(r.Context(), "Index template execution failed", "error", err, "template", "index.html")
	}
}
