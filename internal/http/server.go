package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"summit/internal/log"
	"summit/internal/middleware/ratelimit"
	"summit/internal/middleware/security"
	"summit/internal/middleware/trace"
	"summit/internal/services"
	appweb "summit/web"
)

// Options configure a Server.
type Options struct {
	MaxUploadBytes     int64
	RateLimitPerMinute int
	Logger             *log.Logger
}

// Server exposes the reconciliation workflow as a JSON API plus a small
// dashboard page.
type Server struct {
	http.Server

	svc       *services.ReconcileService
	logger    *log.Logger
	templates *template.Template
	maxUpload int64
	startedAt time.Time

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server.
func NewServer(addr string, svc *services.ReconcileService, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}

	detector := security.NewDetector()
	s := &Server{
		svc:              svc,
		logger:           opts.Logger.WithComponent(log.ComponentHTTP),
		maxUpload:        opts.MaxUploadBytes,
		startedAt:        time.Now(),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
		}),
	}

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	mux := http.NewServeMux()
	s.routes(mux)

	limit := s.rateLimiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, detector.ExtractClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	}, http.MethodPost, http.MethodDelete)

	var handler http.Handler = mux
	handler = limit(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = log.RequestIDMiddleware(trace.RequestID)(handler)
	handler = log.Middleware(s.logger)(handler)
	handler = detector.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:           addr,
		Handler:        handler,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 64 << 10,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	api := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, security.NoStore(h))
	}

	api("GET /status/{job_id}/{subsidiary_id}", s.handleStatus)
	api("POST /upload-summit/{job_id}/{subsidiary_id}", s.handleUploadSummit)
	api("POST /process/{job_id}/{subsidiary_id}", s.handleProcess)
	api("DELETE /clear/{job_id}/{subsidiary_id}", s.handleClear)
	api("GET /download/{job_id}/{subsidiary_id}/{journal_type}", s.handleDownload)
	api("GET /list-journals/{job_id}/{subsidiary_id}", s.handleListJournals)

	api("POST /upload-journals/{job_id}/{subsidiary_id}", s.handleUploadJournals)
	api("GET /journals-upload-status/{job_id}/{subsidiary_id}", s.handleJournalsUploadStatus)
	api("GET /combined-data/{job_id}/{subsidiary_id}", s.handleCombinedData)
	api("DELETE /clear-journals/{job_id}/{subsidiary_id}", s.handleClearJournals)

	api("POST /match-summit/{job_id}/{subsidiary_id}", s.handleMatchSummit)
	api("GET /match-results/{job_id}/{subsidiary_id}", s.handleMatchResults)
	api("GET /download-match-results/{job_id}/{subsidiary_id}/{match_type}", s.handleDownloadMatchResults)
	api("DELETE /clear-matches/{job_id}/{subsidiary_id}", s.handleClearMatches)
	api("GET /download-unmatched/{job_id}/{subsidiary_id}", s.handleDownloadUnmatched)
}

// Shutdown stops the rate limiter and gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
