// Package chi serves the HTTP API on a chi router.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/domain"
	domusage "github.com/kailas-cloud/vecrag/internal/domain/usage"
	"github.com/kailas-cloud/vecrag/internal/metrics"
	healthuc "github.com/kailas-cloud/vecrag/internal/usecase/health"
)

const (
	maxBodyBytes = 10 << 20
	maxChunks    = 1000
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers.
type Server struct {
	rag           RAG
	usage         UsageReporter
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(ragSvc RAG, usage UsageReporter, health HealthChecker, logger *zap.Logger) *Server {
	s := &Server{
		rag:    ragSvc,
		usage:  usage,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusBadRequest, CodeDimensionMismatch),
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
		sentinelHandler(domain.ErrQuotaExceeded, http.StatusPaymentRequired, CodeQuotaExceeded),
		sentinelHandler(domain.ErrProvider, http.StatusBadGateway, CodeProviderError),
		sentinelHandler(domain.ErrGeneration, http.StatusBadGateway, CodeGenerationError),
		sentinelHandler(domain.ErrStorage, http.StatusInternalServerError, CodeStorageError),
	}
	return s
}

// Router mounts the handlers with the standard middleware chain.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware())

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Get("/usage", s.GetUsage)
	r.Route("/v1/tenants/{tenant}", func(r chi.Router) {
		r.Post("/documents", s.IngestDocument)
		r.Post("/query", s.Query)
		r.Get("/index", s.GetIndex)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeBadRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
	return r
}

// IngestDocument handles POST /v1/tenants/{tenant}/documents.
func (s *Server) IngestDocument(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")

	var req ingestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Chunks) == 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "at least one chunk is required")
		return
	}
	if len(req.Chunks) > maxChunks {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			"too many chunks, limit is "+strconv.Itoa(maxChunks))
		return
	}

	if req.DocumentID == "" {
		req.DocumentID = uuid.NewString()
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	stats, err := s.rag.Ingest(ctx, tenant, req.DocumentID, chunksFromRequest(req.Chunks))
	setUsageHeaders(w, usage)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ingestResponse{
		Tenant:     tenant,
		DocumentID: req.DocumentID,
		Chunks:     len(req.Chunks),
		Usage:      stats,
	})
}

// Query handles POST /v1/tenants/{tenant}/query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")

	var req queryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	res, err := s.rag.Query(ctx, tenant, req.Query, req.Plan)
	setUsageHeaders(w, usage)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// GetIndex handles GET /v1/tenants/{tenant}/index.
func (s *Server) GetIndex(w http.ResponseWriter, r *http.Request) {
	info, err := s.rag.Describe(r.Context(), chi.URLParam(r, "tenant"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// GetUsage handles GET /usage?period=day|month|total.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period := domusage.PeriodMonth
	if p := r.URL.Query().Get("period"); p != "" {
		period = domusage.ParsePeriod(p)
	}
	writeJSON(w, http.StatusOK, usageToResponse(s.usage.GetReport(r.Context(), period)))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{Status: string(report.Status), Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func setUsageHeaders(w http.ResponseWriter, usage *domain.RequestUsage) {
	stats, calls := usage.Snapshot()
	if calls == 0 {
		return
	}
	w.Header().Set(metrics.UsageTokensHeader, strconv.Itoa(stats.Tokens))
	w.Header().Set("X-Usage-Cost-USD", strconv.FormatFloat(stats.CostUSD, 'f', -1, 64))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrDimensionMismatch,
		domain.ErrInvalidInput,
		domain.ErrRateLimited,
		domain.ErrQuotaExceeded,
		domain.ErrProvider,
		domain.ErrGeneration,
		domain.ErrStorage,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	var dm *domain.DimensionMismatchError
	if errors.As(err, &dm) {
		writeError(w, http.StatusBadRequest, CodeDimensionMismatch, dm.Error())
		return
	}
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
