package chi

import (
	"time"

	"github.com/kailas-cloud/vecrag/internal/domain"
	domusage "github.com/kailas-cloud/vecrag/internal/domain/usage"
)

// ErrorCode is a machine-readable error identifier.
type ErrorCode string

// Error codes returned in ErrorResponse.
const (
	CodeBadRequest        ErrorCode = "bad_request"
	CodeUnauthorized      ErrorCode = "unauthorized"
	CodeForbidden         ErrorCode = "forbidden"
	CodeValidationFailed  ErrorCode = "validation_failed"
	CodeNotFound          ErrorCode = "index_not_found"
	CodeDimensionMismatch ErrorCode = "vector_dimension_mismatch"
	CodeRateLimited       ErrorCode = "rate_limited"
	CodeQuotaExceeded     ErrorCode = "embedding_quota_exceeded"
	CodeProviderError     ErrorCode = "embedding_provider_error"
	CodeGenerationError   ErrorCode = "generation_error"
	CodeStorageError      ErrorCode = "storage_error"
	CodeInternalError     ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

type chunkRequest struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type ingestRequest struct {
	DocumentID string         `json:"document_id"`
	Chunks     []chunkRequest `json:"chunks"`
}

type ingestResponse struct {
	Tenant     string            `json:"tenant"`
	DocumentID string            `json:"document_id"`
	Chunks     int               `json:"chunks"`
	Usage      domain.UsageStats `json:"usage_stats"`
}

type queryRequest struct {
	Query string `json:"query"`
	Plan  string `json:"plan"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type budgetResponse struct {
	TokensLimit     int64   `json:"tokens_limit"`
	TokensRemaining int64   `json:"tokens_remaining"`
	IsExhausted     bool    `json:"is_exhausted"`
	ResetsAt        *string `json:"resets_at,omitempty"`
}

type usageResponse struct {
	Period      string         `json:"period"`
	PeriodStart *string        `json:"period_start,omitempty"`
	PeriodEnd   *string        `json:"period_end,omitempty"`
	Provider    string         `json:"provider"`
	TokensUsed  int64          `json:"tokens_used"`
	Budget      budgetResponse `json:"budget"`
}

func chunksFromRequest(in []chunkRequest) []domain.Chunk {
	out := make([]domain.Chunk, len(in))
	for i, c := range in {
		out[i] = domain.Chunk{Text: c.Text, Metadata: c.Metadata}
	}
	return out
}

func usageToResponse(r domusage.Report) usageResponse {
	b := r.Budget()
	return usageResponse{
		Period:      string(r.Period()),
		PeriodStart: millisToISO(r.PeriodStart()),
		PeriodEnd:   millisToISO(r.PeriodEnd()),
		Provider:    r.Provider(),
		TokensUsed:  r.TokensUsed(),
		Budget: budgetResponse{
			TokensLimit:     b.Limit(),
			TokensRemaining: b.Remaining(),
			IsExhausted:     b.Exhausted(),
			ResetsAt:        millisToISO(b.ResetsAt()),
		},
	}
}

func millisToISO(ms int64) *string {
	if ms == 0 {
		return nil
	}
	s := time.UnixMilli(ms).UTC().Format(time.RFC3339)
	return &s
}
