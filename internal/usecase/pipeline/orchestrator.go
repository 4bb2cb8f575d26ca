// Package pipeline answers a tenant question: retrieve, prompt, generate, score.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/logger"
	"github.com/kailas-cloud/vecrag/internal/metrics"
)

var tracer = otel.Tracer("vecrag.pipeline")

// Defaults applied by New for unset config values.
const (
	DefaultEscalationThreshold = 0.3
	DefaultTopK                = 5
	DefaultCitationLimit       = 3
	DefaultApologyAnswer       = "I'm sorry, I'm experiencing technical issues."
	DefaultPreference          = "openai"
	noneModel                  = "none"
)

// Config tunes the orchestrator.
type Config struct {
	// EscalationThreshold defaults when nil. Zero disables low-confidence escalation.
	EscalationThreshold *float64
	TopK                int
	CitationLimit       int
	// LatencyBudget bounds the whole run. Zero means unlimited.
	LatencyBudget time.Duration
	ApologyAnswer string
	// PlanPreferences maps a plan name to a generation provider.
	PlanPreferences   map[string]string
	DefaultPreference string
}

// Request is one tenant question.
type Request struct {
	TenantID string
	Query    string
	PlanHint string
	// TopK overrides the configured retrieval depth when positive.
	TopK int
}

// Citation points at a chunk that backed the answer.
type Citation struct {
	Document       string  `json:"document"`
	ChunkIndex     int     `json:"chunk_index"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Result is the outcome of a run. Run never fails; degradations show in the fields.
type Result struct {
	Answer           string            `json:"answer"`
	Citations        []Citation        `json:"citations"`
	Confidence       float64           `json:"confidence"`
	LatencyMS        int64             `json:"latency_ms"`
	Usage            domain.UsageStats `json:"usage_stats"`
	ShouldEscalate   bool              `json:"should_escalate"`
	EscalationReason string            `json:"escalation_reason,omitempty"`
	// Context is the prompt context handed to a human on escalation.
	Context string `json:"-"`
}

// Orchestrator runs the query pipeline.
type Orchestrator struct {
	retriever Retriever
	generator Generator
	cfg       Config
	threshold float64
	logger    *zap.Logger
}

// New creates an orchestrator.
func New(retriever Retriever, generator Generator, cfg Config, log *zap.Logger) *Orchestrator {
	threshold := DefaultEscalationThreshold
	if cfg.EscalationThreshold != nil {
		threshold = *cfg.EscalationThreshold
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.CitationLimit <= 0 {
		cfg.CitationLimit = DefaultCitationLimit
	}
	if cfg.ApologyAnswer == "" {
		cfg.ApologyAnswer = DefaultApologyAnswer
	}
	if cfg.DefaultPreference == "" {
		cfg.DefaultPreference = DefaultPreference
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{retriever: retriever, generator: generator, cfg: cfg, threshold: threshold, logger: log}
}

// Preference maps a plan hint to a generation provider name.
func (o *Orchestrator) Preference(plan string) string {
	if p, ok := o.cfg.PlanPreferences[plan]; ok && p != "" {
		return p
	}
	return o.cfg.DefaultPreference
}

// Run executes RETRIEVE, PROMPT, GENERATE, SCORE and the escalation decision.
func (o *Orchestrator) Run(ctx context.Context, req Request) Result {
	start := time.Now()
	log := logger.FromContextOr(ctx, o.logger).With(logger.Tenant(req.TenantID))

	if o.cfg.LatencyBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.LatencyBudget)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "pipeline.Run")
	defer span.End()
	span.SetAttributes(attribute.String("tenant_id", req.TenantID))

	topK := req.TopK
	if topK <= 0 {
		topK = o.cfg.TopK
	}

	chunks := o.retrieve(ctx, req.TenantID, req.Query, topK)

	var prompt, outcome string
	confidence := 0.0
	if len(chunks) > 0 {
		prompt = BuildContextPrompt(req.Query, chunks)
		confidence = math.Min(chunks[0].Score, 1)
		outcome = "answered"
	} else {
		prompt = BuildFallbackPrompt(req.Query)
		outcome = "fallback_prompt"
	}

	answer, usage, err := o.generate(ctx, prompt, o.Preference(req.PlanHint))
	if err != nil {
		log.Error("Generation failed, returning apology", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		answer = o.cfg.ApologyAnswer
		usage = domain.UsageStats{Model: noneModel}
		outcome = "apology"
	}

	escalate, reason := ShouldEscalate(confidence, o.threshold, len(chunks) > 0)
	if escalate {
		metrics.PipelineEscalationsTotal.Inc()
	}

	elapsed := time.Since(start)
	metrics.PipelineDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	span.SetAttributes(
		attribute.Int("chunks", len(chunks)),
		attribute.Float64("confidence", confidence),
		attribute.Bool("escalate", escalate),
	)

	log.Info("Query answered",
		zap.String("outcome", outcome),
		zap.Int("chunks", len(chunks)),
		zap.Float64("confidence", confidence),
		zap.String("model", usage.Model),
		zap.Duration("latency", elapsed),
	)

	return Result{
		Answer:           answer,
		Citations:        o.citations(chunks),
		Confidence:       round3(confidence),
		LatencyMS:        elapsed.Milliseconds(),
		Usage:            usage,
		ShouldEscalate:   escalate,
		EscalationReason: reason,
		Context:          contextSummary(chunks),
	}
}

func (o *Orchestrator) retrieve(ctx context.Context, tenant, query string, topK int) []domain.RetrievedChunk {
	ctx, span := tracer.Start(ctx, "pipeline.Retrieve")
	defer span.End()
	chunks := o.retriever.Retrieve(ctx, tenant, query, topK)
	span.SetAttributes(attribute.Int("top_k", topK), attribute.Int("results", len(chunks)))
	return chunks
}

func (o *Orchestrator) generate(ctx context.Context, prompt, preference string) (string, domain.UsageStats, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("preference", preference))
	answer, usage, err := o.generator.Generate(ctx, prompt, preference)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return answer, usage, err
}

func (o *Orchestrator) citations(chunks []domain.RetrievedChunk) []Citation {
	n := min(len(chunks), o.cfg.CitationLimit)
	out := make([]Citation, 0, n)
	for _, c := range chunks[:n] {
		out = append(out, Citation{
			Document:       DocumentName(c),
			ChunkIndex:     ChunkIndex(c),
			RelevanceScore: round3(c.Score),
		})
	}
	return out
}

// ShouldEscalate decides whether a human should take over.
func ShouldEscalate(confidence, threshold float64, hasContext bool) (bool, string) {
	if !hasContext {
		return true, "no relevant context found"
	}
	if confidence < threshold {
		return true, fmt.Sprintf("low confidence: %.3f < %.3f", confidence, threshold)
	}
	return false, ""
}

func contextSummary(chunks []domain.RetrievedChunk) string {
	var b strings.Builder
	writeChunks(&b, chunks)
	return strings.TrimSpace(b.String())
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
