package vecrag

import (
	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/usecase/pipeline"
)

// Chunk is one piece of a document to index.
type Chunk struct {
	Text     string
	Metadata map[string]any
}

// Usage is the token and cost accounting of one call.
type Usage struct {
	Model        string
	Tokens       int
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// Citation points at a chunk that backed an answer.
type Citation struct {
	Document       string
	ChunkIndex     int
	RelevanceScore float64
}

// Answer is the outcome of Ask.
type Answer struct {
	Text       string
	Citations  []Citation
	Confidence float64
	Latency    int64 // milliseconds
	Usage      Usage
	// Escalate is set when a human should take over; Reason says why.
	Escalate bool
	Reason   string
}

// IndexInfo describes a tenant index.
type IndexInfo struct {
	Tenant    string
	Dimension int
	Vectors   int
	Cached    bool
}

// BackupReport lists the tenants a Backup call uploaded or failed on.
type BackupReport struct {
	Succeeded []string
	Failed    map[string]error
}

func usageFromDomain(s domain.UsageStats) Usage {
	return Usage{
		Model:        s.Model,
		Tokens:       s.Tokens,
		InputTokens:  s.InputTokens,
		OutputTokens: s.OutputTokens,
		CostUSD:      s.CostUSD,
	}
}

func answerFromResult(r pipeline.Result) Answer {
	cites := make([]Citation, len(r.Citations))
	for i, c := range r.Citations {
		cites[i] = Citation{Document: c.Document, ChunkIndex: c.ChunkIndex, RelevanceScore: c.RelevanceScore}
	}
	return Answer{
		Text:       r.Answer,
		Citations:  cites,
		Confidence: r.Confidence,
		Latency:    r.LatencyMS,
		Usage:      usageFromDomain(r.Usage),
		Escalate:   r.ShouldEscalate,
		Reason:     r.EscalationReason,
	}
}
