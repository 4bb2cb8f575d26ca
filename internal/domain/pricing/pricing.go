// Package pricing converts provider token counts into USD.
package pricing

import "math"

// Rate is the USD price per million tokens.
type Rate struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// Table maps a model name to its rate. Unknown models cost nothing.
type Table map[string]Rate

// Default returns the built-in rates for the models the service ships with.
func Default() Table {
	return Table{
		"text-embedding-3-small":                 {InputPerMillion: 0.02},
		"text-embedding-3-large":                 {InputPerMillion: 0.13},
		"sentence-transformers/all-MiniLM-L6-v2": {},
		"llama-3.3-70b-versatile":                {InputPerMillion: 0.27, OutputPerMillion: 0.27},
		"gpt-4o-mini":                            {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	}
}

// With returns a copy of t with overrides merged on top.
func (t Table) With(overrides Table) Table {
	out := make(Table, len(t)+len(overrides))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// EmbeddingCost prices tokens at the model's input rate.
func (t Table) EmbeddingCost(model string, tokens int) float64 {
	return perMillion(tokens, t[model].InputPerMillion)
}

// GenerationCost prices input and output tokens separately.
func (t Table) GenerationCost(model string, inputTokens, outputTokens int) float64 {
	r := t[model]
	return perMillion(inputTokens, r.InputPerMillion) + perMillion(outputTokens, r.OutputPerMillion)
}

func perMillion(tokens int, price float64) float64 {
	if tokens <= 0 || price <= 0 {
		return 0
	}
	return float64(tokens) / 1e6 * price
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
