// Package fastembed runs embedding models locally through ONNX (requires cgo).
package fastembed

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// tokenEncoding approximates the tokenizer of the local models closely enough for usage reporting.
const tokenEncoding = "cl100k_base"

type encodeFunc func(text string) int

// loadEncoder is replaced in tests to avoid fetching the BPE ranks.
var loadEncoder = func() (encodeFunc, error) {
	enc, err := tiktoken.GetEncoding(tokenEncoding)
	if err != nil {
		return nil, err
	}
	return func(text string) int { return len(enc.EncodeOrdinary(text)) }, nil
}

// TokenCounter counts tokens with tiktoken, falling back to a length estimate
// when the encoding cannot be loaded.
type TokenCounter struct {
	once   sync.Once
	encode encodeFunc
	logger *zap.Logger
}

// NewTokenCounter creates a counter. The encoding loads on first use.
func NewTokenCounter(logger *zap.Logger) *TokenCounter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenCounter{logger: logger}
}

// Count returns the total token count of texts.
func (c *TokenCounter) Count(texts []string) int {
	c.once.Do(func() {
		enc, err := loadEncoder()
		if err != nil {
			c.logger.Warn("tiktoken unavailable, estimating token counts", zap.Error(err))
			enc = estimateTokens
		}
		c.encode = enc
	})
	total := 0
	for _, t := range texts {
		total += c.encode(t)
	}
	return total
}

// estimateTokens assumes about four characters per token.
func estimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
