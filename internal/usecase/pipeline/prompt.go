package pipeline

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

const systemPreamble = `You are a helpful customer support assistant. Answer the user's question using only the context below.
If the context does not contain the answer, say that you don't know instead of guessing.
Keep the answer concise and cite the documents you used.`

// BuildContextPrompt grounds the question in the retrieved chunks.
func BuildContextPrompt(query string, chunks []domain.RetrievedChunk) string {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\nCONTEXT:\n")
	writeChunks(&b, chunks)
	b.WriteString("\nUSER QUESTION:\n")
	b.WriteString(query)
	b.WriteString("\n\nANSWER:")
	return b.String()
}

func writeChunks(b *strings.Builder, chunks []domain.RetrievedChunk) {
	for _, c := range chunks {
		fmt.Fprintf(b, "\n[Document: %s, Chunk: %d]\n%s\n", DocumentName(c), ChunkIndex(c), c.Text)
	}
}

// BuildFallbackPrompt is used when nothing relevant was retrieved.
func BuildFallbackPrompt(query string) string {
	var b strings.Builder
	b.WriteString("You are a helpful customer support assistant. ")
	b.WriteString("You don't have specific information about this topic in the knowledge base. ")
	b.WriteString("Tell the user politely that you don't have specific information to answer, ")
	b.WriteString("and suggest contacting a human agent.\n\nUSER QUESTION:\n")
	b.WriteString(query)
	b.WriteString("\n\nANSWER:")
	return b.String()
}

// DocumentName resolves a display name: filename, then source, then document id.
func DocumentName(c domain.RetrievedChunk) string {
	for _, key := range []string{"filename", "source"} {
		if s, ok := c.Metadata[key].(string); ok && s != "" {
			return s
		}
	}
	if c.DocumentID != "" {
		return c.DocumentID
	}
	return "unknown"
}

// ChunkIndex prefers the metadata value over the stored position.
func ChunkIndex(c domain.RetrievedChunk) int {
	switch v := c.Metadata["chunk_index"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return c.ChunkIndex
}
