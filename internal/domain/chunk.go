package domain

// Chunk is a piece of a document submitted for ingestion.
type Chunk struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ChunkRecord is the payload stored alongside vector row i of a tenant index.
type ChunkRecord struct {
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata"`
	DocumentID string         `json:"document_id"`
	ChunkIndex int            `json:"chunk_index"`
}

// RetrievedChunk is a search hit resolved to its stored record.
type RetrievedChunk struct {
	Text       string
	Metadata   map[string]any
	DocumentID string
	ChunkIndex int
	// Score lies in (0, 1]; higher is more similar.
	Score float64
}
