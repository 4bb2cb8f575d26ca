// Package indexcache holds per-tenant vector indexes across memory, local disk and the object store.
package indexcache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

const collectionName = "chunks"

var errNoEmbedding = errors.New("index holds precomputed vectors only")

// rejectEmbed keeps chromem from falling back to its default remote embedding function.
func rejectEmbed(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedding
}

// Hit is a nearest-neighbour match: the row position and its cosine distance.
type Hit struct {
	Row      int
	Distance float64
}

// meta is the serialized form of the record side of an index.
type meta struct {
	Dimension int                  `json:"dimension"`
	Records   []domain.ChunkRecord `json:"records"`
}

// Index is one tenant's vectors plus the records parallel to them.
// Row i of the vector collection always corresponds to records[i].
type Index struct {
	mu      sync.RWMutex
	db      *chromem.DB
	coll    *chromem.Collection
	dim     int
	records []domain.ChunkRecord

	released bool
	once     sync.Once

	// Guarded by the owning Cache's mutex.
	tenant    string
	refs      int
	evicted   bool
	dropFiles bool
}

// NewIndex creates an empty index for vectors of length dim.
func NewIndex(dim int) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimension %d: %w", dim, domain.ErrInvalidInput)
	}
	db := chromem.NewDB()
	coll, err := db.CreateCollection(collectionName, nil, rejectEmbed)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Index{db: db, coll: coll, dim: dim}, nil
}

// Dim returns the vector dimension.
func (ix *Index) Dim() int { return ix.dim }

// Len returns the number of rows.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.records)
}

// Records returns a copy of the stored records in row order.
func (ix *Index) Records() []domain.ChunkRecord {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]domain.ChunkRecord, len(ix.records))
	copy(out, ix.records)
	return out
}

// Released reports whether Release was called.
func (ix *Index) Released() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.released
}

// validate checks a batch without touching the index.
func (ix *Index) validate(vectors [][]float32, records []domain.ChunkRecord) error {
	if len(vectors) != len(records) {
		return fmt.Errorf("%d vectors for %d records: %w", len(vectors), len(records), domain.ErrInvalidInput)
	}
	for i, v := range vectors {
		if len(v) != ix.dim {
			return domain.NewDimensionMismatch(ix.dim, len(v))
		}
		if zeroNorm(v) {
			return fmt.Errorf("vector %d has zero norm: %w", i, domain.ErrInvalidInput)
		}
	}
	return nil
}

// Append adds vectors and their records. Either every row is added or none is.
func (ix *Index) Append(ctx context.Context, vectors [][]float32, records []domain.ChunkRecord) error {
	if err := ix.validate(vectors, records); err != nil {
		return err
	}
	if len(vectors) == 0 {
		return nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.released {
		return domain.ErrIndexReleased
	}

	base := len(ix.records)
	docs := make([]chromem.Document, len(vectors))
	ids := make([]string, len(vectors))
	for i, v := range vectors {
		ids[i] = strconv.Itoa(base + i)
		vec := make([]float32, len(v))
		copy(vec, v)
		docs[i] = chromem.Document{ID: ids[i], Embedding: vec}
	}
	if err := ix.coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		// AddDocuments is not atomic; drop whatever made it in.
		_ = ix.coll.Delete(context.WithoutCancel(ctx), nil, nil, ids...)
		return fmt.Errorf("add vectors: %w", err)
	}
	ix.records = append(ix.records, records...)
	return nil
}

// Search returns up to k nearest rows, closest first.
func (ix *Index) Search(ctx context.Context, vec []float32, k int) ([]Hit, error) {
	if len(vec) != ix.dim {
		return nil, domain.NewDimensionMismatch(ix.dim, len(vec))
	}
	if zeroNorm(vec) {
		return nil, fmt.Errorf("query vector has zero norm: %w", domain.ErrInvalidInput)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.released {
		return nil, domain.ErrIndexReleased
	}
	if n := ix.coll.Count(); k > n {
		k = n
	}
	if k <= 0 {
		return nil, nil
	}

	res, err := ix.coll.QueryEmbedding(ctx, vec, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	hits := make([]Hit, 0, len(res))
	for _, r := range res {
		row, err := strconv.Atoi(r.ID)
		if err != nil {
			continue
		}
		hits = append(hits, Hit{Row: row, Distance: cosineDistance(r.Similarity)})
	}
	return hits, nil
}

// Record returns the record at row, false when row is out of range.
func (ix *Index) Record(row int) (domain.ChunkRecord, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if row < 0 || row >= len(ix.records) {
		return domain.ChunkRecord{}, false
	}
	return ix.records[row], true
}

// Marshal serializes the vectors (gzip) and the records (JSON) separately.
func (ix *Index) Marshal() (index, metaBytes []byte, err error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.released {
		return nil, nil, domain.ErrIndexReleased
	}

	var buf bytes.Buffer
	if err := ix.db.ExportToWriter(&buf, true, "", collectionName); err != nil {
		return nil, nil, fmt.Errorf("export vectors: %w", err)
	}
	records := ix.records
	if records == nil {
		records = []domain.ChunkRecord{}
	}
	metaBytes, err = json.Marshal(meta{Dimension: ix.dim, Records: records})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal records: %w", err)
	}
	return buf.Bytes(), metaBytes, nil
}

// UnmarshalIndex rebuilds an index from the output of Marshal.
// A record count that disagrees with the vector count is tolerated; rows without
// a record are skipped at search time.
func UnmarshalIndex(index, metaBytes []byte) (*Index, error) {
	var m meta
	if err := json.Unmarshal(metaBytes, &m); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if m.Dimension <= 0 {
		return nil, fmt.Errorf("decode records: dimension %d: %w", m.Dimension, domain.ErrInvalidInput)
	}

	db := chromem.NewDB()
	if err := db.ImportFromReader(bytes.NewReader(index), "", collectionName); err != nil {
		return nil, fmt.Errorf("import vectors: %w", err)
	}
	coll := db.GetCollection(collectionName, rejectEmbed)
	if coll == nil || coll.Count() == 0 {
		// gob drops empty maps; start from a fresh collection instead.
		var err error
		if coll, err = db.CreateCollection(collectionName, nil, rejectEmbed); err != nil {
			return nil, fmt.Errorf("create collection: %w", err)
		}
	}
	return &Index{db: db, coll: coll, dim: m.Dimension, records: m.Records}, nil
}

// Release frees the vector storage. Safe to call more than once.
func (ix *Index) Release() {
	ix.once.Do(func() {
		ix.mu.Lock()
		defer ix.mu.Unlock()
		_ = ix.db.Reset()
		ix.coll = nil
		ix.records = nil
		ix.released = true
	})
}

func cosineDistance(sim float32) float64 {
	d := 1 - float64(sim)
	if math.IsNaN(d) {
		return 1
	}
	return math.Max(0, d)
}

func zeroNorm(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
