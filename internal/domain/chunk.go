package domain

import (
	"fmt"
	"path/filepath"
	"strconv"
)

// Metadata describes where a chunk came from.
type Metadata struct {
	Source string // file basename
	Chunk  int    // 0-based position within the file
	Path   string // path the file was read from
}

// Chunk is a contiguous slice of a document's text. Immutable once created;
// a later ingestion with the same ID overwrites the stored copy.
type Chunk struct {
	ID       string
	Text     string
	Metadata Metadata
}

// ChunkID builds the stable chunk identifier "<basename>::<index>".
func ChunkID(path string, index int) string {
	return filepath.Base(path) + "::" + strconv.Itoa(index)
}

// Hit is a single retrieval result. Lower Distance means more similar.
type Hit struct {
	ID       string
	Text     string
	Metadata Metadata
	Distance float64
}

// UpsertBatch is a column-oriented write to the vector store.
// All four sequences are index-aligned.
type UpsertBatch struct {
	IDs        []string
	Documents  []string
	Embeddings [][]float32
	Metadatas  []Metadata
}

// Len returns the number of rows in the batch.
func (b UpsertBatch) Len() int { return len(b.IDs) }

// Validate checks that every column has the same length and vectors are non-empty.
func (b UpsertBatch) Validate() error {
	n := len(b.IDs)
	if len(b.Documents) != n || len(b.Embeddings) != n || len(b.Metadatas) != n {
		return fmt.Errorf(
			"%w: batch columns differ in length (ids=%d documents=%d embeddings=%d metadatas=%d)",
			ErrInvalidArgument, n, len(b.Documents), len(b.Embeddings), len(b.Metadatas),
		)
	}
	for i, id := range b.IDs {
		if id == "" {
			return fmt.Errorf("%w: empty id at row %d", ErrInvalidArgument, i)
		}
		if len(b.Embeddings[i]) == 0 {
			return fmt.Errorf("%w: empty embedding for %s", ErrInvalidArgument, id)
		}
	}
	return nil
}

// BatchFromChunks zips chunks with their embeddings into an UpsertBatch.
func BatchFromChunks(chunks []Chunk, embeddings [][]float32) UpsertBatch {
	b := UpsertBatch{
		IDs:        make([]string, len(chunks)),
		Documents:  make([]string, len(chunks)),
		Embeddings: embeddings,
		Metadatas:  make([]Metadata, len(chunks)),
	}
	for i, c := range chunks {
		b.IDs[i] = c.ID
		b.Documents[i] = c.Text
		b.Metadatas[i] = c.Metadata
	}
	return b
}
