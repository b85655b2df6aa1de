package core

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is derived deterministically from record identity via content-based hashing.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// EmbeddingID derives the record ID for a chunk. Identity is the
// (project, file, chunk index) tuple; file path and content are excluded so
// that a chunk keeps its ID across edits and renames.
func EmbeddingID(projectID, fileID string, chunkIndex int) ID {
	return IDFromContent(fmt.Sprintf("%s|%s|%d", projectID, fileID, chunkIndex))
}

// HashContent computes the content fingerprint used to detect chunk drift.
// A record whose stored hash matches the incoming chunk is not re-embedded.
func HashContent(content string) string {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}

// QuantizedVector is the compact integer form of an embedding vector.
// Data holds one unsigned 8-bit level per component; Scale and ZeroPoint are
// the parameters of the affine transform that reconstructs an approximation
// of the original floats. A quantized payload is replaced whole on update,
// never mutated in place.
type QuantizedVector struct {
	Data       []byte
	Scale      float32
	ZeroPoint  float32
	Dimensions int
}

// ChunkMetadata classifies a chunk for display and filtering.
type ChunkMetadata struct {
	ContentType string // e.g. "code", "doc"
	StartLine   int
	EndLine     int
}

// EmbeddingRecord is the unit of storage: one embedded chunk of source text.
// Either Embedding or Quantized is populated, depending on whether the
// quantization codec was applied at write time.
type EmbeddingRecord struct {
	Id         ID
	ProjectId  string
	FileId     string
	FilePath   string // advisory, for display only
	ChunkIndex int
	Content    string
	Embedding  []float32        // raw float vector; empty when Quantized is set
	Quantized  *QuantizedVector // codec output; nil when stored unquantized
	Metadata   ChunkMetadata
	Hash       string    // content fingerprint
	CreatedAt  time.Time // when the record was first stored
	UpdatedAt  time.Time // changes only when Hash changes
}

// Dimensions returns the vector dimensionality of the record, regardless of
// whether it is stored quantized or raw.
func (r *EmbeddingRecord) Dimensions() int {
	if r.Quantized != nil {
		return r.Quantized.Dimensions
	}
	return len(r.Embedding)
}

// StorageUsage reports committed storage accounting for a project.
type StorageUsage struct {
	TotalBytes      int64
	QuotaBytes      int64
	UsagePercentage float64
	RemainingBytes  int64
	EmbeddingCount  int64
}

// SearchResult pairs a stored record with its similarity score for a query.
type SearchResult struct {
	Record *EmbeddingRecord
	Score  float32
}
