package ingest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/poiesic/codeindex/core"
	"github.com/poiesic/codeindex/generator"
	"github.com/poiesic/codeindex/quant"
	"github.com/poiesic/codeindex/storage"
)

// DefaultBatchSize is the number of chunks sent to the generator per batch.
const DefaultBatchSize = 16

// DefaultRMSEFloor is the quantization error ceiling. A vector whose
// round-trip RMSE exceeds this is stored as raw floats.
const DefaultRMSEFloor = 0.01

// Chunk is one unit of source content to be embedded and stored.
type Chunk struct {
	FileId     string
	FilePath   string
	ChunkIndex int
	Content    string
	Metadata   core.ChunkMetadata
}

// Result summarizes one ingestion run.
type Result struct {
	Stored  int
	Skipped int // unchanged since last run, no provider call made
	Failed  int
	Errors  []error
}

// Pipeline orchestrates the embedding and storage of source chunks.
type Pipeline struct {
	repository storage.EmbeddingRepository
	generator  *generator.Generator
	batchSize  int
	rmseFloor  float64
	quantize   bool
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithBatchSize sets the number of chunks per generator batch.
// Default is DefaultBatchSize.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		p.batchSize = size
		return nil
	}
}

// WithQuantization toggles int8 quantization of stored vectors.
// Default is enabled.
func WithQuantization(enabled bool) Option {
	return func(p *Pipeline) error {
		p.quantize = enabled
		return nil
	}
}

// WithRMSEFloor sets the quantization error ceiling.
// Default is DefaultRMSEFloor.
func WithRMSEFloor(floor float64) Option {
	return func(p *Pipeline) error {
		p.rmseFloor = floor
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(repository storage.EmbeddingRepository, gen *generator.Generator, opts ...Option) (*Pipeline, error) {
	if repository == nil {
		return nil, ErrRepositoryRequired
	}
	if gen == nil {
		return nil, ErrGeneratorRequired
	}

	p := &Pipeline{
		repository: repository,
		generator:  gen,
		batchSize:  DefaultBatchSize,
		rmseFloor:  DefaultRMSEFloor,
		quantize:   true,
		logger:     slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// IngestChunks embeds and stores the given chunks under a project. Chunks
// whose content hash matches the stored record are skipped without any
// provider call. Per-chunk failures are counted and collected; a quota
// rejection stops the run early, since later writes in the same run would
// hit the same ceiling.
func (p *Pipeline) IngestChunks(ctx context.Context, projectId string, chunks []Chunk) (*Result, error) {
	if projectId == "" {
		return nil, ErrEmptyProjectId
	}

	result := &Result{}

	// Hash-skip pass: only changed or new chunks go to the generator.
	pending := make([]Chunk, 0, len(chunks))
	hashes := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		hash := core.HashContent(chunk.Content)
		id := core.EmbeddingID(projectId, chunk.FileId, chunk.ChunkIndex)

		existing, err := p.repository.GetEmbedding(ctx, projectId, id)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return result, err
		}
		if existing != nil && existing.Hash == hash {
			result.Skipped++
			continue
		}

		pending = append(pending, chunk)
		hashes = append(hashes, hash)
	}

	if len(pending) == 0 {
		return result, nil
	}

	batches := make([][]string, 0, (len(pending)+p.batchSize-1)/p.batchSize)
	for start := 0; start < len(pending); start += p.batchSize {
		end := min(start+p.batchSize, len(pending))
		texts := make([]string, 0, end-start)
		for _, chunk := range pending[start:end] {
			texts = append(texts, chunk.Content)
		}
		batches = append(batches, texts)
	}

	batchResults, err := p.generator.GenerateBatches(ctx, batches)
	if err != nil {
		return result, err
	}

	for batchIdx, batchResult := range batchResults {
		start := batchIdx * p.batchSize
		end := min(start+p.batchSize, len(pending))

		if batchResult.Failed() {
			p.logger.Error("batch embedding failed",
				"projectId", projectId, "batch", batchIdx, "err", batchResult.Err)
			result.Failed += end - start
			result.Errors = append(result.Errors, batchResult.Err)
			continue
		}

		for i := start; i < end; i++ {
			record := p.buildRecord(projectId, pending[i], hashes[i], batchResult.Vectors[i-start])

			if err := p.repository.StoreEmbedding(ctx, record); err != nil {
				result.Failed++
				result.Errors = append(result.Errors, err)
				if errors.Is(err, storage.ErrQuotaExceeded) {
					result.Failed += len(pending) - i - 1
					return result, err
				}
				p.logger.Error("failed to store embedding",
					"projectId", projectId, "fileId", pending[i].FileId, "err", err)
				continue
			}
			result.Stored++
		}
	}

	return result, nil
}

// buildRecord assembles a record from an embedded chunk. The vector is
// normalized, then quantized unless the round-trip error is too large to
// accept.
func (p *Pipeline) buildRecord(projectId string, chunk Chunk, hash string, vector []float32) *core.EmbeddingRecord {
	vector = quant.NormalizeVector(vector)

	record := &core.EmbeddingRecord{
		Id:         core.EmbeddingID(projectId, chunk.FileId, chunk.ChunkIndex),
		ProjectId:  projectId,
		FileId:     chunk.FileId,
		FilePath:   chunk.FilePath,
		ChunkIndex: chunk.ChunkIndex,
		Content:    chunk.Content,
		Metadata:   chunk.Metadata,
		Hash:       hash,
	}

	if !p.quantize {
		record.Embedding = vector
		return record
	}

	quantized := quant.Quantize(vector)
	stats := quant.MeasureError(vector, quantized)
	if stats.RootMeanSquareError > p.rmseFloor {
		p.logger.Warn("quantization error too large, storing raw vector",
			"fileId", chunk.FileId, "chunkIndex", chunk.ChunkIndex,
			"rmse", stats.RootMeanSquareError)
		record.Embedding = vector
		return record
	}

	record.Quantized = quantized
	return record
}
