package search

import (
	"context"
	"log/slog"
	"sort"

	"github.com/poiesic/codeindex/core"
	"github.com/poiesic/codeindex/provider"
	"github.com/poiesic/codeindex/quant"
	"github.com/poiesic/codeindex/storage"
)

// DefaultMinScore is the similarity threshold applied when the caller does
// not supply one.
const DefaultMinScore float32 = 0.60

// Searcher provides cosine-similarity search over stored embedding records.
type Searcher struct {
	repository storage.EmbeddingRepository
	embedder   provider.Embedder
	minScore   float32
	filter     *storage.EmbeddingFilter
	logger     *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMinScore sets the similarity threshold below which candidates are
// dropped. Default is DefaultMinScore.
func WithMinScore(minScore float32) Option {
	return func(s *Searcher) error {
		s.minScore = minScore
		return nil
	}
}

// WithFilter narrows the candidate set to one file or content type before
// scoring. Default is no filter.
func WithFilter(filter *storage.EmbeddingFilter) Option {
	return func(s *Searcher) error {
		s.filter = filter
		return nil
	}
}

// NewSearcher creates a new searcher. The embedder may be nil when only
// vector queries are used; SearchText then returns ErrEmbedderRequired.
func NewSearcher(repository storage.EmbeddingRepository, embedder provider.Embedder, opts ...Option) (*Searcher, error) {
	if repository == nil {
		return nil, ErrRepositoryRequired
	}

	s := &Searcher{
		repository: repository,
		embedder:   embedder,
		minScore:   DefaultMinScore,
		logger:     slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Search finds records in a project similar to the query vector.
// Returns up to maxHits results, ranked by similarity score.
func (s *Searcher) Search(ctx context.Context, projectId string, queryVector []float32, maxHits int) ([]*core.SearchResult, error) {
	return s.SearchWithMonitor(ctx, projectId, queryVector, maxHits, nil)
}

// SearchText embeds the query text and searches with the resulting vector.
func (s *Searcher) SearchText(ctx context.Context, projectId string, query string, maxHits int) ([]*core.SearchResult, error) {
	if s.embedder == nil {
		return nil, ErrEmbedderRequired
	}

	queryVector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}
	return s.Search(ctx, projectId, queryVector, maxHits)
}

// SearchWithMonitor searches with monitoring. The monitor receives callbacks
// at each stage of the search process.
// Returns up to maxHits results, ranked by similarity score.
func (s *Searcher) SearchWithMonitor(ctx context.Context, projectId string, queryVector []float32, maxHits int, monitor SearchMonitor) ([]*core.SearchResult, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if len(queryVector) == 0 {
		return nil, ErrEmptyQueryVector
	}

	monitor.Start(projectId, len(queryVector))

	candidates, err := s.repository.GetProjectEmbeddings(ctx, projectId, s.filter)
	if err != nil {
		s.logger.Error("error retrieving candidate records", "projectId", projectId, "err", err)
		return nil, err
	}
	monitor.AfterCandidateRetrieval(candidates)

	results := make([]*core.SearchResult, 0, len(candidates))
	for _, record := range candidates {
		vector := record.Embedding
		if len(vector) == 0 && record.Quantized != nil {
			vector = quant.Dequantize(record.Quantized)
		}

		// A record stored under a different model may carry a different
		// dimensionality; it can never match this query.
		if len(vector) != len(queryVector) {
			s.logger.Warn("skipping record with mismatched dimensions",
				"recordId", record.Id, "recordDims", len(vector), "queryDims", len(queryVector))
			monitor.SkippedCandidate(record, "dimension mismatch")
			continue
		}

		score := quant.CosineSimilarity(queryVector, vector)
		monitor.ScoredCandidate(record, score)
		if score < s.minScore {
			continue
		}

		results = append(results, &core.SearchResult{
			Record: record,
			Score:  score,
		})
	}

	// Sort by score descending; equal scores fall back to most recent update
	// so the ordering stays deterministic.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.UpdatedAt.After(results[j].Record.UpdatedAt)
	})
	if maxHits > 0 && len(results) > maxHits {
		results = results[:maxHits]
	}
	monitor.Finish(results)

	return results, nil
}
