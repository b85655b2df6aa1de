package search

import "github.com/poiesic/codeindex/core"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(projectId string, queryDimensions int)
	AfterCandidateRetrieval(records []*core.EmbeddingRecord)
	SkippedCandidate(record *core.EmbeddingRecord, reason string)
	ScoredCandidate(record *core.EmbeddingRecord, score float32)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ int)                              {}
func (n *noopMonitor) AfterCandidateRetrieval(_ []*core.EmbeddingRecord)  {}
func (n *noopMonitor) SkippedCandidate(_ *core.EmbeddingRecord, _ string) {}
func (n *noopMonitor) ScoredCandidate(_ *core.EmbeddingRecord, _ float32) {}
func (n *noopMonitor) Finish(_ []*core.SearchResult)                      {}
