// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package codeindex

import (
	"context"
	"log/slog"

	"github.com/poiesic/codeindex/core"
	"github.com/poiesic/codeindex/generator"
	"github.com/poiesic/codeindex/ingest"
	"github.com/poiesic/codeindex/provider"
	"github.com/poiesic/codeindex/provider/openai"
	"github.com/poiesic/codeindex/search"
	"github.com/poiesic/codeindex/storage"
	"github.com/poiesic/codeindex/storage/badger"
)

// Index is the top-level handle over the embedding store, the provider
// tiers, and the generator. It wires the pieces together so callers can
// build pipelines and searchers without touching the internals.
type Index struct {
	backend   *badger.Backend
	repo      storage.EmbeddingRepository
	providers []provider.Embedder
	generator *generator.Generator
	logger    *slog.Logger
}

// IndexOption configures an Index.
type IndexOption func(*indexOptions)

type indexOptions struct {
	providerConfigs []*provider.Config
	storeConfig     *badger.Config
	genConfig       *generator.Config
	inMemory        bool
}

// WithProvider appends an embedding provider tier. Tiers are consulted in
// the order given; the first is primary.
func WithProvider(config *provider.Config) IndexOption {
	return func(o *indexOptions) {
		o.providerConfigs = append(o.providerConfigs, config)
	}
}

// WithStoreConfig sets quota configuration for the embedding store.
func WithStoreConfig(config *badger.Config) IndexOption {
	return func(o *indexOptions) {
		o.storeConfig = config
	}
}

// WithGeneratorConfig sets retry and concurrency configuration for the
// embedding generator.
func WithGeneratorConfig(config *generator.Config) IndexOption {
	return func(o *indexOptions) {
		o.genConfig = config
	}
}

// WithInMemoryStore uses an in-memory store instead of the filesystem.
// Intended for tests.
func WithInMemoryStore() IndexOption {
	return func(o *indexOptions) {
		o.inMemory = true
	}
}

// NewIndex opens an index at the given path, creating it if absent.
func NewIndex(filePath string, opts ...IndexOption) (*Index, error) {
	// Apply options
	options := &indexOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if len(options.providerConfigs) == 0 {
		options.providerConfigs = []*provider.Config{provider.DefaultConfig()}
	}

	// Open backend
	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}

	// Create embedding repository
	repo, err := badger.NewEmbeddingRepository(backend, options.storeConfig)
	if err != nil {
		backend.Close()
		return nil, err
	}

	// Create the provider tiers
	providers := make([]provider.Embedder, 0, len(options.providerConfigs))
	for _, cfg := range options.providerConfigs {
		embedder, err := openai.NewEmbedder(cfg)
		if err != nil {
			for _, p := range providers {
				p.Close()
			}
			repo.Close()
			backend.Close()
			return nil, err
		}
		providers = append(providers, embedder)
	}

	gen, err := generator.New(providers, options.genConfig)
	if err != nil {
		for _, p := range providers {
			p.Close()
		}
		repo.Close()
		backend.Close()
		return nil, err
	}

	return &Index{
		backend:   backend,
		repo:      repo,
		providers: providers,
		generator: gen,
		logger:    slog.Default(),
	}, nil
}

// Close shuts down the generator, its providers, the repository, and the
// backing store.
func (ix *Index) Close() error {
	// The generator closes its providers.
	if err := ix.generator.Close(); err != nil {
		ix.logger.Error("error closing generator", "err", err)
	}

	if err := ix.repo.Close(); err != nil {
		ix.logger.Error("error closing embedding repository", "err", err)
		return err
	}

	if err := ix.backend.Close(); err != nil {
		ix.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// Repository exposes the embedding store.
func (ix *Index) Repository() storage.EmbeddingRepository {
	return ix.repo
}

// Generator exposes the embedding generator.
func (ix *Index) Generator() *generator.Generator {
	return ix.generator
}

// NewPipeline creates an ingestion pipeline over this index.
func (ix *Index) NewPipeline(opts ...ingest.Option) (*ingest.Pipeline, error) {
	return ingest.NewPipeline(ix.repo, ix.generator, opts...)
}

// NewSearcher creates a searcher over this index. Text queries are embedded
// with the primary provider tier.
func (ix *Index) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	return search.NewSearcher(ix.repo, ix.providers[0], opts...)
}

// Usage reports the storage accounting state for a project.
func (ix *Index) Usage(ctx context.Context, projectId string) (*core.StorageUsage, error) {
	return ix.repo.GetProjectStorageUsage(ctx, projectId)
}

// SetProjectQuota sets an explicit byte quota for a project.
func (ix *Index) SetProjectQuota(ctx context.Context, projectId string, limitBytes int64) error {
	return ix.repo.SetProjectQuota(ctx, projectId, limitBytes)
}
