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


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	codeindex "github.com/poiesic/codeindex"
	"github.com/poiesic/codeindex/core"
	"github.com/poiesic/codeindex/generator"
	"github.com/poiesic/codeindex/ingest"
	"github.com/poiesic/codeindex/provider"
	"github.com/poiesic/codeindex/search"
	"github.com/poiesic/codeindex/storage"
	"github.com/poiesic/codeindex/storage/badger"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "codeindex",
		Usage: "Local semantic index over source and text files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "index",
				Usage:     "Embed and store files under a project",
				ArgsUsage: "FILE...",
				Action:    indexCommand,
				Flags: append(commonFlags(),
					&cli.StringFlag{
						Name:  "embedding-host",
						Usage: "Embedding service host URL",
						Value: "http://localhost:11434/v1",
					},
					&cli.StringFlag{
						Name:     "embedding-model",
						Usage:    "Embedding model name",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "fallback-host",
						Usage: "Optional fallback embedding service host URL",
					},
					&cli.StringFlag{
						Name:  "fallback-model",
						Usage: "Fallback embedding model name",
					},
					&cli.IntFlag{
						Name:  "chunk-lines",
						Usage: "Number of lines per chunk",
						Value: 64,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to embed in each batch",
						Value: 16,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for transient failures",
						Value: 3,
					},
					&cli.BoolFlag{
						Name:  "parallel",
						Usage: "Embed batches concurrently",
					},
					&cli.BoolFlag{
						Name:  "no-quantize",
						Usage: "Store raw float vectors instead of quantized",
					},
				),
			},
			{
				Name:      "search",
				Usage:     "Search a project for content similar to the query",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: append(commonFlags(),
					&cli.StringFlag{
						Name:  "embedding-host",
						Usage: "Embedding service host URL",
						Value: "http://localhost:11434/v1",
					},
					&cli.StringFlag{
						Name:     "embedding-model",
						Usage:    "Embedding model name",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "max-hits",
						Usage: "Maximum number of results",
						Value: 10,
					},
					&cli.Float64Flag{
						Name:  "min-score",
						Usage: "Similarity threshold",
						Value: float64(search.DefaultMinScore),
					},
					&cli.StringFlag{
						Name:  "file",
						Usage: "Restrict search to one file id",
					},
					&cli.StringFlag{
						Name:  "content-type",
						Usage: "Restrict search to one content type",
					},
					&cli.BoolFlag{
						Name:  "verbose",
						Usage: "Log each search stage",
					},
				),
			},
			{
				Name:   "usage",
				Usage:  "Report storage usage for a project",
				Action: usageCommand,
				Flags:  commonFlags(),
			},
			{
				Name:      "set-quota",
				Usage:     "Set a project's storage quota in bytes",
				ArgsUsage: "BYTES",
				Action:    setQuotaCommand,
				Flags:     commonFlags(),
			},
			{
				Name:   "delete-project",
				Usage:  "Delete every stored embedding of a project",
				Action: deleteProjectCommand,
				Flags:  commonFlags(),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "db",
			Aliases:  []string{"d"},
			Usage:    "Path to BadgerDB database directory",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "project",
			Aliases:  []string{"p"},
			Usage:    "Project identifier",
			Required: true,
		},
	}
}

func indexCommand(c *cli.Context) error {
	ctx := context.Background()

	if c.NArg() == 0 {
		return fmt.Errorf("at least one file is required")
	}

	opts := []codeindex.IndexOption{
		codeindex.WithProvider(provider.NewConfig(
			provider.WithHost(c.String("embedding-host")),
			provider.WithModel(c.String("embedding-model")),
		)),
	}
	if c.String("fallback-host") != "" {
		model := c.String("fallback-model")
		if model == "" {
			model = c.String("embedding-model")
		}
		opts = append(opts, codeindex.WithProvider(provider.NewConfig(
			provider.WithHost(c.String("fallback-host")),
			provider.WithModel(model),
		)))
	}

	genConfig := generator.DefaultConfig()
	genConfig.Parallel = c.Bool("parallel")
	genConfig.MaxRetries = c.Int("max-retries")
	opts = append(opts, codeindex.WithGeneratorConfig(genConfig))

	index, err := codeindex.NewIndex(c.String("db"), opts...)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer index.Close()

	pipeline, err := index.NewPipeline(
		ingest.WithBatchSize(c.Int("batch-size")),
		ingest.WithQuantization(!c.Bool("no-quantize")),
	)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	var chunks []ingest.Chunk
	for _, path := range c.Args().Slice() {
		contents, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		chunks = append(chunks, chunkFile(path, string(contents), c.Int("chunk-lines"))...)
	}

	result, err := pipeline.IngestChunks(ctx, c.String("project"), chunks)
	if result != nil {
		fmt.Fprintf(os.Stderr, "Stored: %d  Skipped: %d  Failed: %d\n",
			result.Stored, result.Skipped, result.Failed)
	}
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	ctx := context.Background()

	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("query is required")
	}

	index, err := codeindex.NewIndex(c.String("db"),
		codeindex.WithProvider(provider.NewConfig(
			provider.WithHost(c.String("embedding-host")),
			provider.WithModel(c.String("embedding-model")),
		)),
	)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer index.Close()

	opts := []search.Option{
		search.WithMinScore(float32(c.Float64("min-score"))),
	}
	if c.String("file") != "" || c.String("content-type") != "" {
		opts = append(opts, search.WithFilter(&storage.EmbeddingFilter{
			FileId:      c.String("file"),
			ContentType: c.String("content-type"),
		}))
	}

	searcher, err := index.NewSearcher(opts...)
	if err != nil {
		return fmt.Errorf("failed to create searcher: %w", err)
	}

	var monitor search.SearchMonitor
	if c.Bool("verbose") {
		monitor = &loggingMonitor{logger: slog.Default()}
	}

	queryVector, err := index.Generator().GenerateBatches(ctx, [][]string{{query}})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if queryVector[0].Failed() {
		return fmt.Errorf("failed to embed query: %w", queryVector[0].Err)
	}

	results, err := searcher.SearchWithMonitor(ctx, c.String("project"),
		queryVector[0].Vectors[0], c.Int("max-hits"), monitor)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	for _, result := range results {
		fmt.Printf("%.4f  %s:%d-%d\n", result.Score,
			result.Record.FilePath,
			result.Record.Metadata.StartLine,
			result.Record.Metadata.EndLine)
	}
	return nil
}

func usageCommand(c *cli.Context) error {
	ctx := context.Background()

	backend, repo, err := openStore(c)
	if err != nil {
		return err
	}
	defer backend.Close()
	defer repo.Close()

	usage, err := repo.GetProjectStorageUsage(ctx, c.String("project"))
	if err != nil {
		return fmt.Errorf("failed to read usage: %w", err)
	}

	fmt.Printf("Project:    %s\n", c.String("project"))
	fmt.Printf("Records:    %d\n", usage.EmbeddingCount)
	fmt.Printf("Used:       %d bytes\n", usage.TotalBytes)
	fmt.Printf("Quota:      %d bytes\n", usage.QuotaBytes)
	fmt.Printf("Remaining:  %d bytes\n", usage.RemainingBytes)
	fmt.Printf("Usage:      %.1f%%\n", usage.UsagePercentage)
	return nil
}

func setQuotaCommand(c *cli.Context) error {
	ctx := context.Background()

	if c.NArg() != 1 {
		return fmt.Errorf("quota size in bytes is required")
	}
	var limitBytes int64
	if _, err := fmt.Sscanf(c.Args().First(), "%d", &limitBytes); err != nil || limitBytes <= 0 {
		return fmt.Errorf("invalid quota size %q", c.Args().First())
	}

	backend, repo, err := openStore(c)
	if err != nil {
		return err
	}
	defer backend.Close()
	defer repo.Close()

	if err := repo.SetProjectQuota(ctx, c.String("project"), limitBytes); err != nil {
		return fmt.Errorf("failed to set quota: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Quota for %s set to %d bytes\n", c.String("project"), limitBytes)
	return nil
}

func deleteProjectCommand(c *cli.Context) error {
	ctx := context.Background()

	backend, repo, err := openStore(c)
	if err != nil {
		return err
	}
	defer backend.Close()
	defer repo.Close()

	removed, err := repo.DeleteProjectEmbeddings(ctx, c.String("project"))
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Deleted %d records from %s\n", removed, c.String("project"))
	return nil
}

// loggingMonitor narrates each search stage for --verbose.
type loggingMonitor struct {
	logger *slog.Logger
}

var _ search.SearchMonitor = (*loggingMonitor)(nil)

func (m *loggingMonitor) Start(projectId string, queryDimensions int) {
	m.logger.Info("search started", "project", projectId, "dimensions", queryDimensions)
}

func (m *loggingMonitor) AfterCandidateRetrieval(records []*core.EmbeddingRecord) {
	m.logger.Info("candidates retrieved", "count", len(records))
}

func (m *loggingMonitor) SkippedCandidate(record *core.EmbeddingRecord, reason string) {
	m.logger.Info("candidate skipped", "file", record.FilePath, "reason", reason)
}

func (m *loggingMonitor) ScoredCandidate(record *core.EmbeddingRecord, score float32) {
	m.logger.Info("candidate scored", "file", record.FilePath, "chunk", record.ChunkIndex, "score", score)
}

func (m *loggingMonitor) Finish(results []*core.SearchResult) {
	m.logger.Info("search finished", "results", len(results))
}

// openStore opens the repository without any provider wiring, for commands
// that only touch storage.
func openStore(c *cli.Context) (*badger.Backend, storage.EmbeddingRepository, error) {
	backend, err := badger.OpenBackend(c.String("db"), false)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo, err := badger.NewEmbeddingRepository(backend, nil)
	if err != nil {
		backend.Close()
		return nil, nil, fmt.Errorf("failed to open repository: %w", err)
	}
	return backend, repo, nil
}

// chunkFile splits a file into fixed-size line windows with 1-based line
// ranges recorded in the chunk metadata.
func chunkFile(path, contents string, chunkLines int) []ingest.Chunk {
	if chunkLines < 1 {
		chunkLines = 1
	}

	lines := strings.Split(contents, "\n")
	contentType := strings.TrimPrefix(filepath.Ext(path), ".")

	var chunks []ingest.Chunk
	for start := 0; start < len(lines); start += chunkLines {
		end := min(start+chunkLines, len(lines))
		text := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(text) == "" {
			continue
		}

		chunks = append(chunks, ingest.Chunk{
			FileId:     path,
			FilePath:   path,
			ChunkIndex: len(chunks),
			Content:    text,
			Metadata: core.ChunkMetadata{
				ContentType: contentType,
				StartLine:   start + 1,
				EndLine:     end,
			},
		})
	}
	return chunks
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
