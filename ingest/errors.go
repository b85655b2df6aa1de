package ingest

import "errors"

var (
	// ErrRepositoryRequired is returned when an embedding repository is not provided.
	ErrRepositoryRequired = errors.New("embedding repository required")

	// ErrGeneratorRequired is returned when an embedding generator is not provided.
	ErrGeneratorRequired = errors.New("embedding generator required")

	// ErrEmptyProjectId is returned when ingestion is attempted without a project.
	ErrEmptyProjectId = errors.New("project id required")
)
