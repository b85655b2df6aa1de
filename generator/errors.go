package generator

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrProviderRequired is returned when no embedding provider is configured.
	ErrProviderRequired = errors.New("at least one embedding provider required")

	// ErrGeneratorClosed is returned when a generation run is started after Close.
	ErrGeneratorClosed = errors.New("generator is closed")

	// ErrAllProvidersFailed marks a batch for which every provider tier was
	// exhausted.
	ErrAllProvidersFailed = errors.New("all providers failed")

	// ErrBatchSizeMismatch indicates a provider returned a different number
	// of vectors than texts submitted.
	ErrBatchSizeMismatch = errors.New("embedding count mismatch")
)
