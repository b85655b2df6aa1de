// Package generator turns batches of text chunks into embedding vectors while
// surviving provider rate limits.
//
// A Generator is configured with an ordered list of providers (typically a
// local in-process model first, a remote service second) and processes
// batches either sequentially or in parallel on a worker pool. Transient
// failures are retried with exponential backoff; permanent failures fail the
// batch immediately. When a provider exhausts its retries for a batch, the
// generator falls through to the next provider for that batch only. Output
// order always matches input order regardless of parallel completion order,
// and partial success is reported per batch rather than silently dropped.
//
// In parallel mode the effective concurrency ceiling adapts downward:
// sustained rate-limit rejections within a sliding window halve the ceiling
// for the remainder of the run. A fresh run starts at the configured ceiling
// again.
package generator
