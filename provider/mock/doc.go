// Package mock provides test doubles for the provider package.
//
// MockEmbedder supports behavior injection via function fields, scripted
// failure sequences for exercising retry and fallback paths, and optional
// artificial latency for concurrency tests. All counters are safe for
// concurrent use.
package mock
