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


// Package provider defines the embedding-provider boundary of the index engine.
//
// The engine never talks to a concrete embedding service directly; it depends
// on the Embedder interface and on the error classification in this package.
// Every failure crossing this boundary is classified as either transient
// (rate limit, timeout, transient network error — worth retrying) or
// permanent (bad input, authentication failure, provider-side quota — not
// worth retrying). The generator's retry and fallback behavior is driven
// entirely by that classification.
//
// # Implementation Packages
//
//   - provider/openai: production implementation for OpenAI-compatible APIs,
//     covering both local inference servers (Ollama, LocalAI, vLLM) and
//     remote endpoints
//   - provider/mock: test doubles with injectable behavior, scripted
//     failures, and deterministic vectors
//
// Public constructors return the Embedder interface to enforce abstraction;
// mock constructors return concrete types so tests can make assertions.
package provider
