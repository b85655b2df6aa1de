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


// Package search provides cosine-similarity retrieval over stored embeddings.
//
// The Searcher type scans a project's records, scores each candidate against
// the query vector, and returns the top results above a similarity threshold.
// Quantized candidates are dequantized on the fly before scoring, so the
// caller never needs to know which representation a record carries.
//
// Results are ordered by score descending; candidates with equal scores are
// ordered by most recent update, which keeps rankings deterministic.
package search
