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


// Package storage provides the quota-bounded persistence layer for embedding
// records.
//
// This package defines the repository interface that decouples storage
// implementation from the engine, the binary serialization for persisted
// values, and the structured quota errors. The BadgerDB implementation lives
// in storage/badger.
//
// # Quota model
//
// Every write is charged a marginal byte cost (content length + vector
// payload + a fixed per-record overhead). The cost is checked against the
// project quota and the global quota before the write becomes durable, and
// the usage counters are committed in the same transaction as the record so
// a crash can never leave one changed without the other. A project without
// an explicit quota inherits the global quota. Usage is recomputed from the
// persisted rows when the store opens; it is never trusted from a stale
// cache across restarts.
//
// # Constructor Return Type Pattern
//
// Public constructors return the EmbeddingRepository interface to enforce
// abstraction and keep alternative backends swappable:
//
//	repo, err := badger.NewEmbeddingRepository(path, cfg)
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Writes for one project
// are serialized with respect to quota accounting; reads never observe a
// partially written record.
package storage
