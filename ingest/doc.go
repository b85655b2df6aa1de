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


// Package ingest turns source chunks into stored embedding records.
//
// The pipeline hashes each chunk and skips any whose content is unchanged
// since the last run, batches the rest through the embedding generator, and
// quantizes the resulting vectors before storing them. A vector whose
// quantization error exceeds the configured floor is stored in its original
// float form instead, trading storage for fidelity on that record.
package ingest
