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


package core

import (
	"fmt"
	"strings"
)

// ValidateEmbeddingRecord validates an EmbeddingRecord according to domain rules.
//
// Validation rules:
//   - ProjectId must be valid per ValidateProjectId; FileId must not be empty
//   - Content must not be empty
//   - ChunkIndex must not be negative
//   - Exactly one of Embedding / Quantized must be populated
//   - A quantized payload must be internally consistent
//
// NOT validated:
//   - FilePath (advisory, may be empty)
//   - Hash and timestamps (populated by the store on write)
func ValidateEmbeddingRecord(record *EmbeddingRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}

	if err := ValidateProjectId(record.ProjectId); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	if record.FileId == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyFileId)
	}

	if record.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyContent)
	}

	if record.ChunkIndex < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrNegativeChunkIndex)
	}

	if len(record.Embedding) == 0 && record.Quantized == nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrMissingVector)
	}

	if record.Quantized != nil {
		if err := ValidateQuantizedVector(record.Quantized); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
		}
	}

	return nil
}

// ValidateProjectId checks that a project id is usable as a storage key
// component. Storage keys separate their components with ':', so a project
// id containing one would collapse into another project's key space.
func ValidateProjectId(projectId string) error {
	if projectId == "" {
		return ErrEmptyProjectId
	}
	if strings.ContainsRune(projectId, ':') {
		return fmt.Errorf("%w: %q must not contain ':'", ErrInvalidProjectId, projectId)
	}
	return nil
}

// ValidateQuantizedVector checks that a quantized payload is internally consistent.
func ValidateQuantizedVector(q *QuantizedVector) error {
	if len(q.Data) != q.Dimensions {
		return fmt.Errorf("%w: data length %d, dimensions %d",
			ErrDimensionMismatch, len(q.Data), q.Dimensions)
	}
	return nil
}
