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

import "errors"

// Domain validation errors
var (
	// ErrInvalidRecord indicates an EmbeddingRecord failed validation.
	ErrInvalidRecord = errors.New("invalid embedding record")

	// ErrEmptyProjectId indicates the ProjectId field is empty.
	ErrEmptyProjectId = errors.New("project id cannot be empty")

	// ErrInvalidProjectId indicates a project id that cannot serve as a
	// storage key component.
	ErrInvalidProjectId = errors.New("invalid project id")

	// ErrEmptyFileId indicates the FileId field is empty.
	ErrEmptyFileId = errors.New("file id cannot be empty")

	// ErrEmptyContent indicates the Content field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrNegativeChunkIndex indicates a chunk index below zero.
	ErrNegativeChunkIndex = errors.New("chunk index cannot be negative")

	// ErrMissingVector indicates a record carries neither a raw nor a quantized vector.
	ErrMissingVector = errors.New("record must carry an embedding or a quantized payload")

	// ErrDimensionMismatch indicates a quantized payload whose Data length
	// disagrees with its declared Dimensions.
	ErrDimensionMismatch = errors.New("quantized payload dimensions mismatch")
)
