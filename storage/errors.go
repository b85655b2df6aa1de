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


package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrQuotaExceeded is the sentinel matched by errors.Is for any quota
	// rejection; the concrete *QuotaExceededError carries the detail.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// QuotaScope identifies which quota rejected a write.
type QuotaScope string

const (
	// QuotaScopeProject marks a rejection by the project's own quota.
	QuotaScopeProject QuotaScope = "project"

	// QuotaScopeGlobal marks a rejection by the deployment-wide quota.
	QuotaScopeGlobal QuotaScope = "global"
)

// QuotaExceededError reports a rejected write with enough structured detail
// to be actionable without inspecting logs: which quota was hit and the
// attempted vs. available bytes. It is never retried automatically — the
// caller must raise the quota or prune data.
type QuotaExceededError struct {
	Scope          QuotaScope
	ProjectId      string
	AttemptedBytes int64
	UsedBytes      int64
	LimitBytes     int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s quota exceeded for project %s: attempted %d bytes, %d of %d used",
		e.Scope, e.ProjectId, e.AttemptedBytes, e.UsedBytes, e.LimitBytes)
}

// Is makes errors.Is(err, ErrQuotaExceeded) match.
func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}
