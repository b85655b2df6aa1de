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


package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// FailureKind classifies a provider failure for retry purposes.
type FailureKind int

const (
	// FailureTransient marks a failure worth retrying: rate limit, timeout,
	// transient network error.
	FailureTransient FailureKind = iota + 1

	// FailurePermanent marks a failure that cannot succeed on retry: invalid
	// input, authentication failure, provider-side quota exhaustion.
	FailurePermanent
)

// Error is a classified provider failure.
type Error struct {
	Kind     FailureKind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	kind := "transient"
	if e.Kind == FailurePermanent {
		kind = "permanent"
	}
	return fmt.Sprintf("provider %s: %s failure: %v", e.Provider, kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable provider failure.
func Transient(name string, err error) error {
	return &Error{Kind: FailureTransient, Provider: name, Err: err}
}

// Permanent wraps err as a non-retryable provider failure.
func Permanent(name string, err error) error {
	return &Error{Kind: FailurePermanent, Provider: name, Err: err}
}

// IsTransient reports whether err should be retried. Timeouts and
// unclassified errors count as transient; only an explicit permanent
// classification stops the retry path.
func IsTransient(err error) bool {
	return !IsPermanent(err)
}

// IsPermanent reports whether err is classified as non-retryable.
func IsPermanent(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == FailurePermanent
	}
	return false
}

// Classify wraps an error coming back from an embedding API call.
// Timeouts and cancellation are transient by contract; authentication and
// malformed-input failures are permanent. Anything unrecognized is treated
// as transient so a flaky network never permanently fails a batch.
func Classify(name string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err // already classified
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Transient(name, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401"),
		strings.Contains(msg, "403"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "authentication"),
		strings.Contains(msg, "invalid api key"):
		return Permanent(name, err)
	case strings.Contains(msg, "400"),
		strings.Contains(msg, "invalid request"),
		strings.Contains(msg, "invalid input"),
		strings.Contains(msg, "context length"):
		return Permanent(name, err)
	case strings.Contains(msg, "insufficient_quota"),
		strings.Contains(msg, "billing"):
		return Permanent(name, err)
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "capacity"),
		strings.Contains(msg, "overloaded"),
		strings.Contains(msg, "timeout"):
		return Transient(name, err)
	default:
		return Transient(name, err)
	}
}

// IsRateLimit reports whether err looks like a provider rate-limit or
// capacity rejection. The generator uses this signal for adaptive
// concurrency reduction; plain timeouts do not shrink the ceiling.
func IsRateLimit(err error) bool {
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != FailureTransient {
		return false
	}
	msg := strings.ToLower(pe.Err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "capacity") ||
		strings.Contains(msg, "overloaded")
}
