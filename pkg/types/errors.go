// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an operation references an unknown id. It is
// a typed miss, not an abort: callers are expected to check for it.
var ErrNotFound = errors.New("not found")

// ErrInconsistentState marks an invariant violation, such as a chunk
// referencing a missing item. It always propagates to the caller as a hard
// failure and is never silently repaired.
var ErrInconsistentState = errors.New("inconsistent state")

// CapabilityError wraps a failure from an external model-serving
// capability. Transient failures (network, rate limit, 5xx) are retried by
// the capability client before one of these surfaces.
type CapabilityError struct {
	// Capability names the failed call: "embedding", "rerank", "ocr",
	// "transcribe", "summarize", "extract_entities", "classify_section",
	// "classify_intent".
	Capability string

	// Transient indicates the failure class after retries were exhausted.
	Transient bool

	Err error
}

func (e *CapabilityError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("capability %s: %s failure: %v", e.Capability, kind, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// IsCapabilityUnavailable reports whether err is a CapabilityError of any
// class. Components with a documented fallback path treat this as a signal
// to degrade rather than fail.
func IsCapabilityUnavailable(err error) bool {
	var ce *CapabilityError
	return errors.As(err, &ce)
}
