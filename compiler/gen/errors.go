// Package gen emits the source-text form of a session operation table: a
// typed Go wrapper with one method per operation, and a markdown reference.
package gen

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is matched by every ConfigError.
	ErrInvalidConfig = errors.New("relgraph/gen: invalid generator configuration")
	// ErrGenerationFailed is matched by every GenerationError.
	ErrGenerationFailed = errors.New("relgraph/gen: code generation failed")
	// ErrStale is matched by every StaleError.
	ErrStale = errors.New("relgraph/gen: generated code is stale")
)

// ConfigError rejects a Generator setting.
type ConfigError struct {
	Setting string // e.g. "Package"
	Value   any    // nil when the setting is missing
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("relgraph/gen: %s: %s", e.Setting, e.Reason)
	}
	return fmt.Sprintf("relgraph/gen: %s %q: %s", e.Setting, fmt.Sprint(e.Value), e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrInvalidConfig }

// Phase is the step of a generation run.
type Phase string

// Generation phases.
const (
	PhaseRender Phase = "render"
	PhaseFormat Phase = "format"
	PhaseWrite  Phase = "write"
)

// GenerationError reports a file that could not be produced.
type GenerationError struct {
	Phase  Phase
	File   string
	Detail string
	Err    error
}

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("relgraph/gen: %s %s", e.Phase, e.File)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGenerationFailed }

// StaleError reports a generated file whose fingerprint differs from the
// fingerprint of the current operation table.
type StaleError struct {
	File string
	Want string
	Got  string // empty when the file or its fingerprint is missing
}

func (e *StaleError) Error() string {
	if e.Got == "" {
		return fmt.Sprintf("relgraph/gen: %s has no fingerprint, want %s", e.File, e.Want)
	}
	return fmt.Sprintf("relgraph/gen: %s fingerprint %s, want %s", e.File, e.Got, e.Want)
}

func (e *StaleError) Is(target error) bool { return target == ErrStale }

// IsStale reports whether err is, or wraps, a StaleError.
func IsStale(err error) bool {
	var stale *StaleError
	return errors.As(err, &stale)
}
