package gen

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigError(t *testing.T) {
	err := &ConfigError{Setting: "Package", Value: "1db", Reason: "not a valid package name"}
	assert.EqualError(t, err, `relgraph/gen: Package "1db": not a valid package name`)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	err = &ConfigError{Setting: "Target", Reason: "missing target directory"}
	assert.EqualError(t, err, "relgraph/gen: Target: missing target directory")
	assert.NotErrorIs(t, err, ErrGenerationFailed)
}

func TestGenerationError(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := &GenerationError{Phase: PhaseFormat, File: "session.go", Detail: "unformatted output kept", Err: cause}
	assert.EqualError(t, err, "relgraph/gen: format session.go (unformatted output kept): unexpected EOF")
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrGenerationFailed)

	err = &GenerationError{Phase: PhaseWrite, File: "out"}
	assert.EqualError(t, err, "relgraph/gen: write out")
	assert.NoError(t, err.Unwrap())
}

func TestStaleError(t *testing.T) {
	missing := &StaleError{File: "db/session.go", Want: "ab"}
	assert.Contains(t, missing.Error(), "has no fingerprint")
	changed := &StaleError{File: "db/session.go", Want: "ab", Got: "cd"}
	assert.Contains(t, changed.Error(), "fingerprint cd, want ab")
	assert.ErrorIs(t, changed, ErrStale)
	assert.True(t, IsStale(changed))
	assert.False(t, IsStale(&ConfigError{Setting: "Table"}))
}
