package jeterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsSentinel(t *testing.T) {
	err := New(NotFound, "table %q", "Customers")
	require.True(t, errors.Is(err, NotFoundErr))
	require.False(t, errors.Is(err, IoFailureErr))
}

func TestWrapNilCauseReturnsNil(t *testing.T) {
	var cause error
	require.Nil(t, Wrap(IoFailure, cause, "read page %d", 3))
}

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := fmt.Errorf("disk gone")
	err := Wrap(IoFailure, cause, "read page %d", 3)
	require.ErrorIs(t, err, cause)
}

func TestIsHelper(t *testing.T) {
	err := New(InvalidValue, "value too long")
	require.True(t, Is(err, InvalidValue))
	require.False(t, Is(err, Unsupported))
	require.False(t, Is(errors.New("plain"), InvalidValue))
}

func TestErrorMessageIncludesKindAndCause(t *testing.T) {
	err := Wrap(FormatViolation, fmt.Errorf("bad magic"), "page 0")
	require.Contains(t, err.Error(), "format violation")
	require.Contains(t, err.Error(), "bad magic")
}
