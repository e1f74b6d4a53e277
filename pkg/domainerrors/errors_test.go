package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndError(t *testing.T) {
	err := New(CodeValidation, "a name is required")
	assert.EqualError(t, err, "validation: a name is required")
	assert.True(t, HasCode(err, CodeValidation))
	assert.False(t, HasCode(err, CodeNotFound))

	err = Newf(CodeNotFound, "temple record %d", 42)
	assert.EqualError(t, err, "not_found: temple record 42")
}

func TestWrapPreservesChain(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeUnavailable, "retire public code")

	assert.True(t, HasCode(err, CodeUnavailable))
	assert.ErrorIs(t, err, cause)
	assert.ErrorContains(t, err, "connection refused")

	assert.Nil(t, Wrap(nil, CodeInternal, "nothing"))
}

func TestHasCodeWalksNestedCodes(t *testing.T) {
	inner := New(CodeStaleVersion, "version moved")
	outer := Wrap(inner, CodeConflict, "update lost the race")

	assert.True(t, HasCode(outer, CodeConflict))
	assert.True(t, HasCode(outer, CodeStaleVersion))
	assert.False(t, HasCode(outer, CodeValidation))

	// Plain fmt wrapping in between still resolves.
	wrapped := fmt.Errorf("create temple record: %w", outer)
	assert.True(t, HasCode(wrapped, CodeStaleVersion))

	assert.False(t, HasCode(nil, CodeConflict))
	assert.False(t, HasCode(errors.New("uncoded"), CodeConflict))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeValidation, CodeOf(New(CodeValidation, "x")))
	assert.Equal(t, CodeConflict, CodeOf(Wrap(New(CodeStaleVersion, "x"), CodeConflict, "y")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("uncoded")))
}

func TestIsAliasesHasCode(t *testing.T) {
	err := New(CodeTimeout, "transaction aborted")
	assert.True(t, Is(err, CodeTimeout))
	assert.False(t, Is(err, CodeUnavailable))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:          http.StatusUnprocessableEntity,
		CodeInvariantViolation:  http.StatusUnprocessableEntity,
		CodeNotFound:            http.StatusNotFound,
		CodeConflict:            http.StatusConflict,
		CodeInvalidTransition:   http.StatusConflict,
		CodeStaleVersion:        http.StatusConflict,
		CodeAllocationExhausted: http.StatusServiceUnavailable,
		CodeUnavailable:         http.StatusServiceUnavailable,
		CodeTimeout:             http.StatusGatewayTimeout,
		CodeInternal:            http.StatusInternalServerError,
		Code("unmapped"):        http.StatusInternalServerError,
	}
	for code, want := range cases {
		require.Equal(t, want, ToHTTPStatus(code), string(code))
	}
}
