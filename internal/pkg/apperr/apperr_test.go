package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesByKind(t *testing.T) {
	err := Conflict("unit %s is held by %s", "u1", "agent-b")
	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrForbidden))
	assert.Equal(t, "unit u1 is held by agent-b", err.Error())
}

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("approve: %w", NotFound("request not found"))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestWithIDs(t *testing.T) {
	base := Conflict("units already assigned to another event")
	err := base.WithIDs("a", "b")
	assert.Empty(t, base.IDs)
	assert.Equal(t, []string{"a", "b"}, IDsOf(err))
	assert.Equal(t, "units already assigned to another event: a, b", err.Error())
}

func TestSoft(t *testing.T) {
	assert.True(t, KindConflict.Soft())
	assert.True(t, KindAlreadyTerminal.Soft())
	assert.False(t, KindValidation.Soft())
	assert.Equal(t, "already_terminal", KindAlreadyTerminal.String())
}
