package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, NotFound, KindOf(New(NotFound, "room.find", "room not found")))
	assert.Equal(t, Forbidden, KindOf(fmt.Errorf("wrapped: %w", New(Forbidden, "op", "no"))))
	assert.Equal(t, Internal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestIsMatchesKind(t *testing.T) {
	err := New(AlreadyMember, "membership.join", "already a member")
	assert.True(t, errors.Is(err, E(AlreadyMember)))
	assert.False(t, errors.Is(err, E(NotFound)))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("row missing")
	err := Wrap(NotFound, "store.find", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "store.find: row missing", err.Error())
}

func TestMessageHidesInternalCauses(t *testing.T) {
	assert.Equal(t, "internal error", Message(errors.New("pq: connection refused")))
	assert.Equal(t, "internal error", Message(Wrap(Internal, "op", errors.New("secret"))))
	assert.Equal(t, "room not found", Message(New(NotFound, "op", "room not found")))
}
