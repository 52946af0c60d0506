package apperrors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesWrappedCode(t *testing.T) {
	err := fmt.Errorf("load chat: %w", NotFound("chat", nil))

	assert.True(t, Is(err, CodeNotFound))
	assert.False(t, Is(err, CodeForbidden))
	assert.False(t, Is(assert.AnError, CodeNotFound))
}

func TestStatusOf(t *testing.T) {
	status, msg := StatusOf(Forbidden("not a participant"))
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "not a participant", msg)

	status, msg = StatusOf(BadRequest("chat is deleted", nil))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "chat is deleted", msg)

	status, msg = StatusOf(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal error", msg)
}

func TestErrorUnwrap(t *testing.T) {
	err := Internal("store failure", assert.AnError)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "store failure")
}
