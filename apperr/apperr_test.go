package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfAndStatus(t *testing.T) {
	wrapped := fmt.Errorf("start: %w", ErrAlreadyDone)
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, http.StatusConflict, KindOf(wrapped).Status())
	assert.Equal(t, "mission already completed", Message(wrapped))

	assert.Equal(t, KindBackend, KindOf(errors.New("db down")))
	assert.Equal(t, http.StatusInternalServerError, KindBackend.Status())
}

func TestSentinelsMatchWithIs(t *testing.T) {
	err := fmt.Errorf("lookup: %w", NotFound("mission not found"))
	assert.ErrorIs(t, err, ErrMissionNotFound)
	assert.NotErrorIs(t, err, ErrProfileMissing)
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("s3: access denied")
	err := Upload("falha no envio da evidência", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "falha no envio da evidência: s3: access denied", err.Error())
	assert.Equal(t, http.StatusBadGateway, err.Kind.Status())
}
