package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesCode(t *testing.T) {
	err := staleState("assigned", "completed")
	assert.ErrorIs(t, err, ErrStaleState)
	assert.NotErrorIs(t, err, ErrInvalidTransition)

	wrapped := fmt.Errorf("handler: %w", invalidAssignee("nope"))
	assert.ErrorIs(t, wrapped, ErrInvalidAssignee)
	assert.Equal(t, CodeInvalidAssignee, CodeOf(wrapped))
}

func TestError_PersistenceKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := persistenceError("update request", cause)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, "update request failed", err.Message)
}

func TestCodeOf_ForeignError(t *testing.T) {
	assert.Equal(t, CodePersistence, CodeOf(errors.New("raw")))
}

func TestValidationError_ListsFields(t *testing.T) {
	err := validationError("invalid request", map[string]string{"title": "required", "category": "category"})
	assert.Equal(t, "invalid request: category, title", err.Message)
}
