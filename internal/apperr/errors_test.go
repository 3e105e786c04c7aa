package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindsMapToStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		kind   error
		status int
	}{
		{"validation", Validation("bad"), ErrValidation, http.StatusBadRequest},
		{"conflict", Conflict("dup"), ErrConflict, http.StatusConflict},
		{"not found", NotFound("nope"), ErrNotFound, http.StatusNotFound},
		{"unauthorized", Unauthorized("no"), ErrUnauthorized, http.StatusUnauthorized},
		{"internal", Internal("boom", errors.New("db down")), ErrInternal, http.StatusInternalServerError},
		{"plain error", errors.New("raw"), nil, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.kind != nil {
				assert.ErrorIs(t, tt.err, tt.kind)
			}
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("login: %w", Unauthorized("invalid password"))
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "invalid password", PublicMessage(err))
}

func TestInternalHidesCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("pq: connection refused")
	err := Internal("failed to issue tokens", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to issue tokens", PublicMessage(err))
	assert.Contains(t, err.Error(), "connection refused")
	assert.True(t, IsInternal(err))
	assert.Equal(t, "internal server error", PublicMessage(errors.New("raw")))
}
