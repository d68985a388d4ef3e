package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "accounts/internal/errors"
	"accounts/internal/model"
)

func TestPrincipal_CanModify(t *testing.T) {
	tests := []struct {
		name      string
		principal Principal
		target    uint
		want      error
	}{
		{"anonymous denied", Anonymous(), 1, apperrors.ErrUnauthorized},
		{"self allowed", Authenticated(1, false), 1, nil},
		{"other user denied", Authenticated(1, false), 2, apperrors.ErrForbidden},
		{"staff on self", Authenticated(1, true), 1, nil},
		{"staff on other", Authenticated(1, true), 2, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.principal.CanModify(tt.target))
		})
	}
}

func TestPrincipal_RequireAuthenticated(t *testing.T) {
	assert.ErrorIs(t, Anonymous().RequireAuthenticated(), apperrors.ErrUnauthorized)
	assert.NoError(t, Authenticated(3, false).RequireAuthenticated())
	assert.True(t, ForUser(nil).IsAnonymous())
	assert.Equal(t, KindStaff, ForUser(&model.User{ID: 1, IsStaff: true}).Kind)
}

func TestPrincipal_Visible(t *testing.T) {
	users := []model.User{{ID: 1}, {ID: 2}, {ID: 3}}

	assert.Len(t, Authenticated(9, true).Visible(users), 3)

	own := Authenticated(2, false).Visible(users)
	if assert.Len(t, own, 1) {
		assert.Equal(t, uint(2), own[0].ID)
	}

	assert.Empty(t, Authenticated(9, false).Visible(users))
	assert.Empty(t, Anonymous().Visible(users))
}
