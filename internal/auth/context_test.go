package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/DukeRupert/quotaledger/internal/domain"
)

func TestUserContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetUser(ctx))
	_, ok := UserID(ctx)
	assert.False(t, ok)

	user := &domain.User{ID: uuid.New(), Email: "a@example.com"}
	ctx = SetUser(ctx, user)

	assert.Same(t, user, GetUser(ctx))
	id, ok := UserID(ctx)
	assert.True(t, ok)
	assert.Equal(t, user.ID, id)

	r := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	assert.Same(t, user, GetUserFromRequest(r))
}
