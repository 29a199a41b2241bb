package identity

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"guardget/database/repository/repotest"
	"guardget/models"
	"guardget/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveByEmail(t *testing.T) {
	ctx := context.Background()
	stores := repotest.NewStores(t)
	bob := repotest.SeedUser(t, stores, "bob")
	svc := &DefaultIdentityService{Repo: stores.Users}

	got, err := svc.ResolveByEmail(ctx, " BOB@Example.com")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, got.ID)

	_, err = svc.ResolveByEmail(ctx, "ghost@example.com")
	assert.True(t, errors.Is(err, models.ErrRecipientNotFound))

	_, err = svc.GetUser(ctx, "missing")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestIssueTokenRotates(t *testing.T) {
	ctx := context.Background()
	stores := repotest.NewStores(t)
	svc := &DefaultIdentityService{Repo: stores.Users}

	user, err := svc.CreateUser(ctx, &models.User{Name: "Erin", Email: "Erin@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, "erin@example.com", user.Email)

	first, err := svc.IssueToken(ctx, user.ID, time.Hour)
	require.NoError(t, err)
	authed, err := svc.Authenticate(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)

	// tokens minted in the same second are identical, so wait for a new iat
	time.Sleep(1100 * time.Millisecond)
	second, err := svc.IssueToken(ctx, user.ID, time.Hour)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	_, err = svc.Authenticate(ctx, first)
	assert.Error(t, err)
	_, err = svc.Authenticate(ctx, "garbage")
	assert.Error(t, err)
}

type forgettingCache struct {
	forgotten []string
}

func (c *forgettingCache) Forget(_ context.Context, tokenHash string) error {
	c.forgotten = append(c.forgotten, tokenHash)
	return nil
}

func TestIssueTokenForgetsRevokedToken(t *testing.T) {
	ctx := context.Background()
	stores := repotest.NewStores(t)
	cache := &forgettingCache{}
	svc := &DefaultIdentityService{Repo: stores.Users, TokenCache: cache}
	user := repotest.SeedUser(t, stores, "frank")

	first, err := svc.IssueToken(ctx, user.ID, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, cache.forgotten)

	second, err := svc.IssueToken(ctx, user.ID, 2*time.Hour)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	assert.Equal(t, []string{utils.HashToken(first)}, cache.forgotten)
}

func TestCreateUserValidation(t *testing.T) {
	svc := &DefaultIdentityService{Repo: repotest.NewStores(t).Users}
	_, err := svc.CreateUser(context.Background(), &models.User{Name: "", Email: "x@example.com"})
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestCreateUserDuplicateEmailIsConflict(t *testing.T) {
	ctx := context.Background()
	svc := &DefaultIdentityService{Repo: repotest.NewStores(t).Users}
	_, err := svc.CreateUser(ctx, &models.User{Name: "Erin", Email: "erin@example.com"})
	require.NoError(t, err)

	_, err = svc.CreateUser(ctx, &models.User{Name: "Erin Again", Email: " ERIN@example.com"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrEmailExists))
	assert.False(t, errors.Is(err, models.ErrValidation))
	appErr, ok := models.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, appErr.HTTPStatus())
}
