package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/OCAP2/placefinder/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuth map[string]core.Identity

func (s stubAuth) Authenticate(_ context.Context, credential string) (core.Identity, error) {
	id, ok := s[credential]
	if !ok {
		return core.Identity{}, fmt.Errorf("%w: unknown credential", core.ErrAuthFailed)
	}
	return id, nil
}

type stubLoader struct {
	calls []string
	err   error
}

func (l *stubLoader) LoadFavouritesView(_ context.Context, acting *core.Identity) ([]core.Marker, error) {
	l.calls = append(l.calls, acting.Key())
	if l.err != nil {
		return nil, l.err
	}
	return []core.Marker{{ID: "1", Name: "Church A", IsFavourite: true}}, nil
}

func newContext() (*Context, *stubLoader) {
	c := NewContext(stubAuth{
		"alice-token": {Subject: "a", DisplayName: "Alice"},
		"bob-token":   {Subject: "b", DisplayName: "Bob"},
	}, nil)
	l := &stubLoader{}
	c.AttachLoader(l)
	return c, l
}

func TestContext_StartsSignedOut(t *testing.T) {
	c, _ := newContext()
	assert.Nil(t, c.Current())
}

func TestContext_SignInLoadsFavouritesView(t *testing.T) {
	c, l := newContext()

	markers, err := c.SignIn(context.Background(), core.Identity{Subject: "a", DisplayName: "Alice"})
	require.NoError(t, err)
	require.Len(t, markers, 1)
	assert.Equal(t, []string{"a"}, l.calls)
	assert.Equal(t, "Alice", c.Current().DisplayName)
}

func TestContext_SignInReplacesSession(t *testing.T) {
	c, _ := newContext()
	ctx := context.Background()

	_, _, err := c.SignInWithCredential(ctx, "alice-token")
	require.NoError(t, err)
	_, _, err = c.SignInWithCredential(ctx, "bob-token")
	require.NoError(t, err)
	assert.Equal(t, "b", c.Current().Subject)
}

func TestContext_FailedSignInKeepsSession(t *testing.T) {
	c, l := newContext()
	ctx := context.Background()

	_, _, err := c.SignInWithCredential(ctx, "alice-token")
	require.NoError(t, err)

	_, _, err = c.SignInWithCredential(ctx, "forged")
	assert.ErrorIs(t, err, core.ErrAuthFailed)
	assert.Equal(t, "a", c.Current().Subject)
	assert.Len(t, l.calls, 1)
}

func TestContext_LoaderFailureKeepsIdentity(t *testing.T) {
	c, l := newContext()
	l.err = errors.New("store offline")

	_, err := c.SignIn(context.Background(), core.Identity{DisplayName: "Carol"})
	assert.Error(t, err)
	assert.Equal(t, "Carol", c.Current().Key())
}

func TestContext_SignOut(t *testing.T) {
	c, l := newContext()

	_, _, err := c.SignInWithCredential(context.Background(), "alice-token")
	require.NoError(t, err)
	c.SignOut()
	assert.Nil(t, c.Current())
	assert.Len(t, l.calls, 1)

	assert.NotPanics(t, c.SignOut)
}

func TestContext_CurrentIsACopy(t *testing.T) {
	c, _ := newContext()
	_, err := c.SignIn(context.Background(), core.Identity{Subject: "a"})
	require.NoError(t, err)

	c.Current().Subject = "mutated"
	assert.Equal(t, "a", c.Current().Subject)
}

func TestContext_NoProvider(t *testing.T) {
	c := NewContext(nil, nil)
	_, _, err := c.SignInWithCredential(context.Background(), "anything")
	assert.ErrorIs(t, err, core.ErrAuthFailed)
	assert.Nil(t, c.Current())
}
