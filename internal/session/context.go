package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/OCAP2/placefinder/internal/auth"
	"github.com/OCAP2/placefinder/pkg/core"
)

// ViewLoader shows an identity's favourites once they sign in.
type ViewLoader interface {
	LoadFavouritesView(ctx context.Context, acting *core.Identity) ([]core.Marker, error)
}

// Context holds the signed-in identity, if any
type Context struct {
	mu       sync.RWMutex
	identity *core.Identity

	auth   auth.Provider
	loader ViewLoader
	log    *slog.Logger
}

// NewContext creates a Context with nobody signed in
func NewContext(provider auth.Provider, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{auth: provider, log: logger}
}

// AttachLoader sets the loader invoked after every sign-in
func (c *Context) AttachLoader(l ViewLoader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loader = l
}

// Current returns a copy of the signed-in identity, or nil
func (c *Context) Current() *core.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return nil
	}
	id := *c.identity
	return &id
}

// SignIn replaces any existing session with id and shows their favourites.
// The session is kept even if loading the view fails.
func (c *Context) SignIn(ctx context.Context, id core.Identity) ([]core.Marker, error) {
	c.mu.Lock()
	c.identity = &id
	loader := c.loader
	c.mu.Unlock()

	c.log.Info("Signed in", "identity", id.Key())
	if loader == nil {
		return nil, nil
	}
	return loader.LoadFavouritesView(ctx, &id)
}

// SignInWithCredential authenticates credential and signs the result in.
// On failure the session is unchanged.
func (c *Context) SignInWithCredential(ctx context.Context, credential string) (core.Identity, []core.Marker, error) {
	if c.auth == nil {
		return core.Identity{}, nil, core.ErrAuthFailed
	}
	id, err := c.auth.Authenticate(ctx, credential)
	if err != nil {
		c.log.Warn("Sign-in rejected", "error", err)
		return core.Identity{}, nil, err
	}
	markers, err := c.SignIn(ctx, id)
	return id, markers, err
}

// SignOut clears the session. The live collection is left as it is.
func (c *Context) SignOut() {
	c.mu.Lock()
	prev := c.identity
	c.identity = nil
	c.mu.Unlock()

	// logged outside the lock; log handlers may read the session
	if prev != nil {
		c.log.Info("Signed out", "identity", prev.Key())
	}
}
