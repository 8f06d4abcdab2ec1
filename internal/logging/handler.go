package logging

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/OCAP2/placefinder/pkg/core"
)

// IdentitySource reports who is signed in, or nil.
type IdentitySource interface {
	Current() *core.Identity
}

// GenerationSource reports the reconciler's search generation.
type GenerationSource interface {
	Generation() uint64
}

// sessionState is shared by every handler derived from one SlogManager, so
// sources attached after Setup reach loggers that were already handed out.
type sessionState struct {
	mu          sync.RWMutex
	identities  IdentitySource
	generations GenerationSource
}

func (s *sessionState) set(ids IdentitySource, gens GenerationSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities = ids
	s.generations = gens
}

// attrs must not be called while holding a lock the sources take.
func (s *sessionState) attrs() []slog.Attr {
	s.mu.RLock()
	ids, gens := s.identities, s.generations
	s.mu.RUnlock()

	var out []slog.Attr
	if ids != nil {
		if id := ids.Current(); id != nil {
			out = append(out, slog.String("identity", id.Key()))
		}
	}
	if gens != nil {
		out = append(out, slog.Uint64("generation", gens.Generation()))
	}
	return out
}

// sessionHandler tags each record with the signed-in identity and the
// search generation it was logged under.
type sessionHandler struct {
	inner slog.Handler
	state *sessionState
}

func (h *sessionHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *sessionHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(h.state.attrs()...)
	return h.inner.Handle(ctx, r)
}

func (h *sessionHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sessionHandler{inner: h.inner.WithAttrs(attrs), state: h.state}
}

func (h *sessionHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &sessionHandler{inner: h.inner.WithGroup(name), state: h.state}
}

// fanout hands each record to every sink enabled for its level. A failing
// sink does not stop the others; their errors are joined.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
