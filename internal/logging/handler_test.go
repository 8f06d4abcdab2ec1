package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/OCAP2/placefinder/pkg/core"
	"github.com/stretchr/testify/assert"
)

type signedIn struct{ id *core.Identity }

func (s *signedIn) Current() *core.Identity { return s.id }

type generation struct{ n atomic.Uint64 }

func (g *generation) Generation() uint64 { return g.n.Load() }

func TestSessionHandler_TagsIdentityAndGeneration(t *testing.T) {
	var buf bytes.Buffer
	ids := &signedIn{}
	gens := &generation{}
	state := &sessionState{}
	state.set(ids, gens)
	logger := slog.New(&sessionHandler{inner: slog.NewTextHandler(&buf, nil), state: state})

	logger.Info("search center set")
	ids.id = &core.Identity{Subject: "sub-alice", DisplayName: "Alice"}
	gens.n.Store(3)
	logger.Info("favourite toggled")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if assert.Len(t, lines, 2) {
		assert.NotContains(t, string(lines[0]), "identity=")
		assert.Contains(t, string(lines[0]), "generation=0")
		assert.Contains(t, string(lines[1]), "identity=sub-alice")
		assert.Contains(t, string(lines[1]), "generation=3")
	}
}

func TestSessionHandler_SourcesAttachedLater(t *testing.T) {
	var buf bytes.Buffer
	state := &sessionState{}
	logger := slog.New(&sessionHandler{inner: slog.NewTextHandler(&buf, nil), state: state}).
		With("component", "reconciler")

	logger.Info("before")
	assert.NotContains(t, buf.String(), "generation=")

	buf.Reset()
	state.set(nil, &generation{})
	logger.Info("after")
	assert.Contains(t, buf.String(), "component=reconciler")
	assert.Contains(t, buf.String(), "generation=0")
	assert.NotContains(t, buf.String(), "identity=")
}

// failingSink rejects every record.
type failingSink struct{ slog.Handler }

func (failingSink) Enabled(context.Context, slog.Level) bool  { return true }
func (failingSink) Handle(context.Context, slog.Record) error { return errors.New("graylog unreachable") }

func TestFanout_DeliversToEverySinkDespiteFailures(t *testing.T) {
	var file, console bytes.Buffer
	sinks := fanout{
		slog.NewTextHandler(&file, nil),
		failingSink{},
		slog.NewTextHandler(&console, nil),
	}

	err := sinks.Handle(context.Background(), slog.NewRecord(testTime, slog.LevelInfo, "marker appended", 0))
	assert.ErrorContains(t, err, "graylog unreachable")
	assert.Contains(t, file.String(), "marker appended")
	assert.Contains(t, console.String(), "marker appended")
}

func TestFanout_EnabledByAnySink(t *testing.T) {
	info := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelInfo})
	debug := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelDebug})
	ctx := context.Background()

	assert.False(t, fanout{info}.Enabled(ctx, slog.LevelDebug))
	assert.True(t, fanout{info, debug}.Enabled(ctx, slog.LevelDebug))
	assert.False(t, fanout{}.Enabled(ctx, slog.LevelError))
}

func TestFanout_LevelIsPerSink(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	logger := slog.New(fanout{
		slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})

	logger.Debug("dropped duplicate place ids", "count", 2)

	assert.Empty(t, infoBuf.String())
	assert.Contains(t, debugBuf.String(), "count=2")
}

func TestFanout_AttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(fanout{slog.NewTextHandler(&buf, nil)}).
		With("backend", "memory").
		WithGroup("search")

	logger.Info("search completed", "results", 12)

	assert.Contains(t, buf.String(), "backend=memory")
	assert.Contains(t, buf.String(), "search.results=12")

	f := fanout{slog.NewTextHandler(&buf, nil)}
	assert.Equal(t, f, f.WithGroup(""))
}
