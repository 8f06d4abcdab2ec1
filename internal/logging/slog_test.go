package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/OCAP2/placefinder/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

func swapStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := osStdout
	osStdout = &buf
	t.Cleanup(func() { osStdout = orig })
	return &buf
}

func TestSetup_SessionFileOrStdout(t *testing.T) {
	stdout := swapStdout(t)

	var file bytes.Buffer
	m := NewSlogManager()
	m.Setup(&file, "info", nil)
	m.Logger().Info("search completed", "results", 4)

	assert.Contains(t, file.String(), "results=4")
	assert.Empty(t, stdout.String(), "stdout stays quiet when a log file is used")

	console := NewSlogManager()
	console.Setup(nil, "info", nil)
	console.Logger().Info("marker appended")
	assert.Contains(t, stdout.String(), "marker appended")
}

func TestSetup_Levels(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{"debug", true, true},
		{"DEBUG", true, true},
		{"info", false, true},
		{"warn", false, false},
		{"ERROR", false, false},
		{"", false, true},
		{"chatty", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			m := NewSlogManager()
			m.Setup(&buf, tt.level, nil)
			m.Logger().Debug("dropped duplicate place ids")
			m.Logger().Info("favourite toggled")

			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("dropped duplicate place ids")))
			assert.Equal(t, tt.wantInfo, bytes.Contains(buf.Bytes(), []byte("favourite toggled")))
		})
	}
}

func TestSetup_TimesAreUTC(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(&buf, "info", nil)
	m.Logger().Info("signed in")

	assert.Regexp(t, `time=\d{4}-\d\d-\d\dT\d\d:\d\d:\d\dZ`, buf.String())
}

func TestAttach_TagsRecords(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(&buf, "info", nil)
	logger := m.Logger()

	ids := &signedIn{id: &core.Identity{DisplayName: "Alice"}}
	gens := &generation{}
	gens.n.Store(7)
	m.Attach(ids, gens)

	logger.Info("favourites view loaded")
	assert.Contains(t, buf.String(), "identity=Alice")
	assert.Contains(t, buf.String(), "generation=7")
}

func TestLogger_DefaultBeforeSetup(t *testing.T) {
	assert.Equal(t, slog.Default(), NewSlogManager().Logger())
}

func TestSetup_WithOTelProvider(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(&buf, "info", provider)
	m.Logger().Info("search discarded")

	assert.Contains(t, buf.String(), "search discarded")
	assert.Contains(t, buf.String(), "sinks=2")
	assert.NoError(t, m.Flush(context.Background()))
}

func TestFlushAndClose_WithoutSinks(t *testing.T) {
	m := NewSlogManager()
	assert.NoError(t, m.Flush(context.Background()))
	assert.NoError(t, m.Close())
}

func TestEnableGraylog(t *testing.T) {
	m := NewSlogManager()
	assert.Error(t, m.EnableGraylog("not-an-address"))

	require.NoError(t, m.EnableGraylog("127.0.0.1:12201"))
	t.Cleanup(func() { _ = m.Close() })

	var buf bytes.Buffer
	m.Setup(&buf, "info", nil)
	m.Logger().Info("search failed")

	assert.Contains(t, buf.String(), "search failed", "file sink keeps receiving records")
	assert.Contains(t, buf.String(), "sinks=2")
}
