package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/OCAP2/placefinder/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

func TestNew_Disabled(t *testing.T) {
	p, err := New(context.Background(), config.OTelConfig{}, &bytes.Buffer{}, "dev", nil)
	require.NoError(t, err)

	assert.Nil(t, p.LoggerProvider())
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_EnabledWithoutExporters(t *testing.T) {
	_, err := New(context.Background(), config.OTelConfig{Enabled: true}, nil, "dev", nil)
	assert.ErrorContains(t, err, "neither a log file nor an endpoint")
}

func TestNew_ExportsToSessionFile(t *testing.T) {
	var file bytes.Buffer
	ctx := context.Background()

	p, err := New(ctx, config.OTelConfig{Enabled: true, BatchTimeout: time.Second}, &file, "1.4.0", nil)
	require.NoError(t, err)
	require.NotNil(t, p.LoggerProvider())

	logger := otelslog.NewLogger("placefinder", otelslog.WithLoggerProvider(p.LoggerProvider()))
	logger.Info("favourite toggled", "identity", "sub-alice")

	require.NoError(t, p.Flush(ctx))
	out := file.String()
	assert.Contains(t, out, "favourite toggled")
	assert.Contains(t, out, "sub-alice")
	assert.Contains(t, out, "1.4.0", "resource carries the build version")
	assert.Contains(t, out, defaultServiceName, "service name falls back to the default")

	assert.NoError(t, p.Shutdown(ctx))
}
