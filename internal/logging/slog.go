package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// ServiceName is the instrumentation scope used for OTel log records and
// the Graylog facility.
const ServiceName = "placefinder"

// swapped in tests
var osStdout io.Writer = os.Stdout

// SlogManager builds the process logger. Records go to the session log file
// (stdout without one), to OTel and to Graylog when enabled, each tagged
// with the signed-in identity and search generation once sources are
// attached.
type SlogManager struct {
	logger      *slog.Logger
	state       sessionState
	logProvider *sdklog.LoggerProvider
	graylog     *gelf.Writer
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// EnableGraylog ships every record as JSON to a GELF UDP endpoint.
// Must be called before Setup.
func (m *SlogManager) EnableGraylog(address string) error {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return fmt.Errorf("failed to create graylog writer: %w", err)
	}
	w.Facility = ServiceName
	m.graylog = w
	return nil
}

// Attach sets where the identity and generation attributes come from.
// Either may be nil. It can be called before or after Setup.
func (m *SlogManager) Attach(ids IdentitySource, gens GenerationSource) {
	m.state.set(ids, gens)
}

// Setup builds the logger. A nil provider disables the OTel sink.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider) {
	m.logProvider = provider

	opts := &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: utcTime,
	}
	if file == nil {
		file = osStdout
	}
	sinks := fanout{slog.NewTextHandler(file, opts)}
	if provider != nil {
		sinks = append(sinks, otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(provider)))
	}
	if m.graylog != nil {
		sinks = append(sinks, slog.NewJSONHandler(m.graylog, opts))
	}

	m.logger = slog.New(&sessionHandler{inner: sinks, state: &m.state})
	m.logger.Info("Logging initialized", "logLevel", opts.Level, "sinks", len(sinks))
}

func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		if t, ok := a.Value.Any().(time.Time); ok {
			a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
		}
	}
	return a
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces out buffered OTel records.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider == nil {
		return nil
	}
	return m.logProvider.ForceFlush(ctx)
}

// Close releases the Graylog connection, if any.
func (m *SlogManager) Close() error {
	if m.graylog == nil {
		return nil
	}
	return m.graylog.Close()
}
