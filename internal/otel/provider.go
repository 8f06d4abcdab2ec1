package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/OCAP2/placefinder/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const defaultServiceName = "placefinder"

// Provider owns the OTel log pipeline the slog bridge writes to. The zero
// pipeline (OTel disabled) is valid; every method is then a no-op.
type Provider struct {
	logs *sdklog.LoggerProvider
}

// New builds the pipeline for cfg. Records are exported as pretty JSON to
// file when it is non-nil, and to an OTLP/HTTP collector when cfg.Endpoint
// is set. Exporter errors are reported to errLog.
func New(ctx context.Context, cfg config.OTelConfig, file io.Writer, version string, errLog *slog.Logger) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}

	exporters, err := logExporters(ctx, cfg, file)
	if err != nil {
		return nil, err
	}

	name := cfg.ServiceName
	if name == "" {
		name = defaultServiceName
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(name),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	for _, exp := range exporters {
		opts = append(opts, sdklog.WithProcessor(
			sdklog.NewBatchProcessor(exp, sdklog.WithExportTimeout(cfg.BatchTimeout)),
		))
	}

	if errLog == nil {
		errLog = slog.Default()
	}
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		errLog.Warn("OTel export error", "error", err)
	}))

	return &Provider{logs: sdklog.NewLoggerProvider(opts...)}, nil
}

func logExporters(ctx context.Context, cfg config.OTelConfig, file io.Writer) ([]sdklog.Exporter, error) {
	var out []sdklog.Exporter

	if file != nil {
		exp, err := stdoutlog.New(stdoutlog.WithWriter(file), stdoutlog.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create file log exporter: %w", err)
		}
		out = append(out, exp)
	}

	if cfg.Endpoint != "" {
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		exp, err := otlploghttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
		}
		out = append(out, exp)
	}

	if len(out) == 0 {
		return nil, errors.New("otel enabled but neither a log file nor an endpoint is configured")
	}
	return out, nil
}

// LoggerProvider returns the provider for the otelslog bridge, or nil when
// OTel is disabled.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.logs
}

// Flush exports every buffered record.
func (p *Provider) Flush(ctx context.Context) error {
	if p.logs == nil {
		return nil
	}
	if err := p.logs.ForceFlush(ctx); err != nil {
		return fmt.Errorf("log flush failed: %w", err)
	}
	return nil
}

// Shutdown flushes and stops the pipeline. Call it once on exit.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.logs == nil {
		return nil
	}
	if err := p.logs.Shutdown(ctx); err != nil {
		return fmt.Errorf("log shutdown failed: %w", err)
	}
	return nil
}
