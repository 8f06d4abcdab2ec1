package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/OCAP2/placefinder/internal/auth"
	"github.com/OCAP2/placefinder/internal/config"
	"github.com/OCAP2/placefinder/internal/dispatcher"
	"github.com/OCAP2/placefinder/internal/events"
	"github.com/OCAP2/placefinder/internal/favourites"
	"github.com/OCAP2/placefinder/internal/handlers"
	"github.com/OCAP2/placefinder/internal/influx"
	"github.com/OCAP2/placefinder/internal/logging"
	"github.com/OCAP2/placefinder/internal/observability"
	intOtel "github.com/OCAP2/placefinder/internal/otel"
	"github.com/OCAP2/placefinder/internal/provider/geocode"
	"github.com/OCAP2/placefinder/internal/provider/places"
	"github.com/OCAP2/placefinder/internal/reconciler"
	"github.com/OCAP2/placefinder/internal/server"
	"github.com/OCAP2/placefinder/internal/session"
	"github.com/OCAP2/placefinder/internal/storage"
	"github.com/OCAP2/placefinder/pkg/core"
	"github.com/rs/zerolog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const appName = "placefinder"

// app holds every wired component for one process.
type app struct {
	start time.Time

	logs    *logging.SlogManager
	logFile *os.File
	logger  *slog.Logger
	zlog    zerolog.Logger
	otel    *intOtel.Provider

	backend    storage.Backend
	store      *favourites.Store
	auth       *auth.JWTProvider
	session    *session.Context
	reconciler *reconciler.Reconciler
	dispatcher *dispatcher.Dispatcher
	hub        *server.Hub

	influx *influx.Manager
	kafka  *events.Publisher
}

// appOptions selects the optional parts of the wiring.
type appOptions struct {
	// withHub attaches a WebSocket hub as an observer.
	withHub bool
	// withSinks connects the InfluxDB and Kafka observers when enabled.
	withSinks bool
	// seed shows the configured seed markers.
	seed bool
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	a := &app{start: time.Now()}
	if err := a.setupLogging(); err != nil {
		return nil, err
	}

	backend, err := storage.NewBackend(config.GetStorageConfig(), a.logger, a.zlog)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		a.Close()
		return nil, fmt.Errorf("init storage backend: %w", err)
	}
	a.backend = backend
	a.store = favourites.New(backend, a.logger)

	var provider auth.Provider
	if authCfg := config.GetAuthConfig(); authCfg.SigningKey != "" {
		a.auth, err = auth.NewJWTProvider(authCfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		provider = a.auth
	} else {
		a.logger.Warn("No auth.signingKey configured, sign-in is disabled")
	}
	a.session = session.NewContext(provider, a.logger)

	providerCfg := config.GetProviderConfig()
	geocoder, err := geocode.New(providerCfg, a.logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	searcher, err := places.New(providerCfg, a.logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.dispatcher, err = dispatcher.New(logging.NewCommandLogger(a.zlog))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}

	recOpts := []reconciler.Option{
		reconciler.WithLogger(a.logger),
		reconciler.WithIdentitySource(a.session),
		reconciler.WithRadius(config.GetFloat("search.radius")),
		reconciler.WithObserver(observability.NewMetrics()),
	}
	if opts.withHub {
		a.hub = server.NewHub(a.dispatcher, a.logger)
		recOpts = append(recOpts, reconciler.WithObserver(a.hub))
	}
	if opts.withSinks {
		recOpts = append(recOpts, a.connectSinks(ctx)...)
	}

	a.reconciler = reconciler.New(geocoder, searcher, a.store, recOpts...)
	a.session.AttachLoader(a.reconciler)
	a.logs.Attach(a.session, a.reconciler)

	handlers.NewService(handlers.Dependencies{
		Reconciler: a.reconciler,
		Session:    a.session,
		Favourites: a.store,
		Logger:     a.logger,
		BufferSize: config.GetServerConfig().BufferSize,
	}).Register(a.dispatcher)

	if opts.seed {
		if err := a.seed(ctx); err != nil {
			a.logger.Warn("Failed to seed markers", "error", err)
		}
	}
	return a, nil
}

// setupLogging mirrors records to a per-session file, and to OTel and
// Graylog when configured.
func (a *app) setupLogging() error {
	a.logs = logging.NewSlogManager()

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}
	path := logging.LogFilePath(logsDir, appName, a.start)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	a.logFile = f
	a.zlog = zerolog.New(f).With().Timestamp().Str("app", appName).Logger()

	a.otel, err = intOtel.New(context.Background(), config.GetOTelConfig(), f, Version,
		slog.New(slog.NewTextHandler(f, nil)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize OTel provider: %v\n", err)
	}
	var otelLogProvider *sdklog.LoggerProvider
	if a.otel != nil {
		otelLogProvider = a.otel.LoggerProvider()
	}

	if config.GetBool("graylog.enabled") {
		if err := a.logs.EnableGraylog(config.GetString("graylog.address")); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to enable Graylog: %v\n", err)
		}
	}
	a.logs.Setup(f, config.GetString("logLevel"), otelLogProvider)
	a.logger = a.logs.Logger()
	a.logger.Info("Logging to file", "path", path)
	return nil
}

// connectSinks returns observers for the enabled InfluxDB and Kafka sinks.
// A sink that cannot start is logged and skipped.
func (a *app) connectSinks(ctx context.Context) []reconciler.Option {
	var opts []reconciler.Option

	if influxCfg := config.GetInfluxConfig(); influxCfg.Enabled {
		backup := filepath.Join(config.GetString("logsDir"),
			fmt.Sprintf("%s_usage_%s.lp.gz", appName, a.start.Format("20060102_150405")))
		m := influx.NewManager(a.zlog, influxCfg, backup)
		if err := m.Connect(ctx); err != nil {
			a.logger.Error("Failed to connect to InfluxDB", "error", err)
		} else {
			a.influx = m
			opts = append(opts, reconciler.WithObserver(m))
		}
	}

	if kafkaCfg := config.GetKafkaConfig(); kafkaCfg.Enabled {
		a.kafka = events.NewPublisher(kafkaCfg, a.logger)
		opts = append(opts, reconciler.WithObserver(a.kafka))
		a.logger.Info("Publishing favourite events", "topic", kafkaCfg.Topic, "brokers", kafkaCfg.Brokers)
	}

	return opts
}

func (a *app) seed(ctx context.Context) error {
	seeds, err := config.GetSeedMarkers()
	if err != nil {
		return err
	}
	markers := make([]core.Marker, 0, len(seeds))
	for _, s := range seeds {
		markers = append(markers, core.Marker{
			ID:          core.MarkerID(s.ID),
			Name:        s.Name,
			Position:    core.LatLng{Lat: s.Lat, Lng: s.Lng},
			Description: reconciler.NoDescription,
			Address:     reconciler.NoAddress,
			Hours:       reconciler.NoOpeningHours,
		})
	}
	_, err = a.reconciler.Seed(ctx, markers)
	return err
}

// Close releases every component in reverse order of construction.
func (a *app) Close() {
	if a.hub != nil {
		a.hub.Close()
	}
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.logger.Error("Error closing Kafka publisher", "error", err)
		}
	}
	if a.influx != nil {
		if err := a.influx.Close(); err != nil {
			a.logger.Error("Error closing InfluxDB manager", "error", err)
		}
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.Error("Error closing storage backend", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.logs != nil {
		_ = a.logs.Flush(ctx)
		_ = a.logs.Close()
	}
	if a.otel != nil {
		_ = a.otel.Shutdown(ctx)
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}
