package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/OCAP2/placefinder/internal/config"
	"github.com/OCAP2/placefinder/internal/reconciler"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
)

// Manager writes reconciler usage points to InfluxDB. When the server is
// unreachable points go to a gzipped line-protocol backup file instead.
type Manager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Config       config.InfluxConfig
	Logger       zerolog.Logger
	BackupPath   string

	mu         sync.Mutex
	backupFile io.Closer
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, cfg config.InfluxConfig, backupPath string) *Manager {
	return &Manager{
		IsValid:    false,
		Config:     cfg,
		Logger:     log,
		BackupPath: backupPath,
	}
}

// Connect establishes a connection to InfluxDB.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.Config.Enabled {
		return errors.New("influx.enabled is false")
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf("%s://%s:%s", m.Config.Protocol, m.Config.Host, m.Config.Port),
		m.Config.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := m.Client.Ping(ctx)

	if err != nil || !running {
		m.IsValid = false
		if m.BackupWriter == nil {
			m.Logger.Info().Str("backupPath", m.BackupPath).
				Msg("Failed to initialize InfluxDB client, writing to backup file")

			file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("error creating backup file: %v", err)
			}
			m.backupFile = file
			m.BackupWriter = gzip.NewWriter(file)
		}
		m.Logger.Warn().Msg("InfluxDB client failed to initialize, using backup writer")
		return nil
	}

	m.IsValid = true
	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}
	m.createWriter()
	m.Logger.Info().Str("bucket", m.Config.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgName := m.Config.Org

	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		influxOrg, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	// ensure bucket exists with 90 day retention
	if _, err = m.Client.BucketsAPI().FindBucketByName(ctx, m.Config.Bucket); err != nil {
		m.Logger.Info().Str("bucket", m.Config.Bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, m.Config.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 60 * 60 * 24 * 90, // 90 days
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", m.Config.Bucket).Msg("Error creating bucket")
			return err
		}
	}

	return nil
}

func (m *Manager) createWriter() {
	m.Writer = m.Client.WriteAPI(m.Config.Org, m.Config.Bucket)

	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.Config.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(m.Writer.Errors())

	m.Logger.Debug().Msg("InfluxDB writer initialized")
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.IsValid {
		m.Writer.WritePoint(point)
		return nil
	}

	if m.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}

	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Duration(1*time.Nanosecond))
	if _, err := m.BackupWriter.Write([]byte(lineProtocol)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %s", err)
	}
	return nil
}

// Observe turns reconciler events into usage points.
func (m *Manager) Observe(_ context.Context, e reconciler.Event) {
	point := PointFor(e, time.Now())
	if point == nil {
		return
	}
	if err := m.WritePoint(point); err != nil {
		m.Logger.Error().Err(err).Str("event", e.EventName()).Msg("Error writing usage point")
	}
}

// Close flushes pending writes and releases the client and backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Writer != nil {
		m.Writer.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}
	var err error
	if m.BackupWriter != nil {
		err = m.BackupWriter.Close()
		m.BackupWriter = nil
	}
	if m.backupFile != nil {
		if cerr := m.backupFile.Close(); err == nil {
			err = cerr
		}
		m.backupFile = nil
	}
	return err
}

// PointFor maps a reconciler event to a point, or nil for events that are
// not tracked.
func PointFor(e reconciler.Event, ts time.Time) *influxdb2_write.Point {
	switch ev := e.(type) {
	case reconciler.SearchCompleted:
		return influxdb2.NewPoint("search",
			map[string]string{"outcome": "success"},
			map[string]interface{}{
				"results":     ev.Results,
				"dropped":     ev.Dropped,
				"duration_ms": ev.Duration.Milliseconds(),
				"lat":         ev.Center.Lat,
				"lng":         ev.Center.Lng,
				"radius":      ev.Radius,
			}, ts)
	case reconciler.SearchFailed:
		return influxdb2.NewPoint("search",
			map[string]string{"outcome": "error"},
			map[string]interface{}{
				"duration_ms": ev.Duration.Milliseconds(),
				"error":       ev.Err.Error(),
			}, ts)
	case reconciler.SearchDiscarded:
		return influxdb2.NewPoint("search",
			map[string]string{"outcome": "superseded", "operation": ev.Operation},
			map[string]interface{}{"count": 1}, ts)
	case reconciler.MarkerAppended:
		return influxdb2.NewPoint("geocode",
			map[string]string{},
			map[string]interface{}{
				"lat": ev.Marker.Position.Lat,
				"lng": ev.Marker.Position.Lng,
			}, ts)
	case reconciler.FavouriteToggled:
		act := "removed"
		if ev.Added {
			act = "added"
		}
		return influxdb2.NewPoint("favourite",
			map[string]string{"action": act},
			map[string]interface{}{"affected": ev.Affected}, ts)
	default:
		return nil
	}
}
