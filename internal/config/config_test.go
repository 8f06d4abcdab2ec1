package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"search": { "radius": 1500 },
		"storage": { "type": "sqlite", "sqlite": { "path": "/tmp/fav.db" } }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, 1500.0, GetFloat("search.radius"))
	assert.Equal(t, "sqlite", GetString("storage.type"))
	assert.Equal(t, "/tmp/fav.db", GetStorageConfig().SQLite.Path)
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./logs", viper.GetString("logsDir"))
	assert.Equal(t, 5000.0, viper.GetFloat64("search.radius"))
	assert.Equal(t, "memory", viper.GetString("storage.type"))
	assert.Equal(t, "./data/favourites.json", viper.GetString("storage.memory.path"))
	assert.Equal(t, "nominatim", viper.GetString("provider.geocoder"))
	assert.Equal(t, "static", viper.GetString("provider.places"))
	assert.Equal(t, ":8080", viper.GetString("server.addr"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, false, viper.GetBool("kafka.enabled"))
	assert.Equal(t, false, viper.GetBool("otel.enabled"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("PLACEFINDER_STORAGE_TYPE", "postgres")

	dir := writeConfig(t, `{}`)
	require.NoError(t, Load(dir))

	assert.Equal(t, "postgres", GetStorageConfig().Type)
}

func TestGetStorageConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"storage": {
			"type": "memory",
			"memory": { "path": "/data/fav.json.gz", "compress": true },
			"sqlite": { "dumpPath": "/data/dump.db", "dumpInterval": "30s" },
			"postgres": { "host": "db", "database": "places" }
		}
	}`)
	require.NoError(t, Load(dir))

	cfg := GetStorageConfig()
	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, "/data/fav.json.gz", cfg.Memory.Path)
	assert.True(t, cfg.Memory.Compress)
	assert.Equal(t, "/data/dump.db", cfg.SQLite.DumpPath)
	assert.Equal(t, 30*time.Second, cfg.SQLite.DumpInterval)
	assert.Equal(t, "db", cfg.Postgres.Host)
	assert.Equal(t, "5432", cfg.Postgres.Port)
	assert.Equal(t, "places", cfg.Postgres.Database)
	assert.Equal(t, "3306", cfg.MySQL.Port)
}

func TestGetOTelConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"otel": {
			"enabled": true,
			"serviceName": "pf-test",
			"batchTimeout": "2s",
			"endpoint": "localhost:4318",
			"insecure": true
		}
	}`)
	require.NoError(t, Load(dir))

	cfg := GetOTelConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "pf-test", cfg.ServiceName)
	assert.Equal(t, 2*time.Second, cfg.BatchTimeout)
	assert.Equal(t, "localhost:4318", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
}

func TestGetProviderConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetProviderConfig()
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.GeocodeCache)
	assert.Equal(t, "https://nominatim.openstreetmap.org", cfg.Nominatim.BaseURL)
	assert.Equal(t, 1.0, cfg.Nominatim.RequestsPerSec)
	assert.Equal(t, 3, cfg.Google.MaxPages)
	assert.Equal(t, "places", cfg.Elastic.Index)
}

func TestGetKafkaConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{
		"kafka": { "enabled": true, "brokers": ["k1:9092", "k2:9092"], "topic": "fav" }
	}`)))

	cfg := GetKafkaConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers)
	assert.Equal(t, "fav", cfg.Topic)
}

func TestGetSeedMarkers_Default(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	seeds, err := GetSeedMarkers()
	require.NoError(t, err)
	require.Len(t, seeds, 2)
	assert.Equal(t, "Church A", seeds[0].Name)
	assert.Equal(t, 51.9194, seeds[0].Lat)
	assert.Equal(t, 19.9372, seeds[1].Lng)
}

func TestGetSeedMarkers_FromFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{
		"seed": [ { "id": "x", "name": "Chapel", "lat": 1.5, "lng": 2.5 } ]
	}`)))

	seeds, err := GetSeedMarkers()
	require.NoError(t, err)
	require.Len(t, seeds, 1)
	assert.Equal(t, SeedMarker{ID: "x", Name: "Chapel", Lat: 1.5, Lng: 2.5}, seeds[0])
}

func TestLoadDefaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	LoadDefaults()

	assert.Equal(t, "memory", GetStorageConfig().Type)
	assert.Equal(t, ":8080", GetServerConfig().Addr)
	assert.Equal(t, 64, GetServerConfig().BufferSize)
}
