package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileName is the file Load looks for in the config directory.
const ConfigFileName = "placefinder.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. PLACEFINDER_STORAGE_TYPE.
const EnvPrefix = "PLACEFINDER"

// MemoryConfig holds JSON-file favourites backend settings
type MemoryConfig struct {
	Path     string `json:"path" mapstructure:"path"`
	Compress bool   `json:"compress" mapstructure:"compress"`
}

// SQLiteConfig holds SQLite favourites backend settings
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// SQLConfig holds connection settings for the networked SQL backends
type SQLConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// StorageConfig selects and configures the favourites backend
type StorageConfig struct {
	Type     string       `json:"type" mapstructure:"type"`
	Memory   MemoryConfig `json:"memory" mapstructure:"memory"`
	SQLite   SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
	Postgres SQLConfig    `json:"postgres" mapstructure:"postgres"`
	MySQL    SQLConfig    `json:"mysql" mapstructure:"mysql"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// NominatimConfig holds Nominatim geocoder settings
type NominatimConfig struct {
	BaseURL        string  `json:"baseUrl" mapstructure:"baseUrl"`
	UserAgent      string  `json:"userAgent" mapstructure:"userAgent"`
	RequestsPerSec float64 `json:"requestsPerSec" mapstructure:"requestsPerSec"`
}

// MapboxConfig holds Mapbox geocoder settings
type MapboxConfig struct {
	Token string `json:"token" mapstructure:"token"`
}

// GoogleConfig holds Google Places settings
type GoogleConfig struct {
	APIKey   string `json:"apiKey" mapstructure:"apiKey"`
	Keyword  string `json:"keyword" mapstructure:"keyword"`
	Type     string `json:"type" mapstructure:"type"`
	MaxPages int    `json:"maxPages" mapstructure:"maxPages"`
}

// ElasticConfig holds Elasticsearch place-index settings
type ElasticConfig struct {
	URL   string `json:"url" mapstructure:"url"`
	Index string `json:"index" mapstructure:"index"`
	Size  int    `json:"size" mapstructure:"size"`
}

// StaticConfig holds settings for the file-backed place catalog
type StaticConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// ProviderConfig selects the geocoder and place-search implementations
type ProviderConfig struct {
	Geocoder     string          `json:"geocoder" mapstructure:"geocoder"`
	Places       string          `json:"places" mapstructure:"places"`
	Timeout      time.Duration   `json:"timeout" mapstructure:"timeout"`
	GeocodeCache time.Duration   `json:"geocodeCache" mapstructure:"geocodeCache"`
	Nominatim    NominatimConfig `json:"nominatim" mapstructure:"nominatim"`
	Mapbox       MapboxConfig    `json:"mapbox" mapstructure:"mapbox"`
	Google       GoogleConfig    `json:"google" mapstructure:"google"`
	Elastic      ElasticConfig   `json:"elastic" mapstructure:"elastic"`
	Static       StaticConfig    `json:"static" mapstructure:"static"`
}

// AuthConfig holds identity provider settings
type AuthConfig struct {
	SigningKey string `json:"signingKey" mapstructure:"signingKey"`
	Issuer     string `json:"issuer" mapstructure:"issuer"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string        `json:"addr" mapstructure:"addr"`
	ReadTimeout     time.Duration `json:"readTimeout" mapstructure:"readTimeout"`
	WriteTimeout    time.Duration `json:"writeTimeout" mapstructure:"writeTimeout"`
	ShutdownTimeout time.Duration `json:"shutdownTimeout" mapstructure:"shutdownTimeout"`
	BufferSize      int           `json:"bufferSize" mapstructure:"bufferSize"`
}

// InfluxConfig holds InfluxDB usage-metrics settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// KafkaConfig holds favourite change-event publishing settings
type KafkaConfig struct {
	Enabled bool     `json:"enabled" mapstructure:"enabled"`
	Brokers []string `json:"brokers" mapstructure:"brokers"`
	Topic   string   `json:"topic" mapstructure:"topic"`
}

// SeedMarker is a marker shown before the first search.
type SeedMarker struct {
	ID   string  `json:"id" mapstructure:"id"`
	Name string  `json:"name" mapstructure:"name"`
	Lat  float64 `json:"lat" mapstructure:"lat"`
	Lng  float64 `json:"lng" mapstructure:"lng"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(ConfigFileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// LoadDefaults applies defaults without reading a file. Used when the
// config directory has no placefinder.cfg.json.
func LoadDefaults() {
	setDefaults()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("search.radius", 5000.0)
	viper.SetDefault("seed", []map[string]any{
		{"id": "1", "name": "Church A", "lat": 51.9194, "lng": 19.1451},
		{"id": "2", "name": "Church B", "lat": 50.0614, "lng": 19.9372},
	})

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.path", "./data/favourites.json")
	viper.SetDefault("storage.memory.compress", false)
	viper.SetDefault("storage.sqlite.path", "./data/favourites.db")
	viper.SetDefault("storage.sqlite.dumpPath", "")
	viper.SetDefault("storage.sqlite.dumpInterval", "0s")
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.username", "postgres")
	viper.SetDefault("storage.postgres.password", "postgres")
	viper.SetDefault("storage.postgres.database", "placefinder")
	viper.SetDefault("storage.mysql.host", "localhost")
	viper.SetDefault("storage.mysql.port", "3306")
	viper.SetDefault("storage.mysql.username", "root")
	viper.SetDefault("storage.mysql.password", "")
	viper.SetDefault("storage.mysql.database", "placefinder")

	viper.SetDefault("provider.geocoder", "nominatim")
	viper.SetDefault("provider.places", "static")
	viper.SetDefault("provider.timeout", "10s")
	viper.SetDefault("provider.geocodeCache", "24h")
	viper.SetDefault("provider.nominatim.baseUrl", "https://nominatim.openstreetmap.org")
	viper.SetDefault("provider.nominatim.userAgent", "placefinder/1.0")
	viper.SetDefault("provider.nominatim.requestsPerSec", 1.0)
	viper.SetDefault("provider.mapbox.token", "")
	viper.SetDefault("provider.google.apiKey", "")
	viper.SetDefault("provider.google.keyword", "")
	viper.SetDefault("provider.google.type", "church")
	viper.SetDefault("provider.google.maxPages", 3)
	viper.SetDefault("provider.elastic.url", "http://localhost:9200")
	viper.SetDefault("provider.elastic.index", "places")
	viper.SetDefault("provider.elastic.size", 100)
	viper.SetDefault("provider.static.path", "")

	viper.SetDefault("auth.signingKey", "")
	viper.SetDefault("auth.issuer", "")

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.readTimeout", "15s")
	viper.SetDefault("server.writeTimeout", "30s")
	viper.SetDefault("server.shutdownTimeout", "10s")
	viper.SetDefault("server.bufferSize", 64)

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "placefinder")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", false)

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "placefinder")
	viper.SetDefault("influx.bucket", "placefinder_usage")

	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topic", "placefinder.favourites")
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetFloat returns a float config value.
func GetFloat(key string) float64 {
	return viper.GetFloat64(key)
}

// GetStorageConfig returns the favourites storage configuration.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			Path:     viper.GetString("storage.memory.path"),
			Compress: viper.GetBool("storage.memory.compress"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		Postgres: sqlConfig("storage.postgres"),
		MySQL:    sqlConfig("storage.mysql"),
	}
}

func sqlConfig(prefix string) SQLConfig {
	return SQLConfig{
		Host:     viper.GetString(prefix + ".host"),
		Port:     viper.GetString(prefix + ".port"),
		Username: viper.GetString(prefix + ".username"),
		Password: viper.GetString(prefix + ".password"),
		Database: viper.GetString(prefix + ".database"),
	}
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetProviderConfig returns the geocoder and place-search configuration.
func GetProviderConfig() ProviderConfig {
	return ProviderConfig{
		Geocoder:     viper.GetString("provider.geocoder"),
		Places:       viper.GetString("provider.places"),
		Timeout:      viper.GetDuration("provider.timeout"),
		GeocodeCache: viper.GetDuration("provider.geocodeCache"),
		Nominatim: NominatimConfig{
			BaseURL:        viper.GetString("provider.nominatim.baseUrl"),
			UserAgent:      viper.GetString("provider.nominatim.userAgent"),
			RequestsPerSec: viper.GetFloat64("provider.nominatim.requestsPerSec"),
		},
		Mapbox: MapboxConfig{
			Token: viper.GetString("provider.mapbox.token"),
		},
		Google: GoogleConfig{
			APIKey:   viper.GetString("provider.google.apiKey"),
			Keyword:  viper.GetString("provider.google.keyword"),
			Type:     viper.GetString("provider.google.type"),
			MaxPages: viper.GetInt("provider.google.maxPages"),
		},
		Elastic: ElasticConfig{
			URL:   viper.GetString("provider.elastic.url"),
			Index: viper.GetString("provider.elastic.index"),
			Size:  viper.GetInt("provider.elastic.size"),
		},
		Static: StaticConfig{
			Path: viper.GetString("provider.static.path"),
		},
	}
}

// GetAuthConfig returns the identity provider configuration.
func GetAuthConfig() AuthConfig {
	return AuthConfig{
		SigningKey: viper.GetString("auth.signingKey"),
		Issuer:     viper.GetString("auth.issuer"),
	}
}

// GetServerConfig returns the HTTP server configuration.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            viper.GetString("server.addr"),
		ReadTimeout:     viper.GetDuration("server.readTimeout"),
		WriteTimeout:    viper.GetDuration("server.writeTimeout"),
		ShutdownTimeout: viper.GetDuration("server.shutdownTimeout"),
		BufferSize:      viper.GetInt("server.bufferSize"),
	}
}

// GetInfluxConfig returns the InfluxDB configuration.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetKafkaConfig returns the Kafka event publishing configuration.
func GetKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Enabled: viper.GetBool("kafka.enabled"),
		Brokers: viper.GetStringSlice("kafka.brokers"),
		Topic:   viper.GetString("kafka.topic"),
	}
}

// GetSeedMarkers returns the markers shown before the first search.
func GetSeedMarkers() ([]SeedMarker, error) {
	var seeds []SeedMarker
	if err := viper.UnmarshalKey("seed", &seeds); err != nil {
		return nil, fmt.Errorf("error decoding seed markers: %w", err)
	}
	return seeds, nil
}
