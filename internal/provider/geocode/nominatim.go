package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/OCAP2/placefinder/internal/config"
	"github.com/OCAP2/placefinder/pkg/core"
	"golang.org/x/time/rate"
)

const (
	defaultNominatimURL = "https://nominatim.openstreetmap.org"
	defaultUserAgent    = "placefinder/1.0"
)

// Nominatim implements Geocoder against an OpenStreetMap Nominatim server.
// Requests are rate limited; the public server allows one per second.
type Nominatim struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewNominatim creates a Nominatim client.
func NewNominatim(cfg config.NominatimConfig, timeout time.Duration, logger *slog.Logger) *Nominatim {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultNominatimURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Nominatim{
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
		logger:     logger,
	}
}

// Geocode returns the best match for text.
func (n *Nominatim) Geocode(ctx context.Context, text string) (core.LatLng, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return core.LatLng{}, fmt.Errorf("%w: rate limit: %w", core.ErrProvider, err)
	}

	params := url.Values{
		"q":      {text},
		"format": {"json"},
		"limit":  {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return core.LatLng{}, fmt.Errorf("%w: create request: %w", core.ErrProvider, err)
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return core.LatLng{}, fmt.Errorf("%w: nominatim request: %w", core.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return core.LatLng{}, fmt.Errorf("%w: nominatim status %d: %s", core.ErrProvider, resp.StatusCode, body)
	}

	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return core.LatLng{}, fmt.Errorf("%w: decode response: %w", core.ErrProvider, err)
	}
	if len(results) == 0 {
		return core.LatLng{}, fmt.Errorf("%w: %q", core.ErrGeocodeNotFound, text)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return core.LatLng{}, fmt.Errorf("%w: bad latitude %q", core.ErrProvider, results[0].Lat)
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return core.LatLng{}, fmt.Errorf("%w: bad longitude %q", core.ErrProvider, results[0].Lon)
	}

	n.logger.Debug("Geocoded", "provider", "nominatim", "query", text, "lat", lat, "lng", lng)
	return core.LatLng{Lat: lat, Lng: lng}, nil
}
