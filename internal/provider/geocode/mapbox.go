package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/OCAP2/placefinder/pkg/core"
)

// Mapbox implements Geocoder using the Mapbox Geocoding API.
type Mapbox struct {
	token      string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewMapbox creates a Mapbox geocoding client.
func NewMapbox(token string, timeout time.Duration, logger *slog.Logger) *Mapbox {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapbox{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://api.mapbox.com/geocoding/v5/mapbox.places",
		logger:  logger,
	}
}

// Geocode forward-geocodes text to the most relevant feature.
func (c *Mapbox) Geocode(ctx context.Context, text string) (core.LatLng, error) {
	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(text))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+params.Encode(), nil)
	if err != nil {
		return core.LatLng{}, fmt.Errorf("%w: create request: %w", core.ErrProvider, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.LatLng{}, fmt.Errorf("%w: mapbox request: %w", core.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return core.LatLng{}, fmt.Errorf("%w: mapbox API error: status %d: %s", core.ErrProvider, resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return core.LatLng{}, fmt.Errorf("%w: decode response: %w", core.ErrProvider, err)
	}

	if len(mapboxResp.Features) == 0 || len(mapboxResp.Features[0].Center) != 2 {
		return core.LatLng{}, fmt.Errorf("%w: %q", core.ErrGeocodeNotFound, text)
	}

	f := mapboxResp.Features[0]
	c.logger.Debug("Geocoded", "provider", "mapbox", "query", text, "place", f.PlaceName, "relevance", f.Relevance)
	// Mapbox uses lon,lat order.
	return core.LatLng{Lat: f.Center[1], Lng: f.Center[0]}, nil
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	Relevance float64   `json:"relevance"`
}
