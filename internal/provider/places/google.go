package places

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/OCAP2/placefinder/internal/config"
	"github.com/OCAP2/placefinder/pkg/core"
)

const defaultGoogleURL = "https://maps.googleapis.com/maps/api/place/nearbysearch/json"

// Google implements Searcher with the Places Nearby Search API. Result
// pages are fetched only as the sequence is consumed.
type Google struct {
	cfg        config.GoogleConfig
	baseURL    string
	httpClient *http.Client
	// A next_page_token becomes valid a short time after it is issued.
	pageDelay time.Duration
	logger    *slog.Logger
}

// NewGoogle creates a Nearby Search client.
func NewGoogle(cfg config.GoogleConfig, timeout time.Duration, logger *slog.Logger) *Google {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 3
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Google{
		cfg:        cfg,
		baseURL:    defaultGoogleURL,
		httpClient: &http.Client{Timeout: timeout},
		pageDelay:  2 * time.Second,
		logger:     logger,
	}
}

// SearchNearby yields places around center, following next_page_token up
// to the configured page limit.
func (g *Google) SearchNearby(ctx context.Context, center core.LatLng, radius float64) iter.Seq2[core.PlaceRecord, error] {
	return func(yield func(core.PlaceRecord, error) bool) {
		token := ""
		for page := 0; page < g.cfg.MaxPages; page++ {
			if token != "" {
				select {
				case <-ctx.Done():
					yield(core.PlaceRecord{}, fmt.Errorf("%w: %w", core.ErrProvider, ctx.Err()))
					return
				case <-time.After(g.pageDelay):
				}
			}

			resp, err := g.fetch(ctx, center, radius, token)
			if err != nil {
				yield(core.PlaceRecord{}, err)
				return
			}
			for _, r := range resp.Results {
				if !yield(r.record(), nil) {
					return
				}
			}

			g.logger.Debug("Nearby search page", "page", page, "results", len(resp.Results))
			if resp.NextPageToken == "" {
				return
			}
			token = resp.NextPageToken
		}
	}
}

func (g *Google) fetch(ctx context.Context, center core.LatLng, radius float64, token string) (nearbyResponse, error) {
	params := url.Values{"key": {g.cfg.APIKey}}
	if token != "" {
		params.Set("pagetoken", token)
	} else {
		params.Set("location", strconv.FormatFloat(center.Lat, 'f', -1, 64)+","+strconv.FormatFloat(center.Lng, 'f', -1, 64))
		params.Set("radius", strconv.FormatFloat(radius, 'f', -1, 64))
		if g.cfg.Type != "" {
			params.Set("type", g.cfg.Type)
		}
		if g.cfg.Keyword != "" {
			params.Set("keyword", g.cfg.Keyword)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nearbyResponse{}, fmt.Errorf("%w: create request: %w", core.ErrProvider, err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nearbyResponse{}, fmt.Errorf("%w: nearby search request: %w", core.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nearbyResponse{}, fmt.Errorf("%w: places API error: status %d: %s", core.ErrProvider, resp.StatusCode, body)
	}

	var out nearbyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nearbyResponse{}, fmt.Errorf("%w: decode response: %w", core.ErrProvider, err)
	}

	switch out.Status {
	case "OK", "ZERO_RESULTS":
		return out, nil
	default:
		return nearbyResponse{}, fmt.Errorf("%w: places API status %s: %s", core.ErrProvider, out.Status, out.ErrorMessage)
	}
}

// Places API response types.

type nearbyResponse struct {
	Results       []nearbyResult `json:"results"`
	NextPageToken string         `json:"next_page_token"`
	Status        string         `json:"status"`
	ErrorMessage  string         `json:"error_message"`
}

type nearbyResult struct {
	PlaceID  string `json:"place_id"`
	Name     string `json:"name"`
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	Types        []string `json:"types"`
	Vicinity     string   `json:"vicinity"`
	OpeningHours *struct {
		WeekdayText []string `json:"weekday_text"`
	} `json:"opening_hours"`
}

func (r nearbyResult) record() core.PlaceRecord {
	rec := core.PlaceRecord{
		ID:       r.PlaceID,
		Name:     r.Name,
		Position: core.LatLng{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
		Types:    r.Types,
		Vicinity: r.Vicinity,
	}
	if r.OpeningHours != nil {
		rec.OpeningHoursText = r.OpeningHours.WeekdayText
	}
	return rec
}
