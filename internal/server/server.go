package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/OCAP2/placefinder/internal/config"
	"github.com/OCAP2/placefinder/internal/dispatcher"
	"github.com/OCAP2/placefinder/internal/geo"
	"github.com/OCAP2/placefinder/internal/handlers"
	"github.com/OCAP2/placefinder/pkg/core"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 1 << 20

// Server exposes the marker commands as a JSON API, plus health, metrics and
// the WebSocket push channel.
type Server struct {
	httpServer *http.Server
	dispatcher *dispatcher.Dispatcher
	hub        *Hub
	logger     *slog.Logger
}

// NewServer creates an HTTP server routing every API call through d.
func NewServer(cfg config.ServerConfig, d *dispatcher.Dispatcher, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      mux,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
		dispatcher: d,
		hub:        hub,
		logger:     logger,
	}

	mux.HandleFunc("GET /markers", s.command(handlers.CmdMarkers, false))
	mux.HandleFunc("GET /search", s.command(handlers.CmdSearchState, false))
	mux.HandleFunc("POST /search/center", s.command(handlers.CmdSetCenter, true))
	mux.HandleFunc("POST /search/run", s.command(handlers.CmdRunSearch, false))
	mux.HandleFunc("POST /search/queue", s.queueSearch)
	mux.HandleFunc("POST /geocode", s.command(handlers.CmdGeocode, true))
	mux.HandleFunc("POST /clear", s.command(handlers.CmdClear, false))
	mux.HandleFunc("POST /refresh", s.command(handlers.CmdRefresh, false))
	mux.HandleFunc("POST /markers/{id}/favourite", s.toggleFavourite)
	mux.HandleFunc("GET /favourites", s.command(handlers.CmdFavourites, false))
	mux.HandleFunc("GET /favourites.geojson", s.favouritesGeoJSON)
	mux.HandleFunc("POST /favourites/view", s.command(handlers.CmdFavouritesView, false))
	mux.HandleFunc("GET /session", s.command(handlers.CmdSession, false))
	mux.HandleFunc("POST /session", s.command(handlers.CmdSignIn, true))
	mux.HandleFunc("DELETE /session", s.command(handlers.CmdSignOut, false))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	if hub != nil {
		mux.Handle("GET /ws", hub)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown disconnects WebSocket clients and drains connections within the
// given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) command(cmd string, withBody bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload json.RawMessage
		if withBody {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			if err != nil {
				writeError(w, fmt.Errorf("%w: %w", handlers.ErrBadRequest, err))
				return
			}
			payload = body
		}
		s.dispatch(r.Context(), w, cmd, payload)
	}
}

// queueSearch runs the pending search in the background, detached from the
// request lifetime.
func (s *Server) queueSearch(w http.ResponseWriter, r *http.Request) {
	s.dispatch(context.WithoutCancel(r.Context()), w, handlers.CmdQueueSearch, nil)
}

func (s *Server) toggleFavourite(w http.ResponseWriter, r *http.Request) {
	payload, err := json.Marshal(map[string]string{"id": r.PathValue("id")})
	if err != nil {
		writeError(w, err)
		return
	}
	s.dispatch(r.Context(), w, handlers.CmdToggle, payload)
}

func (s *Server) favouritesGeoJSON(w http.ResponseWriter, r *http.Request) {
	res, err := s.dispatcher.Dispatch(dispatcher.Event{
		Ctx:       r.Context(),
		Command:   handlers.CmdFavourites,
		Timestamp: time.Now(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	entries, _ := res.([]core.FavouriteEntry)
	markers := make([]core.Marker, len(entries))
	for i, e := range entries {
		markers[i] = e.Marker
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(geo.FeatureCollection(markers)) //nolint:errcheck // client went away
}

func (s *Server) dispatch(ctx context.Context, w http.ResponseWriter, cmd string, payload json.RawMessage) {
	res, err := s.dispatcher.Dispatch(dispatcher.Event{
		Ctx:       ctx,
		Command:   cmd,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		if statusFor(err) >= http.StatusInternalServerError {
			s.logger.Error("command failed", "command", cmd, "error", err)
		}
		writeError(w, err)
		return
	}
	switch res {
	case nil:
		w.WriteHeader(http.StatusNoContent)
	case dispatcher.Queued:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": dispatcher.Queued})
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// statusFor maps a command error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrMarkerNotFound), errors.Is(err, core.ErrGeocodeNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrNotAuthenticated), errors.Is(err, core.ErrAuthFailed):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, handlers.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrProvider):
		return http.StatusBadGateway
	case errors.Is(err, dispatcher.ErrQueueFull), errors.Is(err, dispatcher.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}
