package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/OCAP2/placefinder/internal/dispatcher"
	"github.com/OCAP2/placefinder/internal/favourites"
	"github.com/OCAP2/placefinder/internal/geo"
	"github.com/OCAP2/placefinder/internal/reconciler"
	"github.com/OCAP2/placefinder/internal/session"
	"github.com/OCAP2/placefinder/pkg/core"
	"github.com/OCAP2/placefinder/pkg/streaming"
)

// Commands routed through the dispatcher.
const (
	CmdMarkers        = ":MARKERS:"
	CmdSnapshot       = ":MARKERS:SNAPSHOT:"
	CmdSearchState    = ":SEARCH:STATE:"
	CmdSetCenter      = ":SEARCH:CENTER:"
	CmdRunSearch      = ":SEARCH:RUN:"
	CmdQueueSearch    = ":SEARCH:QUEUE:"
	CmdGeocode        = ":GEOCODE:"
	CmdClear          = ":CLEAR:"
	CmdToggle         = ":FAVOURITE:TOGGLE:"
	CmdFavourites     = ":FAVOURITES:"
	CmdFavouritesView = ":FAVOURITES:VIEW:"
	CmdRefresh        = ":REFRESH:"
	CmdSession        = ":SESSION:"
	CmdSignIn         = ":SESSION:SIGNIN:"
	CmdSignOut        = ":SESSION:SIGNOUT:"
)

// ErrBadRequest marks a command whose payload could not be used.
var ErrBadRequest = errors.New("bad request")

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Reconciler *reconciler.Reconciler
	Session    *session.Context
	Favourites *favourites.Store
	Logger     *slog.Logger
	BufferSize int
}

// Service turns dispatcher events into reconciler and session calls
type Service struct {
	deps Dependencies
}

// SignInResult is returned by a successful sign-in.
type SignInResult struct {
	Identity core.Identity `json:"identity"`
	Markers  []core.Marker `json:"markers"`
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.BufferSize <= 0 {
		deps.BufferSize = 64
	}
	return &Service{deps: deps}
}

// Register adds every command handler to d.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	d.Register(CmdMarkers, s.liveMarkers)
	d.Register(CmdSnapshot, s.snapshot)
	d.Register(CmdSearchState, s.searchState)
	d.Register(CmdSession, s.current)
	d.Register(CmdFavourites, s.favourites)

	d.Register(CmdSetCenter, s.setCenter, dispatcher.Logged())
	d.Register(CmdRunSearch, s.runSearch, dispatcher.Logged())
	d.Register(CmdQueueSearch, s.runSearch, dispatcher.Buffered(s.deps.BufferSize), dispatcher.Logged())
	d.Register(CmdGeocode, s.geocode, dispatcher.Logged())
	d.Register(CmdClear, s.clear, dispatcher.Logged())
	d.Register(CmdToggle, s.toggle, dispatcher.Logged())
	d.Register(CmdFavouritesView, s.favouritesView, dispatcher.Logged())
	d.Register(CmdRefresh, s.refresh, dispatcher.Logged())
	d.Register(CmdSignIn, s.signIn, dispatcher.Logged())
	d.Register(CmdSignOut, s.signOut, dispatcher.Logged())
}

func (s *Service) liveMarkers(dispatcher.Event) (any, error) {
	return s.deps.Reconciler.LiveMarkers(), nil
}

func (s *Service) snapshot(dispatcher.Event) (any, error) {
	return s.deps.Reconciler.Snapshot(), nil
}

func (s *Service) searchState(dispatcher.Event) (any, error) {
	return s.deps.Reconciler.SearchState(), nil
}

func (s *Service) current(dispatcher.Event) (any, error) {
	return s.deps.Session.Current(), nil
}

func (s *Service) favourites(e dispatcher.Event) (any, error) {
	return s.deps.Favourites.Get(e.Context(), s.deps.Session.Current())
}

func (s *Service) setCenter(e dispatcher.Event) (any, error) {
	var p streaming.CenterPayload
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	center := core.LatLng{Lat: p.Lat, Lng: p.Lng}
	if err := geo.Validate(center); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	s.deps.Reconciler.SetSearchCenter(center)
	return s.deps.Reconciler.SearchState(), nil
}

func (s *Service) runSearch(e dispatcher.Event) (any, error) {
	return s.deps.Reconciler.RunPendingSearch(e.Context())
}

func (s *Service) geocode(e dispatcher.Event) (any, error) {
	var p streaming.GeocodePayload
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty location", ErrBadRequest)
	}
	return s.deps.Reconciler.GeocodeAndAppend(e.Context(), text)
}

func (s *Service) clear(dispatcher.Event) (any, error) {
	s.deps.Reconciler.Clear()
	return s.deps.Reconciler.LiveMarkers(), nil
}

func (s *Service) toggle(e dispatcher.Event) (any, error) {
	var p streaming.TogglePayload
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	res, err := s.deps.Reconciler.ToggleFavourite(e.Context(), p.ID, s.deps.Session.Current())
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info(res.Message)
	return res, nil
}

func (s *Service) favouritesView(e dispatcher.Event) (any, error) {
	return s.deps.Reconciler.LoadFavouritesView(e.Context(), s.deps.Session.Current())
}

func (s *Service) refresh(e dispatcher.Event) (any, error) {
	return s.deps.Reconciler.Refresh(e.Context())
}

func (s *Service) signIn(e dispatcher.Event) (any, error) {
	var p streaming.SignInPayload
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	id, markers, err := s.deps.Session.SignInWithCredential(e.Context(), p.Credential)
	if err != nil {
		return nil, err
	}
	return SignInResult{Identity: id, Markers: markers}, nil
}

func (s *Service) signOut(dispatcher.Event) (any, error) {
	s.deps.Session.SignOut()
	return nil, nil
}

func decode(e dispatcher.Event, v any) error {
	if err := e.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}
