// pkg/core/errors.go
package core

import "errors"

var (
	// ErrGeocodeNotFound is returned when a geocoder has no result for the query.
	ErrGeocodeNotFound = errors.New("geocode: location not found")
	// ErrProvider wraps transport or upstream failures of external providers.
	ErrProvider = errors.New("provider error")
	// ErrNotAuthenticated is returned for favourites operations without an identity.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrAuthFailed is returned when the identity provider rejects a credential.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrMarkerNotFound is returned when a marker id is not in the live collection.
	ErrMarkerNotFound = errors.New("marker not found")
	// ErrSuperseded is returned when an in-flight result was discarded because
	// the search context changed while it was running.
	ErrSuperseded = errors.New("result superseded")
)
