package streaming

import (
	"encoding/json"

	"github.com/OCAP2/placefinder/pkg/core"
)

// Message type constants for the WebSocket protocol.
const (
	// Server to client.
	TypeMarkers = "markers"
	TypeAck     = "ack"
	TypeError   = "error"

	// Client to server.
	TypeSetCenter       = "set_center"
	TypeRunSearch       = "run_search"
	TypeGeocode         = "geocode"
	TypeClear           = "clear"
	TypeToggleFavourite = "toggle_favourite"
	TypeFavouritesView  = "favourites_view"
	TypeRefresh         = "refresh"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// ErrorMessage reports a failed client command.
type ErrorMessage struct {
	Type  string `json:"type"` // always "error"
	For   string `json:"for"`
	Error string `json:"error"`
}

// MarkersPayload carries the live collection after a change.
type MarkersPayload struct {
	Version uint64        `json:"version"`
	Markers []core.Marker `json:"markers"`
}

// CenterPayload moves the search center.
type CenterPayload struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// GeocodePayload asks for a free-text location to be resolved and appended.
type GeocodePayload struct {
	Text string `json:"text"`
}

// TogglePayload names the marker whose favourite state flips.
type TogglePayload struct {
	ID core.MarkerID `json:"id"`
}

// SignInPayload carries an identity-provider credential.
type SignInPayload struct {
	Credential string `json:"credential"`
}

// Marshal builds a JSON-encoded Envelope from a message type and payload.
func Marshal(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
