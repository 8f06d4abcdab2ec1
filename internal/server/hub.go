package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/OCAP2/placefinder/internal/dispatcher"
	"github.com/OCAP2/placefinder/internal/handlers"
	"github.com/OCAP2/placefinder/internal/reconciler"
	"github.com/OCAP2/placefinder/pkg/streaming"
	ws "github.com/gorilla/websocket"
)

const (
	sendChSize = 256
	writeWait  = 10 * time.Second
)

// commands maps client message types to dispatcher commands.
var commands = map[string]string{
	streaming.TypeSetCenter:       handlers.CmdSetCenter,
	streaming.TypeRunSearch:       handlers.CmdRunSearch,
	streaming.TypeGeocode:         handlers.CmdGeocode,
	streaming.TypeClear:           handlers.CmdClear,
	streaming.TypeToggleFavourite: handlers.CmdToggle,
	streaming.TypeFavouritesView:  handlers.CmdFavouritesView,
	streaming.TypeRefresh:         handlers.CmdRefresh,
}

// Hub pushes the live collection to WebSocket clients after every change
// and accepts command envelopes from them.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	version  uint64
	closed   bool
	upgrader ws.Upgrader

	dispatcher *dispatcher.Dispatcher
	logger     *slog.Logger
}

// NewHub creates a hub that routes client commands through d.
func NewHub(d *dispatcher.Dispatcher, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*client]struct{}),
		dispatcher: d,
		logger:     logger,
	}
}

// Observe broadcasts collection changes. Each client only receives
// snapshots newer than the last one it was sent.
func (h *Hub) Observe(_ context.Context, e reconciler.Event) {
	ev, ok := e.(reconciler.CollectionChanged)
	if !ok {
		return
	}
	data, err := streaming.Marshal(streaming.TypeMarkers, streaming.MarkersPayload{
		Version: ev.Version,
		Markers: ev.Markers,
	})
	if err != nil {
		h.logger.Error("Failed to encode markers", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if ev.Version < h.version {
		return
	}
	h.version = ev.Version
	for c := range h.clients {
		if ev.Version <= c.version {
			continue
		}
		c.version = ev.Version
		c.send(data)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	c := newClient(conn, h.logger)

	// The snapshot is queued before the client joins the broadcast set, so
	// no newer broadcast can overtake it.
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = c.close()
		return
	}
	if err := h.sendSnapshot(r.Context(), c); err != nil {
		h.mu.Unlock()
		h.logger.Error("Failed to send markers to new client", "error", err)
		_ = c.close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	go c.writeLoop()
	h.logger.Debug("WebSocket client connected", "clients", n)

	h.readLoop(c)
}

// sendSnapshot queues the current collection for c and records its version.
// Callers hold h.mu.
func (h *Hub) sendSnapshot(ctx context.Context, c *client) error {
	res, err := h.dispatcher.Dispatch(dispatcher.Event{Ctx: ctx, Command: handlers.CmdSnapshot, Timestamp: time.Now()})
	if err != nil {
		return err
	}
	snap, ok := res.(reconciler.Snapshot)
	if !ok {
		return fmt.Errorf("unexpected snapshot result %T", res)
	}
	data, err := streaming.Marshal(streaming.TypeMarkers, streaming.MarkersPayload{Version: snap.Version, Markers: snap.Markers})
	if err != nil {
		return err
	}
	c.version = snap.Version
	c.send(data)
	return nil
}

// readLoop dispatches command envelopes and answers each with an ack or an
// error message.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				h.logger.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			h.reply(c, streaming.ErrorMessage{Type: streaming.TypeError, Error: "malformed envelope"})
			continue
		}
		cmd, ok := commands[env.Type]
		if !ok {
			h.reply(c, streaming.ErrorMessage{Type: streaming.TypeError, For: env.Type, Error: "unknown message type"})
			continue
		}

		_, err = h.dispatcher.Dispatch(dispatcher.Event{
			Ctx:       context.Background(),
			Command:   cmd,
			Payload:   env.Payload,
			Timestamp: time.Now(),
		})
		if err != nil {
			h.reply(c, streaming.ErrorMessage{Type: streaming.TypeError, For: env.Type, Error: err.Error()})
			continue
		}
		h.reply(c, streaming.AckMessage{Type: streaming.TypeAck, For: env.Type})
	}
}

func (h *Hub) reply(c *client, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to encode reply", "error", err)
		return
	}
	c.send(data)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	_ = c.close()
	h.logger.Debug("WebSocket client disconnected")
}

// Close disconnects every client. Later connections are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.close()
	}
}

// client owns one WebSocket connection with a single write goroutine.
type client struct {
	conn   *ws.Conn
	sendCh chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger

	// version of the last snapshot queued for this client, guarded by Hub.mu
	version uint64
}

func newClient(conn *ws.Conn, logger *slog.Logger) *client {
	return &client{
		conn:   conn,
		sendCh: make(chan []byte, sendChSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// writeLoop drains sendCh and writes messages to the WebSocket.
func (c *client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				_ = c.close()
				return
			}
			if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				_ = c.close()
				return
			}
		}
	}
}

// send pushes data to the write loop. Non-blocking; drops if channel full.
func (c *client) send(data []byte) {
	select {
	case <-c.done:
	case c.sendCh <- data:
	default:
		c.logger.Warn("WebSocket send channel full, dropping message")
	}
}

// close sends a close frame and stops the write loop.
func (c *client) close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = c.conn.Close()
	})
	return err
}
