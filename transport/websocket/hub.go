package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wricardo/pongrelay/game/lifecycle"
	"github.com/wricardo/pongrelay/game/state"
)

var ErrHubClosed = errors.New("hub is closed")

// Options tunes the per-connection transport.
type Options struct {
	// Outbound frames buffered per client before it is dropped as too slow.
	SendBuffer int

	// Maximum message size allowed from peer.
	MaxMessageSize int64

	// Time allowed to write a message to the peer.
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer.
	PongWait time.Duration

	// Send pings to peer with this period. Must be less than PongWait.
	PingPeriod time.Duration

	// CheckOrigin accepts or rejects the upgrade request. Nil allows all origins.
	CheckOrigin func(r *http.Request) bool
}

// DefaultOptions returns the transport settings used when none are configured.
func DefaultOptions() Options {
	return Options{
		SendBuffer:     256,
		MaxMessageSize: 64 * 1024,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultOptions.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.SendBuffer <= 0 {
		o.SendBuffer = def.SendBuffer
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = def.MaxMessageSize
	}
	if o.WriteWait <= 0 {
		o.WriteWait = def.WriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = def.PongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = (o.PongWait * 9) / 10
	}
	if o.CheckOrigin == nil {
		// Allow all origins
		o.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return o
}

// Client is one live WebSocket connection.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	id         uuid.UUID
	registered chan struct{}
}

// ID returns the identity issued at registration.
func (c *Client) ID() uuid.UUID {
	return c.id
}

// Stats is a point-in-time view of the relay.
type Stats struct {
	Connections  int                `json:"connections"`
	Lifecycle    lifecycle.Snapshot `json:"lifecycle"`
	StateVersion uint64             `json:"state_version"`
}

// event is one unit of work for the hub loop.
type event struct {
	origin *Client
	frame  *Frame
	ack    chan int
}

// Hub owns the registry and the session state. A single goroutine running
// Run applies every registration, removal and frame in the order received.
type Hub struct {
	registry  *Registry
	router    *Router
	store     *state.Store
	lifecycle *lifecycle.Coordinator

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Inbound frames from clients and local commands
	inbound chan event

	// Closed when Run returns
	done chan struct{}

	upgrader websocket.Upgrader
	opts     Options
	logger   *slog.Logger
}

// NewHub creates a hub relaying the given session state.
func NewHub(store *state.Store, coordinator *lifecycle.Coordinator, logger *slog.Logger, opts Options) *Hub {
	opts = opts.withDefaults()

	registry := NewRegistry()

	return &Hub{
		registry:   registry,
		router:     NewRouter(registry, store, coordinator, logger),
		store:      store,
		lifecycle:  coordinator,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan event),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     opts.CheckOrigin,
		},
		opts:   opts,
		logger: logger.With("component", "hub"),
	}
}

// Run starts the hub's event loop. It returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.router.Disconnect(client)

		case ev := <-h.inbound:
			h.dispatch(ev)
		}
	}
}

// ServeWS upgrades the request and relays frames until the connection closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, h.opts.SendBuffer),
		registered: make(chan struct{}),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	// The join snapshot is queued before anything is read from the client.
	select {
	case <-client.registered:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Start injects a game start as if a client had sent it.
func (h *Hub) Start(ctx context.Context) (int, error) {
	return h.submit(ctx, &Frame{Type: TypeGameStart})
}

// End injects a game end carrying payload. A nil payload omits data.
func (h *Hub) End(ctx context.Context, payload json.RawMessage) (int, error) {
	return h.submit(ctx, &Frame{Type: TypeGameEnd, Data: payload})
}

// Snapshot returns the current game state.
func (h *Hub) Snapshot() state.GameState {
	return h.store.Get()
}

// Stats reports connection count, lifecycle and state version.
func (h *Hub) Stats() Stats {
	return Stats{
		Connections:  h.registry.Len(),
		Lifecycle:    h.lifecycle.Snapshot(),
		StateVersion: h.store.Version(),
	}
}

func (h *Hub) submit(ctx context.Context, f *Frame) (int, error) {
	ev := event{frame: f, ack: make(chan int, 1)}

	select {
	case h.inbound <- ev:
	case <-h.done:
		return 0, ErrHubClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case n := <-ev.ack:
		return n, nil
	case <-h.done:
		return 0, ErrHubClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (h *Hub) registerClient(c *Client) {
	id := h.registry.Add(c)
	if err := h.router.RouteJoin(c); err != nil {
		h.logger.Error("failed to send initial state", "client", id, "error", err)
	}
	close(c.registered)

	h.logger.Info("client connected", "client", id, "remote", c.remoteAddr(), "total", h.registry.Len())
}

func (h *Hub) dispatch(ev event) {
	origin := uuid.Nil
	if ev.origin != nil {
		origin = ev.origin.id
	}

	var (
		delivered int
		err       error
	)

	switch ev.frame.Type {
	case TypeGameState:
		delivered, err = h.router.RouteStateUpdate(origin, ev.frame.State)
	case TypeGameStart:
		delivered, err = h.router.RouteLifecycleStart()
	case TypeGameEnd:
		delivered, err = h.router.RouteLifecycleEnd(ev.frame.Data)
	}

	if err != nil {
		h.logger.Error("failed to route frame", "type", ev.frame.Type, "client", origin, "error", err)
	} else {
		h.logger.Debug("routed frame", "type", ev.frame.Type, "client", origin, "delivered", delivered)
	}

	if ev.ack != nil {
		ev.ack <- delivered
	}
}

// shutdown stops accepting work and closes every client's send buffer.
func (h *Hub) shutdown() {
	close(h.done)
	h.registry.ForEach(func(c *Client) {
		h.router.remove(c)
	})
	h.logger.Info("hub stopped")
}

// readPump pumps frames from the WebSocket connection to the hub
func (c *Client) readPump() {
	log := c.hub.logger.With("client", c.id)

	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.opts.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				// Oversize frames tear the connection down
				log.Warn("closing connection", "reason", "frame exceeds max message size", "limit", c.hub.opts.MaxMessageSize)
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read error", "error", err)
			} else {
				log.Debug("connection closed", "error", err)
			}
			return
		}

		frame, err := DecodeFrame(message)
		if err != nil {
			log.Warn("dropping frame", "error", err)
			continue
		}

		select {
		case c.hub.inbound <- event{origin: c, frame: frame}:
		case <-c.hub.done:
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
// Every queued frame is written as its own text message.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Debug("websocket write failed", "client", c.id, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) remoteAddr() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}
