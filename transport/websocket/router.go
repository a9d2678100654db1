package websocket

import (
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/wricardo/pongrelay/game/lifecycle"
	"github.com/wricardo/pongrelay/game/state"
)

// Router decides which connections receive which frame.
//
// State updates go to everyone except the sender, who already holds the
// value. Lifecycle frames are commands and go to everyone, sender included.
// The router is not safe for concurrent use; the hub loop is its only caller.
type Router struct {
	registry  *Registry
	store     *state.Store
	lifecycle *lifecycle.Coordinator
	logger    *slog.Logger
}

// NewRouter creates a router over the given registry and session state.
func NewRouter(registry *Registry, store *state.Store, coordinator *lifecycle.Coordinator, logger *slog.Logger) *Router {
	return &Router{
		registry:  registry,
		store:     store,
		lifecycle: coordinator,
		logger:    logger.With("component", "router"),
	}
}

// RouteJoin sends the current snapshot to a newly registered client only.
func (r *Router) RouteJoin(c *Client) error {
	msg, err := encodeState(r.store.Get())
	if err != nil {
		return err
	}

	r.deliver(c, msg)
	return nil
}

// RouteStateUpdate stores gs and fans it out to every client but origin.
// It returns the number of clients the frame was queued for.
func (r *Router) RouteStateUpdate(origin uuid.UUID, gs state.GameState) (int, error) {
	r.store.Set(gs)

	msg, err := encodeState(gs)
	if err != nil {
		return 0, err
	}

	return r.broadcast(msg, origin), nil
}

// RouteLifecycleStart marks the round running and tells every client.
func (r *Router) RouteLifecycleStart() (int, error) {
	t := r.lifecycle.Start()
	r.store.SetRunning(true)
	r.logger.Info("game started", "from", t.From)

	msg, err := EncodeFrame(TypeGameStart, nil)
	if err != nil {
		return 0, err
	}

	return r.broadcast(msg, uuid.Nil), nil
}

// RouteLifecycleEnd marks the round idle and sends payload to every client.
func (r *Router) RouteLifecycleEnd(payload json.RawMessage) (int, error) {
	t := r.lifecycle.End()
	r.store.SetRunning(false)
	r.logger.Info("game ended", "from", t.From)

	msg, err := EncodeFrame(TypeGameEnd, payload)
	if err != nil {
		return 0, err
	}

	return r.broadcast(msg, uuid.Nil), nil
}

// Disconnect removes a client whose connection has gone away.
func (r *Router) Disconnect(c *Client) {
	if r.remove(c) {
		r.logger.Info("client disconnected", "client", c.id, "remaining", r.registry.Len())
	}
}

// broadcast queues msg for every client except the one with id except.
func (r *Router) broadcast(msg []byte, except uuid.UUID) int {
	delivered := 0
	r.registry.ForEach(func(c *Client) {
		if c.id == except {
			return
		}
		if r.deliver(c, msg) {
			delivered++
		}
	})
	return delivered
}

// deliver queues msg for c. A client that cannot accept it is dropped.
func (r *Router) deliver(c *Client, msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		if r.remove(c) {
			r.logger.Warn("dropping client", "client", c.id, "reason", "send buffer full")
		}
		return false
	}
}

// remove unregisters c and closes its send buffer exactly once.
func (r *Router) remove(c *Client) bool {
	if _, ok := r.registry.Remove(c.id); !ok {
		return false
	}
	close(c.send)
	return true
}
