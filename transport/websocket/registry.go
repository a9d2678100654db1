package websocket

import (
	"sync"

	"github.com/google/uuid"
)

// Registry is the single source of truth for who is connected.
type Registry struct {
	clients map[uuid.UUID]*Client
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[uuid.UUID]*Client),
	}
}

// Add registers a client and issues its identity.
func (r *Registry) Add(c *Client) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New()
	c.id = id
	r.clients[id] = c
	return id
}

// Remove unregisters a client. It reports false if id was not registered.
func (r *Registry) Remove(id uuid.UUID) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if ok {
		delete(r.clients, id)
	}
	return c, ok
}

// Get returns the client registered under id.
func (r *Registry) Get(id uuid.UUID) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[id]
	return c, ok
}

// ForEach calls fn for every registered client. fn may add or remove clients.
func (r *Registry) ForEach(fn func(*Client)) {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	for _, c := range clients {
		fn(c)
	}
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
