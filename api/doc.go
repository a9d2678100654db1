// Package api provides the HTTP surface of the relay.
//
// The api package implements:
//   - WebSocket upgrade handling for game clients
//   - Read-only endpoints for the current snapshot and relay status
//   - Operator endpoints for starting and ending a round
//   - Static file serving for the game front-end
//
// Endpoints:
//
// Relay:
//   - GET /ws - WebSocket connection for game clients
//   - GET /health - Liveness check
//
// State:
//   - GET /api/state - Current game state snapshot
//   - GET /api/status - Connection count, lifecycle and state version
//
// Lifecycle:
//   - POST /api/game/start - Broadcast gameStart to every client
//   - POST /api/game/end - Broadcast gameEnd; the request body is the result payload
//
// Lifecycle requests travel through the same hub loop as client frames, so
// they are ordered with respect to client traffic and fan out identically.
//
// Usage:
//
//	hub := websocket.NewHub(store, coordinator, logger, opts)
//	go hub.Run(ctx)
//
//	server := api.NewServer(hub, "./public", logger)
//	http.ListenAndServe(":3001", server)
package api
