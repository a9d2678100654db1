// Package websocket provides the WebSocket relay for shared game state.
//
// The websocket package implements:
//   - The JSON frame protocol (gameState, gameStart, gameEnd)
//   - A registry of live connections keyed by an issued identity
//   - Routing rules deciding who receives each frame
//   - The hub event loop and per-connection read/write pumps
//
// Architecture:
//
// The package uses a hub-and-spoke model where a central Hub owns every
// connection and the shared session state. Each client connection is handled
// by two goroutines: a read pump that decodes frames and forwards them to the
// hub, and a write pump that drains the client's send buffer. The hub's Run
// loop is the only goroutine that mutates the registry, the state store or
// the lifecycle coordinator, so frames are applied and fanned out in exactly
// the order the hub receives them.
//
// Message Protocol:
//
// Messages are JSON envelopes {type, data}:
//   - gameState: data is the full snapshot; relayed to everyone except the sender
//   - gameStart: data is ignored; {type:"gameStart"} is sent to everyone
//   - gameEnd: data is the result payload; relayed to everyone
//
// On connect the hub sends the current snapshot as a gameState frame before
// anything is read from the new client.
//
// Usage:
//
//	hub := websocket.NewHub(state.NewStore(), lifecycle.NewCoordinator(), logger, websocket.DefaultOptions())
//	go hub.Run(ctx)
//
//	http.HandleFunc("/ws", hub.ServeWS)
//
// Connection Lifecycle:
//
// 1. Client connects and is registered with a fresh identity
// 2. Initial snapshot queued to the client
// 3. Client sends frames, receives broadcasts
// 4. Disconnection or a full send buffer removes the client
//
// Errors:
//
// Malformed frames and unknown types are logged and dropped; the connection
// stays open. A client whose send buffer is full is dropped without affecting
// delivery to the others. Peers are never told about a departure.
package websocket
