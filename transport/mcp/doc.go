// Package mcp provides a Model Context Protocol front end for the pong relay.
//
// The client is deliberately thin: every tool call is translated into a
// request against the relay's REST API, so an MCP agent can observe and
// drive a running relay without touching its internals.
//
// MCP Tools:
//   - game_state: Latest relayed game state
//   - relay_status: Connection count, lifecycle status and state version
//   - start_game: Broadcast gameStart to every client
//   - end_game: Broadcast gameEnd with an optional result
//
// Transport Modes:
//
// The server can be served over stdio for local MCP clients, or mounted
// on the relay's HTTP server at /mcp.
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:3001")
//	server.ServeStdio(client.GetMCPServer())
package mcp
