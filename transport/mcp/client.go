package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/pongrelay/game/state"
	"github.com/wricardo/pongrelay/transport/websocket"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Pong Relay",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Pong Relay - MCP Interface

This is a thin client that proxies all requests to the relay's REST API.
The relay forwards pong-wars game state between connected browsers. It does
not simulate the game; the browsers do.

AVAILABLE TOOLS:
- game_state: Get the latest game state snapshot
- relay_status: Get connection count, lifecycle status and state version
- start_game: Broadcast a game start to every connected client
- end_game: Broadcast a game end, optionally with the result`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_state",
		Description: "Get the latest game state relayed by the server",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleGameState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "relay_status",
		Description: "Get the number of connected clients, lifecycle status and state version",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleRelayStatus)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "start_game",
		Description: "Broadcast a gameStart message to every connected client",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleStartGame)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "end_game",
		Description: "Broadcast a gameEnd message to every connected client",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"winner": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"day", "night", "draw"},
					"description": "Winning side (optional)",
				},
				"day_score": map[string]interface{}{
					"type":        "integer",
					"description": "Final day score (optional)",
				},
				"night_score": map[string]interface{}{
					"type":        "integer",
					"description": "Final night score (optional)",
				},
			},
		},
	}, c.handleEndGame)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

// lifecycleResult mirrors the start and end endpoint responses.
type lifecycleResult struct {
	Type      string `json:"type"`
	Delivered int    `json:"delivered"`
	Status    string `json:"status"`
}

// Tool handlers

func (c *Client) handleGameState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var gs state.GameState
	if err := c.apiCall(ctx, "GET", "/api/state", nil, &gs); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatGameState(gs)), nil
}

func (c *Client) handleRelayStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var stats websocket.Stats
	if err := c.apiCall(ctx, "GET", "/api/status", nil, &stats); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatStats(&stats)), nil
}

func (c *Client) handleStartGame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var result lifecycleResult
	if err := c.apiCall(ctx, "POST", "/api/game/start", nil, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatLifecycleResult(&result)), nil
}

func (c *Client) handleEndGame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	var body map[string]interface{}
	if winner, ok := args["winner"].(string); ok && winner != "" {
		body = map[string]interface{}{"winner": winner}
	}
	// JSON numbers arrive as float64
	for arg, field := range map[string]string{"day_score": "dayScore", "night_score": "nightScore"} {
		if v, ok := args[arg].(float64); ok {
			if body == nil {
				body = map[string]interface{}{}
			}
			body[field] = int(v)
		}
	}

	var result lifecycleResult
	var payload interface{}
	if body != nil {
		payload = body
	}
	if err := c.apiCall(ctx, "POST", "/api/game/end", payload, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatLifecycleResult(&result)), nil
}

// Formatting helpers

func formatGameState(gs state.GameState) string {
	if len(gs) == 0 {
		return "No game state available"
	}

	var (
		day, night float64
		balls      []json.RawMessage
	)
	gs.Field("dayScore", &day)
	gs.Field("nightScore", &night)
	gs.Field("balls", &balls)

	status := "stopped"
	if gs.Running() {
		status = "running"
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Game: %s | Day: %g | Night: %g | Balls: %d\n", status, day, night, len(balls)))

	raw, err := json.MarshalIndent(gs, "", "  ")
	if err == nil {
		result.WriteString("\n")
		result.Write(raw)
		result.WriteString("\n")
	}
	return result.String()
}

func formatStats(stats *websocket.Stats) string {
	var result strings.Builder
	result.WriteString(fmt.Sprintf("Connections: %d\n", stats.Connections))
	result.WriteString(fmt.Sprintf("Lifecycle: %s (rounds started: %d)\n", stats.Lifecycle.Status, stats.Lifecycle.Rounds))
	if !stats.Lifecycle.ChangedAt.IsZero() {
		result.WriteString(fmt.Sprintf("Changed at: %s\n", stats.Lifecycle.ChangedAt.Format("2006-01-02 15:04:05")))
	}
	result.WriteString(fmt.Sprintf("State version: %d\n", stats.StateVersion))
	return result.String()
}

func formatLifecycleResult(result *lifecycleResult) string {
	return fmt.Sprintf("✓ %s sent to %d client(s)\nStatus: %s\n", result.Type, result.Delivered, result.Status)
}
