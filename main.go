// Command pongrelay starts the pong-wars game state relay.
//
// It supports two modes:
//  1. "serve" (default) – runs the HTTP server exposing the WebSocket relay, REST API, and an /mcp HTTP endpoint
//  2. "mcp" – runs an MCP stdio server against a running relay, starting an internal one if none answers
//
// Configuration comes from an optional YAML file and RELAY_* environment
// variables; command line flags override both.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/pongrelay/api"
	"github.com/wricardo/pongrelay/game/config"
	"github.com/wricardo/pongrelay/game/lifecycle"
	"github.com/wricardo/pongrelay/game/state"
	"github.com/wricardo/pongrelay/transport/mcp"
	"github.com/wricardo/pongrelay/transport/websocket"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Pong Relay"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load .env file if it exists (ignore error if not found)
	envErr := godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if envErr != nil && !os.IsNotExist(envErr) {
		slog.Warn("error loading .env file", "error", envErr)
	}

	if err := newApp().Run(ctx, os.Args); err != nil {
		slog.Error("pongrelay failed", "error", err)
		os.Exit(1)
	}
}

// newApp builds the root command. Running it without a subcommand serves the relay.
func newApp() *cli.Command {
	return &cli.Command{
		Name:    "pongrelay",
		Usage:   "relay pong-wars game state between WebSocket clients",
		Version: Version,
		Flags:   relayFlags(),
		Action:  serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server with the WebSocket relay, REST API, and MCP endpoint",
				Action: serveAction,
			},
			{
				Name:  "mcp",
				Usage: "run an MCP stdio server backed by the relay REST API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "api-url",
						Usage:   "base URL of a running relay; an internal relay is started if it does not answer",
						Value:   "http://localhost:3001",
						Sources: cli.EnvVars("RELAY_API_URL"),
					},
				},
				Action: mcpAction,
			},
		},
	}
}

// relayFlags are shared by every command. Values override file and environment configuration.
func relayFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to a YAML configuration file",
			Sources: cli.EnvVars("RELAY_CONFIG"),
		},
		&cli.StringFlag{
			Name:  "host",
			Usage: "HTTP server host",
		},
		&cli.IntFlag{
			Name:  "port",
			Usage: "HTTP server port",
		},
		&cli.StringFlag{
			Name:  "static-dir",
			Usage: "directory of static client files served at /",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "log level (debug, info, warn, error)",
		},
		&cli.BoolFlag{
			Name:  "ngrok",
			Usage: "expose the server through an ngrok tunnel",
		},
		&cli.StringFlag{
			Name:  "ngrok-domain",
			Usage: "custom ngrok domain (optional)",
		},
	}
}

// loadConfig reads file and environment configuration then applies explicitly set flags.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	if cmd.IsSet("host") {
		cfg.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("static-dir") {
		cfg.StaticDir = cmd.String("static-dir")
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if cmd.IsSet("ngrok") {
		cfg.Ngrok.Enabled = cmd.Bool("ngrok")
	}
	if cmd.IsSet("ngrok-domain") {
		cfg.Ngrok.Domain = cmd.String("ngrok-domain")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger returns a JSON logger at the configured level.
func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel, os.Stderr)
	logger.Info("starting relay", "app", AppName, "version", Version, "mode", "serve")

	return runHTTPServer(ctx, cfg, logger)
}

func mcpAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// stdout carries the MCP protocol
	logger := newLogger(cfg.LogLevel, os.Stderr)
	logger.Info("starting relay", "app", AppName, "version", Version, "mode", "mcp")

	return runStdioMCP(ctx, cmd.String("api-url"), cfg, logger)
}

// newRelay creates the hub and starts its loop. The hub stops when ctx is done.
func newRelay(ctx context.Context, cfg *config.Config, logger *slog.Logger) *websocket.Hub {
	opts := websocket.Options{
		SendBuffer:     cfg.WebSocket.SendBuffer,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		PingPeriod:     cfg.WebSocket.PingPeriod(),
		CheckOrigin: func(r *http.Request) bool {
			return cfg.WebSocket.OriginAllowed(r.Header.Get("Origin"))
		},
	}

	hub := websocket.NewHub(state.NewStore(), lifecycle.NewCoordinator(), logger, opts)
	go hub.Run(ctx)
	return hub
}

// newHandler combines the API server with an /mcp proxy endpoint that targets baseURL.
func newHandler(hub *websocket.Hub, cfg *config.Config, baseURL string, logger *slog.Logger) http.Handler {
	apiServer := api.NewServer(hub, cfg.StaticDir, logger)
	mcpClient := mcp.NewClient(baseURL)

	mainRouter := http.NewServeMux()

	// Mount API server at root
	mainRouter.Handle("/", apiServer)

	mainRouter.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})

	return mainRouter
}

// runHTTPServer serves the relay until ctx is cancelled.
// If ngrok is enabled it also provisions a public tunnel.
func runHTTPServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()

	hub := newRelay(hubCtx, cfg, logger)

	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Addr(), err)
	}
	addr := listener.Addr().String()

	handler := newHandler(hub, cfg, "http://"+addr, logger)

	// No WriteTimeout: WebSocket connections are long lived
	httpServer := &http.Server{
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()

		logger.Info("HTTP server listening", "addr", addr)
		logger.Info("endpoints",
			"websocket", "ws://"+addr+"/ws",
			"api", "http://"+addr+"/api",
			"mcp", "http://"+addr+"/mcp")

		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	tunnelCtx, closeTunnel := context.WithCancel(ctx)
	defer closeTunnel()

	if cfg.Ngrok.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runTunnel(tunnelCtx, cfg.Ngrok, handler, logger)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		logger.Error("HTTP server failed", "error", err)
		closeTunnel()
		stopHub()
		wg.Wait()
		return err
	}

	closeTunnel()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Close client connections so hijacked WebSockets do not hold up shutdown
	stopHub()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	wg.Wait()
	logger.Info("server stopped")
	return nil
}

// runTunnel serves handler through ngrok until ctx is done.
func runTunnel(ctx context.Context, cfg config.Ngrok, handler http.Handler, logger *slog.Logger) {
	logger = logger.With("component", "ngrok")

	if cfg.AuthToken == "" {
		logger.Warn("ngrok enabled but no auth token provided (set NGROK_AUTHTOKEN)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if cfg.Domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.Domain))
		logger.Info("using custom ngrok domain", "domain", cfg.Domain)
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	logger.Info("starting ngrok tunnel")
	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(cfg.AuthToken))
	if err != nil {
		logger.Error("failed to start ngrok tunnel", "error", err)
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			logger.Error("failed to close ngrok tunnel", "error", err)
		}
	}()

	ngrokURL := tun.URL()
	logger.Info("ngrok tunnel established",
		"url", ngrokURL,
		"websocket", strings.Replace(ngrokURL, "https://", "wss://", 1)+"/ws",
		"mcp", ngrokURL+"/mcp")

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		logger.Error("ngrok server error", "error", err)
	}
	logger.Info("ngrok tunnel closed")
}

// relayAvailable reports whether a relay answers its health check at baseURL.
func relayAvailable(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", strings.TrimRight(baseURL, "/")+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// runStdioMCP runs an MCP stdio server. It uses the relay at apiURL when it
// answers, otherwise it starts an internal relay on a random loopback port.
func runStdioMCP(ctx context.Context, apiURL string, cfg *config.Config, logger *slog.Logger) error {
	baseURL := apiURL

	if relayAvailable(ctx, apiURL) {
		logger.Info("using external relay for MCP", "url", apiURL)
	} else {
		logger.Info("no external relay found, starting internal HTTP server", "url", apiURL)

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		baseURL = "http://" + listener.Addr().String()

		hubCtx, stopHub := context.WithCancel(context.Background())
		defer stopHub()

		hub := newRelay(hubCtx, cfg, logger)
		httpServer := &http.Server{Handler: api.NewServer(hub, cfg.StaticDir, logger)}

		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("internal HTTP server error", "error", err)
			}
		}()
		defer httpServer.Close()

		logger.Info("internal HTTP server started", "url", baseURL)
	}

	mcpClient := mcp.NewClient(baseURL)
	logger.Info("MCP stdio server ready", "api", baseURL)

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}
