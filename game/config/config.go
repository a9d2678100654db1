package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

var (
	ErrInvalidPort     = errors.New("invalid port")
	ErrInvalidBuffer   = errors.New("invalid buffer size")
	ErrInvalidTimeout  = errors.New("invalid timeout")
	ErrInvalidLogLevel = errors.New("invalid log level")
)

// Config is the relay server configuration.
type Config struct {
	Host      string    `yaml:"host" env:"RELAY_HOST" env-default:"localhost"`
	Port      int       `yaml:"port" env:"RELAY_PORT" env-default:"3001"`
	StaticDir string    `yaml:"static-dir" env:"RELAY_STATIC_DIR"`
	LogLevel  string    `yaml:"log-level" env:"RELAY_LOG_LEVEL" env-default:"info"`
	WebSocket WebSocket `yaml:"websocket"`
	Ngrok     Ngrok     `yaml:"ngrok"`
}

// WebSocket tunes the per-connection transport.
type WebSocket struct {
	SendBuffer     int           `yaml:"send-buffer" env:"RELAY_WS_SEND_BUFFER" env-default:"256"`
	MaxMessageSize int64         `yaml:"max-message-size" env:"RELAY_WS_MAX_MESSAGE_SIZE" env-default:"65536"`
	WriteWait      time.Duration `yaml:"write-wait" env:"RELAY_WS_WRITE_WAIT" env-default:"10s"`
	PongWait       time.Duration `yaml:"pong-wait" env:"RELAY_WS_PONG_WAIT" env-default:"60s"`
	AllowedOrigins []string      `yaml:"allowed-origins" env:"RELAY_WS_ALLOWED_ORIGINS" env-separator:","`
}

// Ngrok configures the optional public tunnel.
type Ngrok struct {
	Enabled   bool   `yaml:"enabled" env:"NGROK_ENABLED"`
	AuthToken string `yaml:"auth-token" env:"NGROK_AUTHTOKEN"`
	Domain    string `yaml:"domain" env:"NGROK_DOMAIN"`
}

// Load reads the configuration from path, or from the environment alone when path is empty.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load config: %w", err)
	}

	return cfg, nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}

	return c.WebSocket.Validate()
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks the transport settings.
func (w WebSocket) Validate() error {
	if w.SendBuffer <= 0 {
		return fmt.Errorf("%w: send buffer %d", ErrInvalidBuffer, w.SendBuffer)
	}
	if w.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: max message size %d", ErrInvalidBuffer, w.MaxMessageSize)
	}
	if w.WriteWait <= 0 {
		return fmt.Errorf("%w: write wait %s", ErrInvalidTimeout, w.WriteWait)
	}
	if w.PongWait <= 0 {
		return fmt.Errorf("%w: pong wait %s", ErrInvalidTimeout, w.PongWait)
	}
	return nil
}

// PingPeriod is how often pings are sent. Must be less than PongWait.
func (w WebSocket) PingPeriod() time.Duration {
	return (w.PongWait * 9) / 10
}

// OriginAllowed reports whether a browser origin may open a connection.
// An empty allow list accepts every origin.
func (w WebSocket) OriginAllowed(origin string) bool {
	if len(w.AllowedOrigins) == 0 || origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range w.AllowedOrigins {
		if strings.EqualFold(strings.TrimSuffix(allowed, "/"), u.Scheme+"://"+u.Host) {
			return true
		}
	}
	return false
}
