// Package config provides configuration loading for the relay server.
//
// The config package handles:
//   - Reading an optional YAML configuration file
//   - Environment variable overrides (RELAY_*, NGROK_*)
//   - Defaults for every setting
//   - Validation of ports, buffers and timeouts
//
// Configuration Sources:
//
// Values are resolved in order: built-in defaults, the YAML file (when a path
// is given), then environment variables. Command-line flags are applied on
// top of the loaded configuration by the caller.
//
// Usage:
//
//	cfg, err := config.Load("relay.yml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	addr := cfg.Addr()
//
// Example file:
//
//	host: 0.0.0.0
//	port: 3001
//	static-dir: ./public
//	log-level: debug
//	websocket:
//	  send-buffer: 256
//	  max-message-size: 65536
//	  write-wait: 10s
//	  pong-wait: 60s
//	  allowed-origins: [https://pong.example.com]
package config
