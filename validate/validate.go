// Command validate checks relay configuration YAML files. For each file it
// reports:
//   - Whether the file loads and passes the relay's own validation
//   - Allowed origins that are not absolute http(s) origins
//   - A static directory that does not exist
//   - Timeouts too short for browsers on slow links
package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wricardo/pongrelay/game/config"
)

// minPongWait is the shortest pong wait that tolerates a busy browser tab.
const minPongWait = 5 * time.Second

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
}

func (r *ValidationResult) fail(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) info(format string, args ...any) {
	r.Errors = append(r.Errors, "✓ "+fmt.Sprintf(format, args...))
}

// validateConfig loads and validates a single configuration file.
// A relative static directory is resolved against the file's directory.
func validateConfig(filePath string) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	cfg, err := config.Load(filePath)
	if err != nil {
		result.fail("Failed to load: %v", err)
		return result
	}

	if err := cfg.Validate(); err != nil {
		result.fail("Invalid settings: %v", err)
	} else {
		result.info("Listens on %s", cfg.Addr())
	}

	for _, origin := range cfg.WebSocket.AllowedOrigins {
		u, err := url.Parse(origin)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			result.fail("Allowed origin %q is not an http(s) origin", origin)
			continue
		}
		if u.Path != "" && u.Path != "/" {
			result.fail("Allowed origin %q must not have a path", origin)
		}
	}
	if len(cfg.WebSocket.AllowedOrigins) == 0 {
		result.info("All origins allowed")
	}

	if cfg.WebSocket.PongWait > 0 && cfg.WebSocket.PongWait < minPongWait {
		result.fail("Pong wait %s is shorter than %s", cfg.WebSocket.PongWait, minPongWait)
	}

	if cfg.StaticDir != "" {
		dir := cfg.StaticDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(filepath.Dir(filePath), dir)
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			result.fail("Static directory %q does not exist", cfg.StaticDir)
		} else {
			result.info("Serves static files from %s", cfg.StaticDir)
		}
	}

	if cfg.Ngrok.Enabled && cfg.Ngrok.AuthToken == "" {
		result.info("Ngrok enabled; auth token expected from NGROK_AUTHTOKEN")
	}

	return result
}

// main validates every *.yaml and *.yml file in the given directory (default
// "configs"), printing a concise report and exiting with non-zero status if
// any are invalid.
func main() {
	configDir := "configs"
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(configDir, pattern))
		if err != nil {
			fmt.Printf("Error finding config files: %v\n", err)
			os.Exit(1)
		}
		files = append(files, matches...)
	}

	if len(files) == 0 {
		fmt.Printf("No configuration files found in %s\n", configDir)
		os.Exit(1)
	}

	allValid := true
	for _, file := range files {
		result := validateConfig(file)

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Errors {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Println("  ❌ " + err)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All configurations are valid!")
	} else {
		fmt.Println("❌ Some configurations have errors")
		os.Exit(1)
	}
}
