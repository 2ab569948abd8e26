// Package config loads dev server configuration from environment variables.
//
// Optional variables:
//   - DEVSERVER_ADDR: listen address for the HTTP server (default ":8765").
//   - PROJECTS_FILE: path to the projects YAML file (default "flags.yaml").
//   - LOG_LEVEL: minimum log level (default "info").
//   - WATCH_PROJECTS_FILE: reload the projects file on change
//     (default "true").
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

const (
	defaultAddr         = ":8765"
	defaultProjectsFile = "flags.yaml"
)

// Config holds the runtime configuration for the toolbar dev server.
type Config struct {
	Addr         string
	ProjectsFile string
	LogLevel     string
	WatchFile    bool
}

// Load reads configuration from environment variables, applying defaults
// where appropriate. It returns an error if optional values fail validation.
func Load() (Config, error) {
	cfg := Config{
		Addr:         defaultAddr,
		ProjectsFile: defaultProjectsFile,
		LogLevel:     strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		WatchFile:    true,
	}

	if v := strings.TrimSpace(os.Getenv("DEVSERVER_ADDR")); v != "" {
		cfg.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("PROJECTS_FILE")); v != "" {
		cfg.ProjectsFile = v
	}
	if v := strings.TrimSpace(os.Getenv("WATCH_PROJECTS_FILE")); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, errors.New("WATCH_PROJECTS_FILE must be a boolean")
		}
		cfg.WatchFile = parsed
	}

	return cfg, nil
}
