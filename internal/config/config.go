// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all cmisbrowse configuration.
type Config struct {
	// Repository
	ServerURL    string
	Username     string
	Password     string
	Token        string
	InitObjectID string
	InitPath     string
	Timeout      time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Metrics
	MetricsAddr string

	// Relay (optional, empty means the in-process bus)
	RelayURL string

	// Widgets
	PageSize             int
	SearchTypeID         string
	InitQuery            string
	OpenRootNode         bool
	ExcludedTypeIDs      []string
	PreviewableMimeTypes []string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ServerURL:    envOr("CMIS_SERVER_URL", ""),
		Username:     envOr("CMIS_USERNAME", ""),
		Password:     envOr("CMIS_PASSWORD", ""),
		Token:        envOr("CMIS_TOKEN", ""),
		InitObjectID: envOr("CMIS_INIT_OBJECT_ID", ""),
		InitPath:     envOr("CMIS_INIT_PATH", ""),
		Timeout:      envDuration("CMIS_TIMEOUT", 30*time.Second),
		LogLevel:     envOr("LOG_LEVEL", "info"),
		LogFormat:    envOr("LOG_FORMAT", "json"),
		MetricsAddr:  envOr("METRICS_ADDR", ""),
		RelayURL:     envOr("RELAY_URL", ""),
		PageSize:     envInt("PAGE_SIZE", 10),
		SearchTypeID: envOr("SEARCH_TYPE_ID", "cmis:document"),
		InitQuery:    envOr("CMIS_INIT_QUERY", ""),
		OpenRootNode: envBool("OPEN_ROOT_NODE", true),
	}
	cfg.ExcludedTypeIDs = envList("EXCLUDED_TYPE_IDS")
	cfg.PreviewableMimeTypes = envList("PREVIEWABLE_MIME_TYPES")

	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("CMIS_SERVER_URL is required")
	}

	return cfg, nil
}

func envList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
