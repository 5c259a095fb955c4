// Package config assembles runtime settings from an optional YAML
// settings file, a .env file, and the environment. Secrets only ever
// come from the environment; the YAML file holds non-secret tunables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"tmmirror/internal/storage"
	"tmmirror/internal/tiles"
	"tmmirror/internal/tm"
)

// APIConfig tunes the Tasking Manager client.
type APIConfig struct {
	BaseURL  string
	Statuses string
	Timeout  time.Duration
}

// SyncConfig tunes the orchestrator.
type SyncConfig struct {
	Workers      int
	CacheEntries int
}

// Config is everything a run needs.
type Config struct {
	Storage  storage.Config
	API      APIConfig
	Tiles    tiles.Options
	Sync     SyncConfig
	LogFile  string
	LogLevel slog.Level
}

type fileConfig struct {
	API struct {
		BaseURL        string `yaml:"base_url"`
		Statuses       string `yaml:"statuses"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"api"`
	Tiles struct {
		MinZoom *int   `yaml:"min_zoom"`
		MaxZoom *int   `yaml:"max_zoom"`
		Layer   string `yaml:"layer"`
	} `yaml:"tiles"`
	Sync struct {
		Workers      int `yaml:"workers"`
		CacheEntries int `yaml:"cache_entries"`
	} `yaml:"sync"`
}

// Load builds the configuration. settingsPath may be empty or point to
// a YAML tunables file; a named-but-missing file is an error, while the
// default path is allowed to be absent. Returns an error listing every
// missing required value.
func Load(settingsPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		API: APIConfig{
			BaseURL:  tm.DefaultBaseURL,
			Statuses: tm.DefaultStatuses,
			Timeout:  60 * time.Second,
		},
		Tiles:    tiles.DefaultOptions(),
		Sync:     SyncConfig{Workers: 1, CacheEntries: 1024},
		LogLevel: slog.LevelInfo,
	}

	if err := applyFile(cfg, settingsPath); err != nil {
		return nil, err
	}
	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultSettingsPath is consulted when no --settings flag is given.
const DefaultSettingsPath = "mirror.yaml"

func applyFile(cfg *Config, path string) error {
	required := path != "" && path != DefaultSettingsPath
	if path == "" {
		path = DefaultSettingsPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return fmt.Errorf("read settings file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse settings file %s: %w", path, err)
	}

	if v := strings.TrimSpace(fc.API.BaseURL); v != "" {
		cfg.API.BaseURL = v
	}
	if v := strings.TrimSpace(fc.API.Statuses); v != "" {
		cfg.API.Statuses = v
	}
	if fc.API.TimeoutSeconds > 0 {
		cfg.API.Timeout = time.Duration(fc.API.TimeoutSeconds) * time.Second
	}
	if fc.Tiles.MinZoom != nil {
		cfg.Tiles.MinZoom = *fc.Tiles.MinZoom
	}
	if fc.Tiles.MaxZoom != nil {
		cfg.Tiles.MaxZoom = *fc.Tiles.MaxZoom
	}
	if v := strings.TrimSpace(fc.Tiles.Layer); v != "" {
		cfg.Tiles.Layer = v
	}
	if fc.Sync.Workers > 0 {
		cfg.Sync.Workers = fc.Sync.Workers
	}
	if fc.Sync.CacheEntries > 0 {
		cfg.Sync.CacheEntries = fc.Sync.CacheEntries
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Storage.Bucket = strings.TrimSpace(os.Getenv("AWS_BUCKET_NAME"))
	cfg.Storage.AccessKey = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	cfg.Storage.SecretKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))
	cfg.Storage.Region = firstNonEmpty(strings.TrimSpace(os.Getenv("AWS_REGION")), "us-east-1")

	endpoint, useSSL := parseEndpoint(os.Getenv("S3_ENDPOINT_URL"))
	cfg.Storage.Endpoint = endpoint
	cfg.Storage.UseSSL = useSSL

	if v := strings.TrimSpace(os.Getenv("TM_API_BASE_URL")); v != "" {
		cfg.API.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("SYNC_WORKERS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Sync.Workers = n
		}
	}
	cfg.LogFile = strings.TrimSpace(os.Getenv("MIRROR_LOG_FILE"))
	cfg.LogLevel = parseLogLevel(os.Getenv("MIRROR_LOG_LEVEL"))
}

func validate(cfg *Config) error {
	var missing []string
	if cfg.Storage.AccessKey == "" {
		missing = append(missing, "AWS_ACCESS_KEY_ID")
	}
	if cfg.Storage.SecretKey == "" {
		missing = append(missing, "AWS_SECRET_ACCESS_KEY")
	}
	if cfg.Storage.Bucket == "" {
		missing = append(missing, "AWS_BUCKET_NAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// parseEndpoint splits an S3 endpoint URL into the host[:port] form the
// client wants plus its TLS flag. Empty input selects AWS S3 over TLS.
func parseEndpoint(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", true
	}
	switch {
	case strings.HasPrefix(raw, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(raw, "https://"), "/"), true
	case strings.HasPrefix(raw, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(raw, "http://"), "/"), false
	default:
		return strings.TrimSuffix(raw, "/"), true
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
