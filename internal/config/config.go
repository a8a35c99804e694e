// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a YAML file, a .env file and SPINTA_* variables on top.
// - Errors are wrapped with this package's sentinels.
package config

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	// LogFormat selects text or json log records.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr is the HTTP listen address. The session is process-wide, so the
	// default only listens on loopback.
	Addr string `koanf:"addr" validate:"required"`

	// BackendURL is the coach backend base URL.
	BackendURL string `koanf:"backend_url" validate:"required,url"`
	// HTTPTimeoutMS bounds each outbound request.
	HTTPTimeoutMS int `koanf:"http_timeout_ms" validate:"gt=0"`

	// SessionDBPath is the SQLite file holding the session. Empty keeps the
	// session in memory.
	SessionDBPath string `koanf:"session_db_path"`
	// SpoolDir receives uploaded files until a run is confirmed or discarded.
	SpoolDir string `koanf:"spool_dir" validate:"required"`
	// StaticDir is served under /static and holds fallback artifacts.
	StaticDir string `koanf:"static_dir"`

	// AnalysisProvider is fixture, static or remote.
	AnalysisProvider string `koanf:"analysis_provider" validate:"oneof=fixture static remote"`
	// AnalysisArtifact is the static provider's events document: a URL, an
	// absolute path, or a path relative to StaticDir.
	AnalysisArtifact string `koanf:"analysis_artifact"`
	// AnalysisVideo optionally replaces the analyzed video for the static provider.
	AnalysisVideo string `koanf:"analysis_video"`
	// AnalysisRemoteURL is the remote provider endpoint.
	AnalysisRemoteURL string `koanf:"analysis_remote_url" validate:"required_if=AnalysisProvider remote,omitempty,url"`
	// AnalysisMinDurationMS is the minimum time an analysis is shown.
	AnalysisMinDurationMS int `koanf:"analysis_min_duration_ms" validate:"gte=0"`
	// AnalysisMessageIntervalMS is the progress message rotation period.
	AnalysisMessageIntervalMS int `koanf:"analysis_message_interval_ms" validate:"gt=0"`

	// WorkerCount sets the number of analysis workers.
	WorkerCount int `koanf:"worker_count" validate:"gt=0"`
	// QueueSize bounds the analysis job queue.
	QueueSize int `koanf:"queue_size" validate:"gt=0"`
	// RunRetentionMinutes is how long finished runs stay queryable.
	RunRetentionMinutes int `koanf:"run_retention_minutes" validate:"gt=0"`
}

// New creates a Config with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:                  "info",
		LogFormat:                 "text",
		Addr:                      "127.0.0.1:9080",
		BackendURL:                "http://localhost:8000",
		HTTPTimeoutMS:             60_000,
		SessionDBPath:             "data/session.db",
		SpoolDir:                  "data/uploads",
		StaticDir:                 "public",
		AnalysisProvider:          "static",
		AnalysisArtifact:          "mexico794.json",
		AnalysisMinDurationMS:     5_000,
		AnalysisMessageIntervalMS: 2_500,
		WorkerCount:               runtime.NumCPU(),
		QueueSize:                 64,
		RunRetentionMinutes:       60,
	}
}

// RunRetention returns how long terminal runs are kept.
func (c *Config) RunRetention() time.Duration {
	return time.Duration(c.RunRetentionMinutes) * time.Minute
}

// HTTPTimeout returns the outbound request timeout.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutMS) * time.Millisecond
}

// AnalysisMinDuration returns the minimum analysis display time.
func (c *Config) AnalysisMinDuration() time.Duration {
	return time.Duration(c.AnalysisMinDurationMS) * time.Millisecond
}

// AnalysisMessageInterval returns the progress rotation period.
func (c *Config) AnalysisMessageInterval() time.Duration {
	return time.Duration(c.AnalysisMessageIntervalMS) * time.Millisecond
}

// ArtifactSource resolves AnalysisArtifact against StaticDir.
func (c *Config) ArtifactSource() string {
	a := strings.TrimSpace(c.AnalysisArtifact)
	if a == "" || strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") || filepath.IsAbs(a) || c.StaticDir == "" {
		return a
	}
	return filepath.Join(c.StaticDir, a)
}

// ProviderSource returns the source handed to the configured provider.
func (c *Config) ProviderSource() string {
	if c.AnalysisProvider == "remote" {
		return c.AnalysisRemoteURL
	}
	return c.ArtifactSource()
}
