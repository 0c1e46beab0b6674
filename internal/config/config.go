// Package config provides the configuration structure for the songgen clients.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

const dirPermissions = 0o750

// Default values applied when the TOML file leaves a field empty.
const (
	DefaultSunoBaseURL         = "http://localhost:3000"
	DefaultSunoCDNURL          = "https://cdn1.suno.ai"
	DefaultFalQueueURL         = "https://queue.fal.run"
	DefaultFalRunURL           = "https://fal.run"
	DefaultGooeyBaseURL        = "https://api.gooey.ai"
	DefaultSongsDir            = "ai_songs"
	DefaultResponsesDir        = "tmp/suno_responses"
	DefaultAudioBucket         = "AI_SONGS"
	defaultTimeoutSeconds      = 60
	defaultPollIntervalSeconds = 5
	defaultPollAttempts        = 60
	defaultFalPollIntervalMS   = 500
)

// SunoConfig holds the settings for the self-hosted song-generation proxy.
type SunoConfig struct {
	BaseURL             string `toml:"base_url"`
	CDNURL              string `toml:"cdn_url"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	PollAttempts        int    `toml:"poll_attempts"`
	DownloadAttempts    int    `toml:"download_attempts"`
}

// Timeout returns the per-request HTTP timeout.
func (c SunoConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PollInterval returns the fixed delay between status checks.
func (c SunoConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// FalConfig holds the settings for the fal.ai queue API.
type FalConfig struct {
	QueueURL       string `toml:"queue_url"`
	RunURL         string `toml:"run_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	PollIntervalMS int    `toml:"poll_interval_ms"`
}

// Timeout returns the per-request HTTP timeout.
func (c FalConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PollInterval returns the fixed delay between queue status checks.
func (c FalConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// GooeyConfig holds the settings for the Gooey.AI lipsync API.
type GooeyConfig struct {
	BaseURL             string `toml:"base_url"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
}

// Timeout returns the per-request HTTP timeout.
func (c GooeyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PollInterval returns the fixed delay between async status checks.
func (c GooeyConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                    string `toml:"url"`
	SongRequestedSubject   string `toml:"song_requested_subject"`
	ClipReadySubject       string `toml:"clip_ready_subject"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// DatabaseConfig holds the Postgres connection string. An empty DSN disables
// the song ledger.
type DatabaseConfig struct {
	DSN string `toml:"dsn"`
}

// MetricsConfig holds the listen address of the Prometheus endpoint.
type MetricsConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir  string `toml:"base_logs_dir"`
	SongsDir     string `toml:"songs_dir"`
	ResponsesDir string `toml:"responses_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Suno     SunoConfig     `toml:"suno"`
	Fal      FalConfig      `toml:"fal"`
	Gooey    GooeyConfig    `toml:"gooey"`
	NATS     NATSConfig     `toml:"nats"`
	Database DatabaseConfig `toml:"database"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Paths    PathsConfig    `toml:"paths"`
}

// Load loads the configuration through the central configurator and fills
// in defaults for anything the file leaves out.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults replaces zero values with the documented defaults.
func (c *Config) ApplyDefaults() {
	setString(&c.Suno.BaseURL, DefaultSunoBaseURL)
	setString(&c.Suno.CDNURL, DefaultSunoCDNURL)
	setInt(&c.Suno.TimeoutSeconds, defaultTimeoutSeconds)
	setInt(&c.Suno.PollIntervalSeconds, defaultPollIntervalSeconds)
	setInt(&c.Suno.PollAttempts, defaultPollAttempts)
	setInt(&c.Suno.DownloadAttempts, defaultPollAttempts)

	setString(&c.Fal.QueueURL, DefaultFalQueueURL)
	setString(&c.Fal.RunURL, DefaultFalRunURL)
	setInt(&c.Fal.TimeoutSeconds, defaultTimeoutSeconds)
	setInt(&c.Fal.PollIntervalMS, defaultFalPollIntervalMS)

	setString(&c.Gooey.BaseURL, DefaultGooeyBaseURL)
	// Lipsync renders can take minutes on the synchronous endpoint.
	setInt(&c.Gooey.TimeoutSeconds, 10*defaultTimeoutSeconds)
	setInt(&c.Gooey.PollIntervalSeconds, defaultPollIntervalSeconds)

	setString(&c.NATS.AudioObjectStoreBucket, DefaultAudioBucket)

	setString(&c.Paths.BaseLogsDir, os.TempDir())
	setString(&c.Paths.SongsDir, DefaultSongsDir)
	setString(&c.Paths.ResponsesDir, DefaultResponsesDir)
}

// EnsureDirectories creates the output directories used by the clients.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.BaseLogsDir, c.Paths.SongsDir, c.Paths.ResponsesDir} {
		if dir == "" {
			continue
		}

		err := os.MkdirAll(dir, dirPermissions)
		if err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

func setString(field *string, fallback string) {
	if *field == "" {
		*field = fallback
	}
}

func setInt(field *int, fallback int) {
	if *field <= 0 {
		*field = fallback
	}
}
