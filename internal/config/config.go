// Package config loads storyreel settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all application configuration.
type Config struct {
	// HTTP settings
	HTTPPort     int
	MaxBodyBytes int64

	// Encoder service settings
	FFmpegPath    string
	TempDir       string
	CleanupDelay  time.Duration
	SweepSchedule string
	SweepMaxAge   time.Duration
	QueueCapacity int
	JobTTL        time.Duration

	// Client settings
	RemoteEncoderURL string
	VideoWidth       int
	VideoHeight      int
	VideoFPS         int
	VideoBitrate     int

	// TTS settings
	PiperPath    string
	PiperModel   string
	DefaultVoice string

	// Logging settings
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with sane defaults.
// Each existing envFile is loaded first with godotenv; variables already set
// in the environment win over the file. Missing files are skipped.
func Load(envFiles ...string) (*Config, error) {
	for _, file := range envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	cfg := &Config{
		// HTTP settings
		HTTPPort:     getEnvInt("HTTP_PORT", 3001),
		MaxBodyBytes: getEnvInt64("MAX_BODY_BYTES", 256<<20),

		// Encoder service settings
		FFmpegPath:    getEnvString("FFMPEG_PATH", "ffmpeg"),
		TempDir:       getEnvString("TEMP_DIR", os.TempDir()),
		CleanupDelay:  getEnvDuration("CLEANUP_DELAY", 10*time.Second),
		SweepSchedule: getEnvString("SWEEP_SCHEDULE", "@every 15m"),
		SweepMaxAge:   getEnvDuration("SWEEP_MAX_AGE", time.Hour),
		QueueCapacity: getEnvInt("QUEUE_CAPACITY", 4),
		JobTTL:        getEnvDuration("JOB_TTL", 10*time.Minute),

		// Client settings
		RemoteEncoderURL: getEnvString("REMOTE_ENCODER_URL", "http://localhost:3001/api/render-video"),
		VideoWidth:       getEnvInt("VIDEO_WIDTH", 1080),
		VideoHeight:      getEnvInt("VIDEO_HEIGHT", 1920),
		VideoFPS:         getEnvInt("VIDEO_FPS", 30),
		VideoBitrate:     getEnvInt("VIDEO_BITRATE", 5_000_000),

		// TTS settings
		PiperPath:    getEnvString("PIPER_PATH", "piper"),
		PiperModel:   getEnvString("PIPER_MODEL", ""),
		DefaultVoice: getEnvString("DEFAULT_VOICE", "default"),

		// Logging settings
		LogLevel:  getEnvString("LOG_LEVEL", "info"),
		LogFormat: getEnvString("LOG_FORMAT", "text"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return errors.New("HTTP_PORT must be between 1 and 65535")
	}

	if c.MaxBodyBytes < 1 {
		return errors.New("MAX_BODY_BYTES must be at least 1")
	}

	if c.QueueCapacity < 1 {
		return errors.New("QUEUE_CAPACITY must be at least 1")
	}

	if c.CleanupDelay < 0 {
		return errors.New("CLEANUP_DELAY must be non-negative")
	}

	if c.JobTTL < 0 {
		return errors.New("JOB_TTL must be non-negative")
	}

	if c.SweepMaxAge <= 0 {
		return errors.New("SWEEP_MAX_AGE must be positive")
	}

	if _, err := cron.ParseStandard(c.SweepSchedule); err != nil {
		return fmt.Errorf("SWEEP_SCHEDULE is invalid: %w", err)
	}

	if c.VideoWidth < 2 || c.VideoHeight < 2 || c.VideoWidth%2 != 0 || c.VideoHeight%2 != 0 {
		return errors.New("VIDEO_WIDTH and VIDEO_HEIGHT must be even and at least 2")
	}

	if c.VideoFPS < 1 || c.VideoFPS > 120 {
		return errors.New("VIDEO_FPS must be between 1 and 120")
	}

	if c.VideoBitrate < 1 {
		return errors.New("VIDEO_BITRATE must be at least 1")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[c.LogFormat] {
		return errors.New("LOG_FORMAT must be one of: text, json")
	}

	return nil
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as an int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns the environment variable as an int64 or a default.
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns the environment variable as a duration or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
