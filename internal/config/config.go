package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/root4loot/goutils/log"
	"github.com/root4loot/thumbnailer"
	"github.com/root4loot/thumbnailer/pkg/screener"
)

type Config struct {
	Server  ServerConfig
	Batch   BatchConfig
	Capture screener.CaptureOptions
	Runner  thumbnailer.Options
	Log     LogConfig
}

type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
}

// BatchConfig holds the defaults offered to the operator for a new batch.
type BatchConfig struct {
	WaitSeconds int
	ArchiveName string
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	// a missing .env file is fine
	_ = godotenv.Load()

	waitSeconds, err := getEnvInt("WAIT_SECONDS", thumbnailer.DefaultWaitSeconds)
	if err != nil {
		return nil, err
	}

	captureWidth, err := getEnvInt("CAPTURE_WIDTH", 1920)
	if err != nil {
		return nil, err
	}

	captureHeight, err := getEnvInt("CAPTURE_HEIGHT", 1080)
	if err != nil {
		return nil, err
	}

	captureTimeout, err := time.ParseDuration(getEnv("CAPTURE_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid CAPTURE_TIMEOUT: %w", err)
	}

	similarity, err := getEnvInt("SIMILARITY_THRESHOLD", 0)
	if err != nil {
		return nil, err
	}

	maxUploadMB, err := getEnvInt("MAX_UPLOAD_MB", 10)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("SERVER_ADDR", "127.0.0.1:8501"),
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxUploadBytes:  int64(maxUploadMB) * 1024 * 1024,
		},
		Batch: BatchConfig{
			WaitSeconds: waitSeconds,
			ArchiveName: getEnv("ARCHIVE_NAME", thumbnailer.DefaultArchiveName),
		},
		Capture: screener.CaptureOptions{
			Engine:                   getEnv("BROWSER_ENGINE", screener.EngineRod),
			BrowserBin:               getEnv("BROWSER_BIN", screener.LookupBrowserBin()),
			CaptureWidth:             captureWidth,
			CaptureHeight:            captureHeight,
			Timeout:                  int(captureTimeout.Seconds()),
			RespectCertificateErrors: getEnvBool("RESPECT_CERT_ERRORS", false),
			UseHTTP2:                 getEnvBool("USE_HTTP2", true),
			UserAgent:                getEnv("USER_AGENT", ""),
		},
		Runner: thumbnailer.Options{
			Label:               getEnvBool("LABEL_THUMBNAILS", false),
			SimilarityThreshold: similarity,
		},
		Log: LogConfig{
			Level: strings.ToLower(getEnv("LOG_LEVEL", "info")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the values a batch or browser launch would otherwise reject
// much later.
func (c *Config) Validate() error {
	if c.Batch.WaitSeconds < 0 || c.Batch.WaitSeconds > thumbnailer.MaxWaitSeconds {
		return fmt.Errorf("invalid WAIT_SECONDS: %w", thumbnailer.ErrInvalidWait)
	}
	if _, err := thumbnailer.NormalizeArchiveName(c.Batch.ArchiveName); err != nil {
		return fmt.Errorf("invalid ARCHIVE_NAME: %w", err)
	}
	switch c.Capture.Engine {
	case screener.EngineRod, screener.EngineChromedp:
	default:
		return fmt.Errorf("invalid BROWSER_ENGINE %q: must be %s or %s", c.Capture.Engine, screener.EngineRod, screener.EngineChromedp)
	}
	if c.Capture.CaptureWidth <= 0 || c.Capture.CaptureHeight <= 0 {
		return fmt.Errorf("invalid capture size %dx%d", c.Capture.CaptureWidth, c.Capture.CaptureHeight)
	}
	if c.Capture.Timeout <= 0 {
		return fmt.Errorf("CAPTURE_TIMEOUT must be at least one second")
	}
	if t := c.Runner.SimilarityThreshold; t < 0 || t > 100 {
		return fmt.Errorf("invalid SIMILARITY_THRESHOLD %d: must be between 0 and 100", t)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "silent":
	default:
		return fmt.Errorf("invalid LOG_LEVEL %q: must be debug, info or silent", c.Log.Level)
	}
	return nil
}

// ApplyLogLevel sets the global log level from LOG_LEVEL.
func (c *Config) ApplyLogLevel() {
	switch c.Log.Level {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "silent":
		log.SetLevel(log.FatalLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return parsed, nil
}
