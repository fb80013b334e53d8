package common

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/jivesoftware/ImageCapturer/constants"
)

const appDirName = "imagecapturer"

// Config holds all application configuration
type Config struct {
	Capture  CaptureConfig
	Decode   DecodeConfig
	Database DatabaseConfig
	Server   ServerConfig
	Log      LogConfig
}

// CaptureConfig holds scratch storage and chooser settings
type CaptureConfig struct {
	ScratchDir     string
	ChooserTitle   string
	ChooserCommand string
}

// DecodeConfig holds background decode settings
type DecodeConfig struct {
	Workers       int
	QueueSize     int
	Timeout       time.Duration
	MaxPixels     int64
	ViewportMin   int
	AutoOrient    bool
	HEICConverter string
}

// DatabaseConfig holds session store configuration
type DatabaseConfig struct {
	DSN         string
	DialTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string
}

// DefaultScratchDir is the well-known capture directory under the user cache root.
func DefaultScratchDir() string {
	return filepath.Join(xdg.CacheHome, appDirName, constants.CaptureDirName)
}

// DefaultDSN points at a sqlite file under the user data root.
func DefaultDSN() string {
	return "file:" + filepath.Join(xdg.DataHome, appDirName, "state.db") + "?_pragma=busy_timeout(5000)"
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Capture: CaptureConfig{
			ScratchDir:     getEnv("CAPTURE_DIR", DefaultScratchDir()),
			ChooserTitle:   getEnv("CHOOSER_TITLE", constants.DefaultChooserTitle),
			ChooserCommand: getEnv("CHOOSER_CMD", ""),
		},
		Decode: DecodeConfig{
			Workers:       getEnvAsInt("DECODE_WORKERS", 2),
			QueueSize:     getEnvAsInt("DECODE_QUEUE_SIZE", 16),
			Timeout:       getEnvAsDuration("DECODE_TIMEOUT", 2*time.Minute),
			MaxPixels:     getEnvAsInt64("DECODE_MAX_PIXELS", 64*1024*1024),
			ViewportMin:   getEnvAsInt("DECODE_VIEWPORT_MIN", 0),
			AutoOrient:    getEnvAsBool("DECODE_AUTO_ORIENT", true),
			HEICConverter: getEnv("HEIC_CONVERTER", ""),
		},
		Database: DatabaseConfig{
			DSN:         getEnv("DB_URL", DefaultDSN()),
			DialTimeout: getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Capture.ScratchDir) == "" {
		return NewAppError(CodeConfig, "CAPTURE_DIR is required", ErrInvalidInput)
	}
	if c.Decode.Workers < 1 {
		return NewAppError(CodeConfig, "DECODE_WORKERS must be at least 1", ErrInvalidInput)
	}
	if c.Decode.QueueSize < 1 {
		return NewAppError(CodeConfig, "DECODE_QUEUE_SIZE must be at least 1", ErrInvalidInput)
	}
	if c.Decode.MaxPixels < 0 || c.Decode.ViewportMin < 0 {
		return NewAppError(CodeConfig, "DECODE_MAX_PIXELS and DECODE_VIEWPORT_MIN must not be negative", ErrInvalidInput)
	}
	if c.Database.DSN == "" {
		return NewAppError(CodeConfig, "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError(CodeConfig, "GRPC_ADDR is required", ErrInvalidInput)
	}
	return nil
}
