package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Store    StoreConfig
	Auth     AuthConfig
	Diro     DiroConfig
	Widget   WidgetConfig
	Progress ProgressConfig
	Logger   LoggerConfig
}

type LoggerConfig struct {
	Level string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type StoreConfig struct {
	Driver string // memory or postgres
}

type AuthConfig struct {
	// WidgetTokenSecret verifies tokens minted by the embedding application.
	// Empty disables verification.
	WidgetTokenSecret string
}

type DiroConfig struct {
	APIURL          string
	SmartUploadURL  string
	APIKey          string
	AuthToken       string // raw token, without "Bearer "
	DefaultButtonID string
	WarnTrackID1    string
	WarnTrackID2    string
	Timeout         time.Duration
}

type WidgetConfig struct {
	AcceptedFileTypes []string
	MaxFileSizeMB     int
	DocumentType      string
	PeriodRange       string
	// IdleTTL is how long a widget without in-flight work stays hosted
	// after its last request.
	IdleTTL time.Duration
}

type ProgressConfig struct {
	ProcessingAfter time.Duration
	ValidatingAfter time.Duration
	MessageInterval time.Duration
}

func Load() (*Config, error) {
	// .env is optional; plain environment variables work for containers
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	var readTimeout, writeTimeout, diroTimeout, maxSize, idleTTL int
	var processingMs, validatingMs, messageMs int
	ints := []struct {
		key      string
		def, min int
		dst      *int
	}{
		{"SERVER_READ_TIMEOUT", 30, 1, &readTimeout},
		{"SERVER_WRITE_TIMEOUT", 30, 1, &writeTimeout},
		{"DIRO_TIMEOUT_SECONDS", 60, 1, &diroTimeout},
		{"WIDGET_MAX_FILE_SIZE_MB", 10, 1, &maxSize},
		{"WIDGET_IDLE_TTL_MINUTES", 30, 1, &idleTTL},
		{"PROGRESS_PROCESSING_AFTER_MS", 1000, 1, &processingMs},
		{"PROGRESS_VALIDATING_AFTER_MS", 2500, 1, &validatingMs},
		{"PROGRESS_MESSAGE_INTERVAL_MS", 1200, 100, &messageMs},
	}
	for _, v := range ints {
		n, err := getEnvInt(v.key, v.def, v.min)
		if err != nil {
			return nil, err
		}
		*v.dst = n
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "doc_verifier"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", "memory"),
		},
		Auth: AuthConfig{
			WidgetTokenSecret: getEnv("WIDGET_TOKEN_SECRET", ""),
		},
		Diro: DiroConfig{
			APIURL:          getEnv("DIRO_API_URL", ""),
			SmartUploadURL:  getEnv("DIRO_SMART_UPLOAD_URL", ""),
			APIKey:          getEnv("DIRO_API_KEY", ""),
			AuthToken:       getEnv("DIRO_AUTH_TOKEN", ""),
			DefaultButtonID: getEnv("DIRO_BUTTON_ID", ""),
			WarnTrackID1:    getEnv("DIRO_WARN_TRACK_ID_1", ""),
			WarnTrackID2:    getEnv("DIRO_WARN_TRACK_ID_2", ""),
			Timeout:         time.Duration(diroTimeout) * time.Second,
		},
		Widget: WidgetConfig{
			AcceptedFileTypes: splitList(getEnv("WIDGET_ACCEPTED_FILE_TYPES", ".pdf,.jpg,.jpeg,.png")),
			MaxFileSizeMB:     maxSize,
			DocumentType:      getEnv("WIDGET_DOCUMENT_TYPE", "bank statement"),
			PeriodRange:       getEnv("WIDGET_PERIOD_RANGE", "last 3 months"),
			IdleTTL:           time.Duration(idleTTL) * time.Minute,
		},
		Progress: ProgressConfig{
			ProcessingAfter: time.Duration(processingMs) * time.Millisecond,
			ValidatingAfter: time.Duration(validatingMs) * time.Millisecond,
			MessageInterval: time.Duration(messageMs) * time.Millisecond,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

// Warnings lists configuration gaps worth reporting at startup.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Diro.APIURL == "" {
		warnings = append(warnings, "missing DIRO_API_URL")
	}
	if c.Diro.SmartUploadURL == "" {
		warnings = append(warnings, "missing DIRO_SMART_UPLOAD_URL")
	}
	return warnings
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt reads an integer setting, falling back to defaultValue when unset.
// Unparsable values and values below minValue are errors.
func getEnvInt(key string, defaultValue, minValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if v < minValue {
		return 0, fmt.Errorf("invalid %s %d: must be at least %d", key, v, minValue)
	}
	return v, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, ".") {
			part = "." + part
		}
		out = append(out, part)
	}
	return out
}
