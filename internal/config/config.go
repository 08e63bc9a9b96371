package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultFormID      = "64d9feda3a507"
	DefaultWindowDays  = 7
	DefaultPort        = "8080"
	DefaultCacheDir    = "cache"
	DefaultStoreDir    = "disk"
	DefaultCollection  = "collections"
	SessionModeHTTP    = "http"
	SessionModeBrowser = "browser"
)

// ErrMissing is wrapped once for every required variable that is unset.
var ErrMissing = errors.New("environment variable not set")

// Config holds the settings shared by every binday command.
type Config struct {
	UPRN       string
	SessionURL string
	APIURL     string
	Referer    string
	FormID     string

	Window      time.Duration
	SessionMode string
	ChromePath  string
	LogLevel    slog.Level
}

// LoadEnvFiles loads the given dotenv files into the process environment.
// Variables already set are left alone and missing files are ignored.
func LoadEnvFiles(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// Load reads the configuration from the environment. All missing required
// variables are reported in a single error.
func Load() (*Config, error) {
	var errs []error
	required := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			errs = append(errs, fmt.Errorf("%s: %w", key, ErrMissing))
		}
		return v
	}

	cfg := &Config{
		UPRN:        required("UPRN"),
		SessionURL:  required("SESSION_URL"),
		APIURL:      required("API_URL"),
		Referer:     required("REFERER"),
		FormID:      Getenv("FORM_ID", DefaultFormID),
		SessionMode: strings.ToLower(Getenv("SESSION_MODE", SessionModeHTTP)),
		ChromePath:  os.Getenv("CHROME_PATH"),
		Window:      DefaultWindowDays * 24 * time.Hour,
	}

	if v := os.Getenv("WINDOW_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 1 {
			errs = append(errs, fmt.Errorf("WINDOW_DAYS: invalid value %q", v))
		} else {
			cfg.Window = time.Duration(days) * 24 * time.Hour
		}
	}

	switch cfg.SessionMode {
	case SessionModeHTTP, SessionModeBrowser:
	default:
		errs = append(errs, fmt.Errorf("SESSION_MODE: unknown mode %q", cfg.SessionMode))
	}

	level, err := ParseLevel(Getenv("LOG_LEVEL", "info"))
	if err != nil {
		errs = append(errs, err)
	}
	cfg.LogLevel = level

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Getenv returns the value of key, or def when it is unset or empty.
func Getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ParseLevel maps a LOG_LEVEL value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}

// NewLogger returns a text logger on stderr at the configured level.
func (c *Config) NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.LogLevel}))
}
