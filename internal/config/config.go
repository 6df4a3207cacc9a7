package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-level settings read from the environment.
type Config struct {
	Env            string
	Addr           string
	DBPath         string
	StaticDir      string
	RemoteDSN      string // empty runs local-only
	RemoteMigrate  bool
	AllowedOrigins []string
	RosterCSV      string // seed roster imported when the local roster is empty
	CalendarPath   string // optional TOML term file
	CSRFKey        []byte // nil generates a per-process key
	SlowQuery      time.Duration
	SlowRemote     time.Duration
	SlowRequest    time.Duration
	RateLimit      int
}

// IsProduction reports whether CHAMBER_ENV is "production".
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads an optional .env file and then the CHAMBER_* variables.
// Variables already set in the process environment win over .env values.
// PRE: none
// POST: Returns a populated Config, or an error for malformed values
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
		slog.Info("env_file_loaded", "path", f)
	}

	cfg := Config{
		Env:          envOrDefault("CHAMBER_ENV", "development"),
		Addr:         envOrDefault("CHAMBER_ADDR", ":8080"),
		DBPath:       envOrDefault("CHAMBER_DB_PATH", "chamber.db"),
		StaticDir:    envOrDefault("CHAMBER_STATIC_DIR", "static"),
		RemoteDSN:    os.Getenv("CHAMBER_REMOTE_DSN"),
		RosterCSV:    os.Getenv("CHAMBER_ROSTER_CSV"),
		CalendarPath: os.Getenv("CHAMBER_CALENDAR"),
	}

	var err error
	if cfg.RemoteMigrate, err = envBool("CHAMBER_REMOTE_MIGRATE", false); err != nil {
		return Config{}, err
	}
	if cfg.SlowQuery, err = envDuration("CHAMBER_SLOW_QUERY", 50*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.SlowRemote, err = envDuration("CHAMBER_SLOW_REMOTE", 200*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.SlowRequest, err = envDuration("CHAMBER_SLOW_REQUEST", 200*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.RateLimit, err = envInt("CHAMBER_RATE_LIMIT", 20); err != nil {
		return Config{}, err
	}

	for _, o := range strings.Split(os.Getenv("CHAMBER_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	if keyHex := os.Getenv("CHAMBER_CSRF_KEY"); keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil || len(key) != 32 {
			return Config{}, errors.New("CHAMBER_CSRF_KEY must be 64 hex characters (32 bytes)")
		}
		cfg.CSRFKey = key
	} else if cfg.IsProduction() {
		return Config{}, errors.New("CHAMBER_CSRF_KEY is required in production")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
