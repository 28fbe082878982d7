// Package config loads runtime settings from .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string

	SupabaseURL            string
	SupabaseAnonKey        string
	SupabaseServiceRoleKey string

	StorageEndpoint      string
	StorageRegion        string
	StorageAccessKeyID   string
	StorageSecretKey     string
	StoragePublicBaseURL string
	EvidenceBucket       string
	AvatarBucket         string

	Port           string
	AllowedOrigins []string
	PatentsFile    string
	// MetricsToken guards /metrics when set.
	MetricsToken string

	OrphanSweepInterval time.Duration
	OrphanGracePeriod   time.Duration
	FeedPollInterval    time.Duration

	LogLevel  string
	LogFormat string

	// EnvFileLoaded is false when no .env was found.
	EnvFileLoaded bool
}

// Requirement selects which variables must be present.
type Requirement int

const (
	// NeedDatabase is enough for migrate and patents.
	NeedDatabase Requirement = iota
	// NeedStorage adds object storage, for sweep.
	NeedStorage
	// NeedServer is everything serve needs.
	NeedServer
)

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	loaded := godotenv.Load() == nil
	cfg, err := FromEnv(os.Getenv)
	if err != nil {
		return nil, err
	}
	cfg.EnvFileLoaded = loaded
	return cfg, nil
}

// FromEnv builds a Config using getenv, applying defaults.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		DatabaseURL:            get("DATABASE_URL", ""),
		SupabaseURL:            strings.TrimRight(get("SUPABASE_URL", ""), "/"),
		SupabaseAnonKey:        get("SUPABASE_ANON_KEY", ""),
		SupabaseServiceRoleKey: get("SUPABASE_SERVICE_ROLE_KEY", ""),
		StorageEndpoint:        get("STORAGE_ENDPOINT", ""),
		StorageRegion:          get("STORAGE_REGION", "auto"),
		StorageAccessKeyID:     get("STORAGE_ACCESS_KEY_ID", ""),
		StorageSecretKey:       get("STORAGE_SECRET_ACCESS_KEY", ""),
		StoragePublicBaseURL:   strings.TrimRight(get("STORAGE_PUBLIC_BASE_URL", ""), "/"),
		EvidenceBucket:         get("EVIDENCE_BUCKET", "mission_proofs"),
		AvatarBucket:           get("AVATAR_BUCKET", "avatars"),
		Port:                   get("PORT", "5200"),
		AllowedOrigins:         splitList(get("ALLOWED_ORIGINS", "http://localhost:3000")),
		PatentsFile:            get("PATENTS_FILE", ""),
		MetricsToken:           get("METRICS_TOKEN", ""),
		LogLevel:               get("LOG_LEVEL", "info"),
		LogFormat:              get("LOG_FORMAT", "json"),
	}

	if cfg.StoragePublicBaseURL == "" && cfg.SupabaseURL != "" {
		cfg.StoragePublicBaseURL = cfg.SupabaseURL + "/storage/v1/object/public"
	}
	if cfg.StorageEndpoint == "" && cfg.SupabaseURL != "" {
		cfg.StorageEndpoint = cfg.SupabaseURL + "/storage/v1/s3"
	}

	var errs []error
	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"ORPHAN_SWEEP_INTERVAL", time.Hour, &cfg.OrphanSweepInterval},
		{"ORPHAN_GRACE_PERIOD", 24 * time.Hour, &cfg.OrphanGracePeriod},
		{"FEED_POLL_INTERVAL", 2 * time.Second, &cfg.FeedPollInterval},
	}
	for _, d := range durations {
		v, err := parseDuration(getenv(d.key), d.def)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.key, err))
		}
		*d.dst = v
	}
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		errs = append(errs, fmt.Errorf("PORT: %q is not a number", cfg.Port))
	}
	switch cfg.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT: want json or console, got %q", cfg.LogFormat))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate reports every variable missing for r in one error.
func (c *Config) Validate(r Requirement) error {
	required := []struct {
		key, val string
		need     Requirement
	}{
		{"DATABASE_URL", c.DatabaseURL, NeedDatabase},
		{"STORAGE_ACCESS_KEY_ID", c.StorageAccessKeyID, NeedStorage},
		{"STORAGE_SECRET_ACCESS_KEY", c.StorageSecretKey, NeedStorage},
		{"STORAGE_ENDPOINT", c.StorageEndpoint, NeedStorage},
		{"SUPABASE_URL", c.SupabaseURL, NeedServer},
		{"SUPABASE_ANON_KEY", c.SupabaseAnonKey, NeedServer},
		{"SUPABASE_SERVICE_ROLE_KEY", c.SupabaseServiceRoleKey, NeedServer},
	}

	var missing []string
	for _, v := range required {
		if v.need <= r && v.val == "" {
			missing = append(missing, v.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) ListenAddr() string { return ":" + c.Port }

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseDuration(raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def, err
	}
	if d <= 0 {
		return def, fmt.Errorf("must be positive, got %s", raw)
	}
	return d, nil
}
