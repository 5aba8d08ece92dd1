package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "vpgate/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	Environment     string
	LogLevel        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	TrustedProxies  []string
}

// Verification configures handlers, policies and the orchestrator.
type Verification struct {
	Timeout              time.Duration
	BatchConcurrency     int
	ReaderAuthEnabled    bool
	HolderProofRequired  bool
	VerifyAllCredentials bool
	TrustedIssuers       []string
	MinAge               int
	ClockSkew            time.Duration
	StaticKeysFile       string
	RevocationsFile      string
	KeyCacheTTL          time.Duration
	RegoPolicyDir        string
	RegoQuery            string // empty selects the policy package default
	SchemaDir            string
}

// RedisConfig configures the optional revocation store.
// An empty URL selects the in-memory store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Config is the full process configuration.
type Config struct {
	Server       Server
	Verification Verification
	Redis        RedisConfig
}

// Defaults
var (
	DefaultAddr             = ":8080"
	DefaultVerifyTimeout    = 10 * time.Second
	DefaultRequestTimeout   = 30 * time.Second
	DefaultShutdownTimeout  = 15 * time.Second
	DefaultBatchConcurrency = 8
	DefaultMinAge           = 18
	DefaultClockSkew        = time.Minute
	DefaultKeyCacheTTL      = 5 * time.Minute
)

// FromEnv builds the config from environment variables so main stays lean.
// Unset variables take defaults; malformed values are an error.
func FromEnv() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	e := env{get: getenv}
	cfg := Config{
		Server: Server{
			Addr:            e.str("VPGATE_ADDR", DefaultAddr),
			Environment:     e.str("VPGATE_ENV", "development"),
			LogLevel:        e.str("LOG_LEVEL", "info"),
			RequestTimeout:  e.duration("REQUEST_TIMEOUT", DefaultRequestTimeout),
			ShutdownTimeout: e.duration("SHUTDOWN_TIMEOUT", DefaultShutdownTimeout),
			TrustedProxies:  pstrings.SplitList(getenv("TRUSTED_PROXIES")),
		},
		Verification: Verification{
			Timeout:              e.duration("VERIFY_TIMEOUT", DefaultVerifyTimeout),
			BatchConcurrency:     e.int("BATCH_CONCURRENCY", DefaultBatchConcurrency),
			ReaderAuthEnabled:    e.bool("READER_AUTH_ENABLED", false),
			HolderProofRequired:  e.bool("HOLDER_PROOF_REQUIRED", false),
			VerifyAllCredentials: e.bool("VERIFY_ALL_CREDENTIALS", false),
			TrustedIssuers:       pstrings.SplitList(getenv("TRUSTED_ISSUERS")),
			MinAge:               e.int("MIN_AGE", DefaultMinAge),
			ClockSkew:            e.duration("CLOCK_SKEW", DefaultClockSkew),
			StaticKeysFile:       getenv("STATIC_KEYS_FILE"),
			RevocationsFile:      getenv("REVOCATIONS_FILE"),
			KeyCacheTTL:          e.duration("KEY_CACHE_TTL", DefaultKeyCacheTTL),
			RegoPolicyDir:        getenv("REGO_POLICY_DIR"),
			RegoQuery:            getenv("REGO_QUERY"),
			SchemaDir:            getenv("SCHEMA_DIR"),
		},
		Redis: RedisConfig{
			URL:          getenv("REDIS_URL"),
			PoolSize:     e.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: e.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
	}
	if e.err != nil {
		return Config{}, e.err
	}
	if cfg.Verification.BatchConcurrency < 1 {
		return Config{}, fmt.Errorf("BATCH_CONCURRENCY must be positive, got %d", cfg.Verification.BatchConcurrency)
	}
	return cfg, nil
}

// env reads typed values and keeps the first parse error.
type env struct {
	get func(string) string
	err error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(e.get(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		e.fail(key, raw, err)
		return def
	}
	return d
}

func (e *env) int(key string, def int) int {
	raw := strings.TrimSpace(e.get(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		e.fail(key, raw, err)
		return def
	}
	return n
}

func (e *env) bool(key string, def bool) bool {
	raw := strings.TrimSpace(e.get(key))
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		e.fail(key, raw, err)
		return def
	}
	return b
}

func (e *env) fail(key, raw string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", key, raw, err)
	}
}
