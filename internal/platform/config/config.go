package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration, read once at startup.
type Config struct {
	Server  Server
	Storage Storage
	Redis   RedisConfig
	Kafka   KafkaConfig
	Intake  Intake
	Relay   Relay
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
	Env  string
	// InboundToken, when set, must be presented as a bearer token on /v1/events.
	InboundToken string
}

// Storage selects the durable backends for residents and the request ledger.
type Storage struct {
	// ResidentBackend is one of "sqlite", "postgres" or "memory".
	ResidentBackend string
	SQLitePath      string
	// LedgerBackend is one of "file" or "postgres".
	LedgerBackend string
	LedgerPath    string
	DatabaseURL   string
}

// RedisConfig enables the Redis session store when URL is set.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables request lifecycle publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Intake holds the opaque constants the conversation core is built with.
type Intake struct {
	SecurityChatID    int64
	AllowedRequesters []int64
	AllowAll          bool
	CorrelationSecret string
	SecurityOperators []int64
	SecurityPhones    []string
	SessionIdleTTL    time.Duration
	SweepInterval     time.Duration
}

// Relay is the chat transport gateway outbound messages are posted to. An
// empty URL logs messages instead of sending them.
type Relay struct {
	URL              string
	Timeout          time.Duration
	FailureThreshold int
	Cooldown         time.Duration
}

// IsProduction reports whether the process runs with production defaults.
func (s Server) IsProduction() bool {
	return s.Env == "production"
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var errs []string
	intVar := func(key string, def int) int {
		v, err := getInt(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	durVar := func(key string, def time.Duration) time.Duration {
		v, err := getDuration(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}

	securityChat, err := getInt64("SECURITY_CHAT_ID", 0)
	if err != nil {
		errs = append(errs, err.Error())
	}
	allowed, err := getInt64List("ALLOWED_REQUESTERS")
	if err != nil {
		errs = append(errs, err.Error())
	}
	operators, err := getInt64List("SECURITY_OPERATORS")
	if err != nil {
		errs = append(errs, err.Error())
	}

	cfg := Config{
		Server: Server{
			Addr:         getEnv("GATEPASS_ADDR", ":8080"),
			Env:          getEnv("ENV", "development"),
			InboundToken: os.Getenv("INBOUND_TOKEN"),
		},
		Storage: Storage{
			ResidentBackend: getEnv("RESIDENT_BACKEND", "sqlite"),
			SQLitePath:      getEnv("SQLITE_PATH", "residents.db"),
			LedgerBackend:   getEnv("LEDGER_BACKEND", "file"),
			LedgerPath:      getEnv("LEDGER_PATH", "requests.csv"),
			DatabaseURL:     os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     intVar("REDIS_POOL_SIZE", 10),
			MinIdleConns: intVar("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  durVar("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  durVar("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: durVar("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: getList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "gatepass.pass-requests"),
		},
		Intake: Intake{
			SecurityChatID:    securityChat,
			AllowedRequesters: allowed,
			AllowAll:          os.Getenv("ACCESS_ALLOW_ALL") == "true",
			CorrelationSecret: os.Getenv("CORRELATION_SECRET"),
			SecurityOperators: operators,
			SecurityPhones:    getList("SECURITY_PHONES"),
			SessionIdleTTL:    durVar("SESSION_IDLE_TTL", 24*time.Hour),
			SweepInterval:     durVar("SESSION_SWEEP_INTERVAL", 10*time.Minute),
		},
		Relay: Relay{
			URL:              os.Getenv("RELAY_URL"),
			Timeout:          durVar("RELAY_TIMEOUT", 10*time.Second),
			FailureThreshold: intVar("RELAY_FAILURE_THRESHOLD", 5),
			Cooldown:         durVar("RELAY_COOLDOWN", 30*time.Second),
		},
	}

	if cfg.Intake.SecurityChatID == 0 {
		errs = append(errs, "SECURITY_CHAT_ID is required")
	}
	if cfg.Server.IsProduction() && cfg.Intake.CorrelationSecret == "" {
		errs = append(errs, "CORRELATION_SECRET is required in production")
	}
	switch cfg.Storage.ResidentBackend {
	case "sqlite", "memory":
	case "postgres":
		if cfg.Storage.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required for RESIDENT_BACKEND=postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown RESIDENT_BACKEND %q", cfg.Storage.ResidentBackend))
	}
	switch cfg.Storage.LedgerBackend {
	case "file":
	case "postgres":
		if cfg.Storage.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required for LEDGER_BACKEND=postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown LEDGER_BACKEND %q", cfg.Storage.LedgerBackend))
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s must be an integer", key)
	}
	return v, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback, fmt.Errorf("%s must be an integer", key)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s must be a duration", key)
	}
	return v, nil
}

// getList splits a comma-separated variable, dropping blanks and repeats.
func getList(key string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, item := range strings.Split(os.Getenv(key), ",") {
		item = strings.TrimSpace(item)
		if _, dup := seen[item]; item == "" || dup {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

func getInt64List(key string) ([]int64, error) {
	var out []int64
	for _, item := range getList(key) {
		v, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s contains non-integer %q", key, item)
		}
		out = append(out, v)
	}
	return out, nil
}
