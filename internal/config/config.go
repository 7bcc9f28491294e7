// Package config loads session and engine configuration from the
// environment, following the same getEnvOrDefault idiom the rest of the
// pack uses for its gateway and backend processes.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// StoreBackend selects which MessageStore implementation a session runs
// against.
type StoreBackend string

const (
	StoreBackendFile     StoreBackend = "file"
	StoreBackendRedis    StoreBackend = "redis"
	StoreBackendPostgres StoreBackend = "postgres"
)

// SessionConfig holds everything one FIX session needs to run: identity,
// timing, and which store backend persists its sequence log.
type SessionConfig struct {
	SessionID   string
	BeginString string
	Sender      string
	Target      string
	Acceptor    bool

	HeartBtInt           int
	ResetOnLogon         bool
	SendingTimeTolerance time.Duration
	MaxMessageSize       int

	StoreBackend     StoreBackend
	StoreDirectory   string
	StoreRedisDSN    string
	StorePostgresDSN string
}

// EngineConfig holds the process-wide settings shared by every session the
// engine runs: credential storage, metrics, audit logging.
type EngineConfig struct {
	Environment string

	CredentialStorePath  string
	CredentialMasterPass string

	AuditLogDirectory string

	MetricsAddr string
}

// LoadSession reads a SessionConfig from the environment, optionally loading a
// .env file first (ignored if absent, matching the teacher's Load()).
func LoadSession() (SessionConfig, error) {
	_ = godotenv.Load()

	cfg := SessionConfig{
		SessionID:   getEnvOrDefault("FIX_SESSION_ID", "default"),
		BeginString: getEnvOrDefault("FIX_BEGIN_STRING", "FIX.4.4"),
		Sender:      getEnvOrDefault("FIX_SENDER_COMP_ID", ""),
		Target:      getEnvOrDefault("FIX_TARGET_COMP_ID", ""),
		Acceptor:    getEnvOrDefault("FIX_ACCEPTOR", "false") == "true",

		HeartBtInt:           getEnvIntOrDefault("FIX_HEARTBEAT_INTERVAL", 30),
		ResetOnLogon:         getEnvOrDefault("FIX_RESET_ON_LOGON", "false") == "true",
		SendingTimeTolerance: getEnvDurationOrDefault("FIX_SENDING_TIME_TOLERANCE", 120*time.Second),
		MaxMessageSize:       getEnvIntOrDefault("FIX_MAX_MESSAGE_SIZE", 1024*1024),

		StoreBackend:     StoreBackend(getEnvOrDefault("FIX_STORE_BACKEND", string(StoreBackendFile))),
		StoreDirectory:   getEnvOrDefault("FIX_STORE_DIR", "./data/fix_store"),
		StoreRedisDSN:    getEnvOrDefault("FIX_STORE_REDIS_ADDR", "localhost:6379"),
		StorePostgresDSN: getEnvOrDefault("FIX_STORE_POSTGRES_DSN", ""),
	}

	if err := cfg.Validate(); err != nil {
		return SessionConfig{}, err
	}
	return cfg, nil
}

// Validate checks the fields Transition and the store layer cannot run
// without.
func (c SessionConfig) Validate() error {
	if c.Sender == "" {
		return fmt.Errorf("config: FIX_SENDER_COMP_ID is required")
	}
	if c.Target == "" {
		return fmt.Errorf("config: FIX_TARGET_COMP_ID is required")
	}
	if c.HeartBtInt <= 0 {
		return fmt.Errorf("config: FIX_HEARTBEAT_INTERVAL must be positive, got %d", c.HeartBtInt)
	}
	switch c.StoreBackend {
	case StoreBackendFile, StoreBackendRedis, StoreBackendPostgres:
	default:
		return fmt.Errorf("config: unknown FIX_STORE_BACKEND %q", c.StoreBackend)
	}
	if c.StoreBackend == StoreBackendPostgres && c.StorePostgresDSN == "" {
		return fmt.Errorf("config: FIX_STORE_POSTGRES_DSN is required when FIX_STORE_BACKEND=postgres")
	}
	return nil
}

// LoadEngine reads process-wide EngineConfig from the environment.
func LoadEngine() (EngineConfig, error) {
	_ = godotenv.Load()

	cfg := EngineConfig{
		Environment:          getEnvOrDefault("FIX_ENVIRONMENT", "development"),
		CredentialStorePath:  getEnvOrDefault("FIX_CREDENTIAL_STORE_PATH", "./data/fix_credentials"),
		CredentialMasterPass: getEnvOrDefault("FIX_CREDENTIAL_MASTER_PASSWORD", ""),
		AuditLogDirectory:    getEnvOrDefault("FIX_AUDIT_LOG_DIR", "./data/fix_audit"),
		MetricsAddr:          getEnvOrDefault("FIX_METRICS_ADDR", ":9090"),
	}

	if cfg.Environment == "production" && cfg.CredentialMasterPass == "" {
		return EngineConfig{}, fmt.Errorf("config: FIX_CREDENTIAL_MASTER_PASSWORD is required in production")
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
