package config

import (
	"testing"
	"time"
)

func clearSessionEnv(t *testing.T) {
	for _, key := range []string{
		"FIX_SESSION_ID", "FIX_BEGIN_STRING", "FIX_SENDER_COMP_ID", "FIX_TARGET_COMP_ID",
		"FIX_ACCEPTOR", "FIX_HEARTBEAT_INTERVAL", "FIX_RESET_ON_LOGON",
		"FIX_SENDING_TIME_TOLERANCE", "FIX_MAX_MESSAGE_SIZE", "FIX_STORE_BACKEND",
		"FIX_STORE_DIR", "FIX_STORE_REDIS_ADDR", "FIX_STORE_POSTGRES_DSN",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadSessionDefaults(t *testing.T) {
	clearSessionEnv(t)
	t.Setenv("FIX_SENDER_COMP_ID", "SNDR")
	t.Setenv("FIX_TARGET_COMP_ID", "TRGT")

	cfg, err := LoadSession()
	if err != nil {
		t.Fatalf("LoadSession() error = %v", err)
	}
	if cfg.BeginString != "FIX.4.4" {
		t.Errorf("BeginString = %q, want FIX.4.4", cfg.BeginString)
	}
	if cfg.HeartBtInt != 30 {
		t.Errorf("HeartBtInt = %d, want 30", cfg.HeartBtInt)
	}
	if cfg.SendingTimeTolerance != 120*time.Second {
		t.Errorf("SendingTimeTolerance = %v, want 120s", cfg.SendingTimeTolerance)
	}
	if cfg.MaxMessageSize != 1024*1024 {
		t.Errorf("MaxMessageSize = %d, want 1MiB", cfg.MaxMessageSize)
	}
	if cfg.StoreBackend != StoreBackendFile {
		t.Errorf("StoreBackend = %q, want file", cfg.StoreBackend)
	}
}

func TestLoadSessionRequiresCompIDs(t *testing.T) {
	clearSessionEnv(t)
	if _, err := LoadSession(); err == nil {
		t.Fatal("expected an error when SenderCompID/TargetCompID are unset")
	}
}

func TestLoadSessionRejectsPostgresWithoutDSN(t *testing.T) {
	clearSessionEnv(t)
	t.Setenv("FIX_SENDER_COMP_ID", "SNDR")
	t.Setenv("FIX_TARGET_COMP_ID", "TRGT")
	t.Setenv("FIX_STORE_BACKEND", "postgres")

	if _, err := LoadSession(); err == nil {
		t.Fatal("expected an error when postgres backend is selected without a DSN")
	}
}

func TestLoadSessionAcceptsDurationOrSeconds(t *testing.T) {
	clearSessionEnv(t)
	t.Setenv("FIX_SENDER_COMP_ID", "SNDR")
	t.Setenv("FIX_TARGET_COMP_ID", "TRGT")
	t.Setenv("FIX_SENDING_TIME_TOLERANCE", "45")

	cfg, err := LoadSession()
	if err != nil {
		t.Fatalf("LoadSession() error = %v", err)
	}
	if cfg.SendingTimeTolerance != 45*time.Second {
		t.Errorf("SendingTimeTolerance = %v, want 45s", cfg.SendingTimeTolerance)
	}
}

func TestLoadEngineDefaults(t *testing.T) {
	t.Setenv("FIX_ENVIRONMENT", "")
	t.Setenv("FIX_CREDENTIAL_MASTER_PASSWORD", "")

	cfg, err := LoadEngine()
	if err != nil {
		t.Fatalf("LoadEngine() error = %v", err)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %q, want development", cfg.Environment)
	}
}

func TestLoadEngineRequiresMasterPasswordInProduction(t *testing.T) {
	t.Setenv("FIX_ENVIRONMENT", "production")
	t.Setenv("FIX_CREDENTIAL_MASTER_PASSWORD", "")

	if _, err := LoadEngine(); err == nil {
		t.Fatal("expected an error when production is missing a master password")
	}
}
