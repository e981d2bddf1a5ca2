// Package config carries the two configuration layers of the custody
// service: process wiring loaded once from the environment, and the
// owner-mutable Custody settings (rates, sink, whitelist, toggles)
// that every lifecycle operation snapshots at its start.
package config

import "os"

// Config holds process wiring.
type Config struct {
	ListenAddr   string
	LogLevel     string
	Owner        string
	JWTSecret    string
	ProfileDir   string
	ProfileCode  string
	RedisAddr    string
	NATSURL      string
	OTLPEndpoint string
}

// Load reads process wiring from environment variables.
func Load() *Config {
	addr := os.Getenv("COFFER_LISTEN_ADDR")
	if addr == "" {
		addr = ":8086"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	profileDir := os.Getenv("COFFER_PROFILE_DIR")
	if profileDir == "" {
		profileDir = "profiles"
	}

	profileCode := os.Getenv("COFFER_PROFILE")
	if profileCode == "" {
		profileCode = "standard"
	}

	return &Config{
		ListenAddr:   addr,
		LogLevel:     logLevel,
		Owner:        os.Getenv("COFFER_OWNER"),
		JWTSecret:    os.Getenv("COFFER_JWT_SECRET"),
		ProfileDir:   profileDir,
		ProfileCode:  profileCode,
		RedisAddr:    os.Getenv("COFFER_REDIS_ADDR"),
		NATSURL:      os.Getenv("COFFER_NATS_URL"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
}
