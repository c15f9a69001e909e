package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Port            int
	APIBase         string
	AuthURL         string
	LoginURL        string
	StateDBPath     string
	GinMode         string
	TLSCertFile     string
	TLSKeyFile      string
	LogLevel        string
	LogJSON         bool
	AnalysisTimeout time.Duration
	LoginTimeout    time.Duration
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

func LoadConfig() (Config, error) {
	return LoadConfigFromEnv(osEnv{})
}

func LoadConfigFromEnv(env Env) (Config, error) {
	cfg := Config{
		Port:            8750,
		APIBase:         "https://www.q-sci.org/api",
		GinMode:         "release",
		LogLevel:        "info",
		AnalysisTimeout: 30 * time.Second,
		LoginTimeout:    5 * time.Minute,
	}

	if raw := env.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT")
		}
		cfg.Port = port
	}

	if raw := env.Getenv("QSCI_API_BASE"); raw != "" {
		cfg.APIBase = raw
	}

	cfg.AuthURL = env.Getenv("QSCI_AUTH_URL")
	if cfg.AuthURL == "" {
		cfg.AuthURL = fmt.Sprintf("http://127.0.0.1:%d/auth", cfg.Port)
	}

	cfg.LoginURL = env.Getenv("QSCI_LOGIN_URL")
	if cfg.LoginURL == "" {
		cfg.LoginURL = "https://www.q-sci.org/extension-login"
	}

	cfg.StateDBPath = env.Getenv("STATE_DB_PATH")
	if cfg.StateDBPath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return Config{}, fmt.Errorf("STATE_DB_PATH is required: %w", err)
		}
		cfg.StateDBPath = filepath.Join(dir, "qsci", "state.db")
	}

	if raw := env.Getenv("GIN_MODE"); raw != "" {
		cfg.GinMode = raw
	}

	cfg.TLSCertFile = env.Getenv("TLS_CERT_FILE")
	cfg.TLSKeyFile = env.Getenv("TLS_KEY_FILE")

	if raw := env.Getenv("LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	cfg.LogJSON = env.Getenv("LOG_JSON") == "1"

	if raw := env.Getenv("ANALYSIS_TIMEOUT_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid ANALYSIS_TIMEOUT_SECONDS")
		}
		cfg.AnalysisTimeout = time.Duration(seconds) * time.Second
	}

	if raw := env.Getenv("LOGIN_TIMEOUT_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid LOGIN_TIMEOUT_SECONDS")
		}
		cfg.LoginTimeout = time.Duration(seconds) * time.Second
	}

	return cfg, nil
}
