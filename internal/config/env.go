package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Environment variables that override file settings.
const (
	EnvAddr       = "PRINTMETER_ADDR"
	EnvStorePath  = "PRINTMETER_DB"
	EnvLogLevel   = "PRINTMETER_LOG_LEVEL"
	EnvStatesFile = "PRINTMETER_STATES_FILE"
)

// LoadDotEnv loads the first .env file found in the working directory or the
// config directory. Variables already set in the environment win.
func LoadDotEnv() {
	for _, path := range envPaths() {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func envPaths() []string {
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}
	paths = append(paths, filepath.Join(Dir(), ".env"))
	return paths
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvAddr); v != "" {
		cfg.Daemon.Addr = v
	}
	if v := os.Getenv(EnvStorePath); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.General.LogLevel = v
	}
	if v := os.Getenv(EnvStatesFile); v != "" {
		cfg.General.StatesFile = v
	}
}
