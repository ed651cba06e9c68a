package config

import (
	"fmt"
	"slices"

	"github.com/kalambet/projdeck/internal/storage"
)

type Config struct {
	Storage StorageConfig
	Server  ServerConfig
	Editor  EditorConfig
	Log     LogConfig
}

type StorageConfig struct {
	DataDir string
	Backend string
}

type ServerConfig struct {
	Port     int
	MaxConns int
	// Token is the bearer token for the HTTP API. Empty means one is generated per run.
	Token string
}

type EditorConfig struct {
	// Command overrides editor detection, e.g. "code --new-window".
	Command string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
			Backend: storage.BackendSQLite,
		},
		Server: ServerConfig{
			Port:     4710,
			MaxConns: 16,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the TOML config file, then applies
// environment variable (PROJDECK_*) overrides.
//
// The file lives at FilePath(). A missing file is not an error; every key
// falls back to its default. The API token is only read from
// PROJDECK_API_TOKEN and is never written to the file.
func Load() (Config, error) {
	return loadWith(newFileBackend(FilePath()))
}

func loadFromPath(path string) (Config, error) {
	return loadWith(newFileBackend(path))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if !slices.Contains(backends, cfg.Storage.Backend) {
		return fmt.Errorf("invalid storage.backend %q: want one of %v", cfg.Storage.Backend, backends)
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be 1-65535", cfg.Server.Port)
	}
	if cfg.Server.MaxConns < 1 {
		return fmt.Errorf("invalid server.max_conns %d: must be positive", cfg.Server.MaxConns)
	}
	if cfg.Storage.DataDir == "" {
		return fmt.Errorf("missing required config: storage.data_dir")
	}
	return nil
}

var backends = []string{storage.BackendSQLite, storage.BackendJSON}
