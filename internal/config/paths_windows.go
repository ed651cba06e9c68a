package config

import (
	"os"
	"path/filepath"
)

func appDataDir() string {
	dir := os.Getenv("APPDATA")
	if dir == "" {
		return "projdeck-data"
	}
	return filepath.Join(dir, "projdeck")
}

func defaultDataDir() string {
	return appDataDir()
}

func defaultConfigDir() string {
	return appDataDir()
}
