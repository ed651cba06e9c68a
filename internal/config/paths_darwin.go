package config

import (
	"os"
	"path/filepath"
)

func appSupportDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "projdeck-data"
	}
	return filepath.Join(home, "Library", "Application Support", "projdeck")
}

func defaultDataDir() string {
	return appSupportDir()
}

func defaultConfigDir() string {
	return appSupportDir()
}
