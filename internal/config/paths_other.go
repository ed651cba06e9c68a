//go:build !darwin && !windows

package config

import (
	"os"
	"path/filepath"
)

func xdgDir(env string, fallback ...string) string {
	dir := os.Getenv(env)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(append([]string{home}, fallback...)...)
	}
	return filepath.Join(dir, "projdeck")
}

func defaultDataDir() string {
	if dir := xdgDir("XDG_DATA_HOME", ".local", "share"); dir != "" {
		return dir
	}
	return "projdeck-data"
}

func defaultConfigDir() string {
	if dir := xdgDir("XDG_CONFIG_HOME", ".config"); dir != "" {
		return dir
	}
	return "."
}
