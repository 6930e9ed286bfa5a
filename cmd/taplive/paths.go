package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths holds all resolved taplive state file paths.
// Use ResolvePaths() to populate this struct with defaults + env overrides.
type Paths struct {
	Home     string // ~/.taplive or TAPLIVE_HOME
	DBPath   string // history.db or TAPLIVE_DB_PATH
	DebugLog string // debug.log, written when TAPLIVE_DEBUG is set
}

// ResolvePaths returns all taplive paths, respecting env var overrides.
// Environment variables:
//   - TAPLIVE_HOME: base directory for all taplive state (default: ~/.taplive)
//   - TAPLIVE_DB_PATH: run history database (default: $TAPLIVE_HOME/history.db)
func ResolvePaths() (*Paths, error) {
	home, err := resolveHome()
	if err != nil {
		return nil, err
	}
	return &Paths{
		Home:     home,
		DBPath:   resolvePathWithEnv("TAPLIVE_DB_PATH", home, "history.db"),
		DebugLog: filepath.Join(home, "debug.log"),
	}, nil
}

// resolveHome returns the taplive home directory from TAPLIVE_HOME or ~/.taplive.
func resolveHome() (string, error) {
	if v := os.Getenv("TAPLIVE_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".taplive"), nil
}

// resolvePathWithEnv returns the path from envKey if set, otherwise joins base + suffix.
func resolvePathWithEnv(envKey, base, suffix string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return filepath.Join(base, suffix)
}
