// Package paths provides XDG-compliant path resolution for Relay.
//
// Resolution order:
// 1. RELAY_HOME (portable root) → $RELAY_HOME/{config,data,state}
// 2. XDG env vars → $XDG_*_HOME/relay
// 3. Platform defaults → ~/.config/relay, ~/.local/share/relay, ~/.local/state/relay
package paths

import (
	"os"
	"path/filepath"
)

// getConfigHome returns the base config home directory.
func getConfigHome() string {
	if relayHome := os.Getenv("RELAY_HOME"); relayHome != "" {
		return filepath.Join(relayHome, "config")
	}
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return xdgConfigHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config")
	}
	return ""
}

// getDataHome returns the base data home directory.
func getDataHome() string {
	if relayHome := os.Getenv("RELAY_HOME"); relayHome != "" {
		return filepath.Join(relayHome, "data")
	}
	if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		return xdgDataHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "share")
	}
	return ""
}

// getStateHome returns the base state home directory.
func getStateHome() string {
	if relayHome := os.Getenv("RELAY_HOME"); relayHome != "" {
		return filepath.Join(relayHome, "state")
	}
	if xdgStateHome := os.Getenv("XDG_STATE_HOME"); xdgStateHome != "" {
		return xdgStateHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "state")
	}
	return ""
}

// ConfigDir returns the Relay configuration directory.
func ConfigDir() string {
	base := getConfigHome()
	if base == "" {
		return ""
	}
	if os.Getenv("RELAY_HOME") != "" {
		return base
	}
	return filepath.Join(base, "relay")
}

// DataDir returns the Relay data directory (session database).
func DataDir() string {
	base := getDataHome()
	if base == "" {
		return ""
	}
	if os.Getenv("RELAY_HOME") != "" {
		return base
	}
	return filepath.Join(base, "relay")
}

// StateDir returns the Relay state directory (pidfile, logs).
func StateDir() string {
	base := getStateHome()
	if base == "" {
		return ""
	}
	if os.Getenv("RELAY_HOME") != "" {
		return base
	}
	return filepath.Join(base, "relay")
}

// ConfigFilePath returns the path to relay.yml.
func ConfigFilePath() string {
	return filepath.Join(ConfigDir(), "relay.yml")
}

// DatabasePath returns the default path of the session database.
func DatabasePath() string {
	return filepath.Join(DataDir(), "sessions.db")
}

// PidFilePath returns the path of the daemon pidfile.
func PidFilePath() string {
	return filepath.Join(StateDir(), "relayd.pid")
}

// LogDir returns the directory daemon log files are written to.
func LogDir() string {
	return filepath.Join(StateDir(), "logs")
}
