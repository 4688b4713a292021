package config

import (
	"path/filepath"
	"strings"
)

const (
	// ConfigFilePath is the config file name under WIREMUX_HOME.
	ConfigFilePath = "config.toml"

	// WSPath is the HTTP path WebSocket peers upgrade on.
	WSPath = "/ws"
)

func homeConfigPath(home string) string {
	return filepath.Join(home, ConfigFilePath)
}

func defaultHomePath(home string) string {
	return filepath.Join(home, ".wiremux")
}

// ConfigPath returns the absolute path of the user config file.
func (c *Config) ConfigPath() string {
	return homeConfigPath(c.HomeDir)
}

// Endpoint returns the dialable server endpoint for the chat transport: the
// bare address for TCP, a ws:// URL for WebSocket unless one was given
// directly.
func (c ChatConfig) Endpoint() string {
	if c.Transport != TransportWS || strings.Contains(c.Server, "://") {
		return c.Server
	}
	return "ws://" + c.Server + WSPath
}
