package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables that override where reaper looks for its files.
const (
	EnvConfigPath = "REAPER_CONFIG_PATH"
	EnvHome       = "REAPER_HOME"
)

// Paths locates the config file and the base directory that holds the
// database, media and logs.
type Paths struct {
	ConfigFile string
	BaseDir    string
}

// ResolvePaths reads the locations from the environment. REAPER_CONFIG_PATH
// and REAPER_HOME win; otherwise the XDG config and data directories are
// used, falling back to ~/.config and ~/.local/share.
func ResolvePaths() (Paths, error) {
	return resolvePaths(os.Getenv, os.UserHomeDir)
}

func resolvePaths(getenv func(string) string, homeDir func() (string, error)) (Paths, error) {
	home := func() (string, error) {
		h, err := homeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return h, nil
	}

	var p Paths

	switch {
	case getenv(EnvConfigPath) != "":
		p.ConfigFile = getenv(EnvConfigPath)
	case getenv("XDG_CONFIG_HOME") != "":
		p.ConfigFile = filepath.Join(getenv("XDG_CONFIG_HOME"), "reaper.toml")
	default:
		h, err := home()
		if err != nil {
			return Paths{}, err
		}
		p.ConfigFile = filepath.Join(h, ".config", "reaper.toml")
	}

	switch {
	case getenv(EnvHome) != "":
		p.BaseDir = getenv(EnvHome)
	case getenv("XDG_DATA_HOME") != "":
		p.BaseDir = filepath.Join(getenv("XDG_DATA_HOME"), "reaper")
	default:
		h, err := home()
		if err != nil {
			return Paths{}, err
		}
		p.BaseDir = filepath.Join(h, ".local", "share", "reaper")
	}

	return p, nil
}
