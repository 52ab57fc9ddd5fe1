package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - MODQ_CONFIG_PATH: config file location (default: ~/.config/modq.toml)
//   - MODQ_HOME: base directory for modq data (default: ~/.local/share/modq)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking MODQ_CONFIG_PATH env var first,
// then falling back to the default ~/.config/modq.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("MODQ_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "modq.toml"), nil
}

// getBaseDir returns the base directory for modq data, checking MODQ_HOME env var first,
// then falling back to the XDG default ~/.local/share/modq.
func getBaseDir() (string, error) {
	if path := os.Getenv("MODQ_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "modq"), nil
}
