package client

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

type ConfigFile struct {
	ServerURL  string `yaml:"server_url,omitempty"`
	Timeout    int    `yaml:"timeout,omitempty"`
	Limit      int    `yaml:"limit,omitempty"`
	JSON       bool   `yaml:"json,omitempty"`
	Plain      bool   `yaml:"plain,omitempty"`
	NoColor    bool   `yaml:"no_color,omitempty"`
	NoProgress bool   `yaml:"no_progress,omitempty"`
}

func getConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "ispcheck", "config.yaml")
}

// loadConfigFile returns nil without error when no config file exists.
func loadConfigFile() (*ConfigFile, error) {
	configPath := getConfigPath()
	if configPath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := validateConfigFile(&config); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}
	return &config, nil
}

func validateConfigFile(config *ConfigFile) error {
	if config.Timeout < 0 || config.Timeout > 600 {
		return fmt.Errorf("invalid timeout: %d (must be 1-600 seconds)", config.Timeout)
	}
	if config.Limit < 0 || config.Limit > 100 {
		return fmt.Errorf("invalid limit: %d (must be 1-100)", config.Limit)
	}
	if config.JSON && config.Plain {
		return fmt.Errorf("json and plain cannot both be set")
	}
	return nil
}

// mergeConfig layers defaults, the config file, environment and flags, in
// increasing precedence.
func mergeConfig(flagConfig *Config, configFile *ConfigFile, flagsSet map[string]bool, stderr io.Writer) *Config {
	result := &Config{
		Mode:      flagConfig.Mode,
		ISP:       flagConfig.ISP,
		ServerURL: defaultServerURL,
		Timeout:   defaultTimeout,
		Limit:     defaultLimit,
	}

	if configFile != nil {
		if configFile.ServerURL != "" {
			result.ServerURL = configFile.ServerURL
		}
		if configFile.Timeout > 0 {
			result.Timeout = configFile.Timeout
		}
		if configFile.Limit > 0 {
			result.Limit = configFile.Limit
		}
		result.JSON = configFile.JSON
		result.Plain = configFile.Plain
		result.NoColor = configFile.NoColor
		result.NoProgress = configFile.NoProgress
	}

	if val := os.Getenv("ISPCHECK_SERVER_URL"); val != "" {
		result.ServerURL = val
	}
	if val := os.Getenv("ISPCHECK_TIMEOUT"); val != "" {
		if t, err := strconv.Atoi(val); err == nil {
			result.Timeout = t
		} else {
			fmt.Fprintf(stderr, "ispcheck client: warning: invalid ISPCHECK_TIMEOUT value '%s' (must be integer), ignoring\n", val)
		}
	}
	if os.Getenv("NO_COLOR") != "" {
		result.NoColor = true
	}

	if flagsSet["server-url"] && flagConfig.ServerURL != "" {
		result.ServerURL = flagConfig.ServerURL
	}
	if flagsSet["timeout"] {
		result.Timeout = flagConfig.Timeout
	}
	if flagsSet["limit"] {
		result.Limit = flagConfig.Limit
	}
	if flagsSet["json"] {
		result.JSON = flagConfig.JSON
		if result.JSON && !flagsSet["plain"] {
			result.Plain = false
		}
	}
	if flagsSet["plain"] {
		result.Plain = flagConfig.Plain
		if result.Plain && !flagsSet["json"] {
			result.JSON = false
		}
	}
	if flagsSet["no-color"] {
		result.NoColor = flagConfig.NoColor
	}
	if flagsSet["no-progress"] {
		result.NoProgress = flagConfig.NoProgress
	}
	if flagsSet["quiet"] {
		result.Quiet = flagConfig.Quiet
	}

	return result
}
