package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// Values are loaded by Viper from a config file and/or environment variables.
type Config struct {
	DownloadRootDir    string `mapstructure:"DOWNLOAD_ROOT_DIR"`
	DatabasePath       string `mapstructure:"-"` // Not from env, derived
	UserAgent          string `mapstructure:"USERAGENT"`
	DisplayLanguages   string `mapstructure:"DISPLAY_LANGUAGES"`
	HTTPTimeoutSeconds int    `mapstructure:"HTTP_TIMEOUT_SECONDS"`
	MaxDownloadRetries int    `mapstructure:"MAX_DOWNLOAD_RETRIES"`
	SyncInterval       string `mapstructure:"SYNC_INTERVAL"`
}

// HTTPTimeout returns the network timeout as a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// Languages returns the configured display languages as an ordered list of tags.
func (c Config) Languages() []string {
	parts := strings.Split(c.DisplayLanguages, ",")
	languages := make([]string, 0, len(parts))
	for _, part := range parts {
		if tag := strings.TrimSpace(part); tag != "" {
			languages = append(languages, tag)
		}
	}
	return languages
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)   // Path to look for the config file in
	viper.SetConfigName(".env") // Name of config file (without extension)
	viper.SetConfigType("env")  // REQUIRED if the config file does not have the extension in the name

	vip_err := viper.ReadInConfig()
	if _, ok := vip_err.(viper.ConfigFileNotFoundError); ok {
		slog.Info("Config file (.env) not found, relying on environment variables.")
	} else if vip_err != nil {
		return Config{}, fmt.Errorf("fatal error config file: %w", vip_err)
	}

	// Bind environment variables automatically.
	// Viper will check for an environment variable matching the key name (e.g., DOWNLOAD_ROOT_DIR)
	viper.AutomaticEnv()

	for _, key := range []string{
		"DOWNLOAD_ROOT_DIR",
		"USERAGENT",
		"DISPLAY_LANGUAGES",
		"HTTP_TIMEOUT_SECONDS",
		"MAX_DOWNLOAD_RETRIES",
		"SYNC_INTERVAL",
	} {
		if bindErr := viper.BindEnv(strings.ToLower(key), key); bindErr != nil {
			slog.Warn("Unable to bind env var", "key", key, "error", bindErr)
		}
	}

	// Unmarshal the config
	vip_err = viper.Unmarshal(&config)
	if vip_err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct, %w", vip_err)
	}

	processConfigDefaults(&config)

	if err := validateAndEnsureDirectories(&config); err != nil {
		return Config{}, err
	}

	return config, nil
}

// processConfigDefaults fills in defaults for values not provided by the
// config file or the environment.
func processConfigDefaults(config *Config) {
	if config.UserAgent == "" {
		config.UserAgent = "dlsite-manager/dev (unknown-user)"
		slog.Warn("USERAGENT not set in config or environment, using default.")
	}
	if config.DisplayLanguages == "" {
		// Preferred display order for localized titles and group names.
		config.DisplayLanguages = "ja,en,ko,zh-tw,zh-cn"
	}
	if config.HTTPTimeoutSeconds <= 0 {
		config.HTTPTimeoutSeconds = 30
	}
	if config.MaxDownloadRetries <= 0 {
		config.MaxDownloadRetries = 3
	}
	if config.SyncInterval == "" {
		config.SyncInterval = "@every 30m"
	}
}

// validateAndEnsureDirectories checks required paths and creates the download
// tree if it does not exist yet.
func validateAndEnsureDirectories(config *Config) error {
	if config.DownloadRootDir == "" {
		slog.Error("DOWNLOAD_ROOT_DIR is not set")
		return fmt.Errorf("DOWNLOAD_ROOT_DIR is required")
	}

	if _, err := os.Stat(config.DownloadRootDir); os.IsNotExist(err) {
		slog.Info("Download root directory does not exist, creating it", "path", config.DownloadRootDir)
		if err := os.MkdirAll(config.DownloadRootDir, 0755); err != nil {
			slog.Error("Failed to create download root directory", "path", config.DownloadRootDir, "error", err)
			return err
		}
	} else if err != nil {
		slog.Error("Failed to check download root directory", "path", config.DownloadRootDir, "error", err)
		return err
	}

	// Derive DatabasePath (place it next to the downloads for portability)
	config.DatabasePath = filepath.Join(config.DownloadRootDir, "catalog.db")

	return nil
}
