// Package config provides configuration for the ingestion pipeline.
// Configuration is environment-first with documented defaults; an optional
// YAML file with ${VAR} substitution can override the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config is the full pipeline configuration.
type Config struct {
	SFTP  SFTPConfig  `yaml:"sftp"`
	DB    DBConfig    `yaml:"db"`
	Dirs  DirConfig   `yaml:"dirs"`
	Retry RetryConfig `yaml:"retry"`

	// LogLevel sets logging verbosity (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
}

// SFTPConfig holds the remote file-transfer endpoint settings.
type SFTPConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	RemoteFolder string `yaml:"remote_folder"`
}

// DBConfig holds the relational-store connection settings.
type DBConfig struct {
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
}

// DirConfig holds the local working directories.
type DirConfig struct {
	Download    string `yaml:"download"`
	Transformed string `yaml:"transformed"`
}

// RetryConfig holds the retry policy settings for remote operations.
type RetryConfig struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"base_delay"`
}

// FromEnv builds a Config from environment variables, applying defaults
// where a variable is unset:
//
//	SFTP_HOST, SFTP_PORT (22), SFTP_USERNAME, SFTP_PASSWORD, REMOTE_FOLDER (.)
//	DB_NAME (creadable_db), DB_USER (postgres), DB_PASSWORD,
//	DB_HOST (localhost), DB_PORT (5432)
//	DOWNLOAD_DIR (downloads), TRANSFORMED_DIR (transformed)
//	RETRY_ATTEMPTS (3), RETRY_BASE_DELAY (2s), LOG_LEVEL (info)
func FromEnv() (*Config, error) {
	cfg := &Config{
		SFTP: SFTPConfig{
			Host:         os.Getenv("SFTP_HOST"),
			Port:         22,
			Username:     os.Getenv("SFTP_USERNAME"),
			Password:     os.Getenv("SFTP_PASSWORD"),
			RemoteFolder: envOr("REMOTE_FOLDER", "."),
		},
		DB: DBConfig{
			Name:     envOr("DB_NAME", "creadable_db"),
			User:     envOr("DB_USER", "postgres"),
			Password: os.Getenv("DB_PASSWORD"),
			Host:     envOr("DB_HOST", "localhost"),
			Port:     5432,
		},
		Dirs: DirConfig{
			Download:    envOr("DOWNLOAD_DIR", "downloads"),
			Transformed: envOr("TRANSFORMED_DIR", "transformed"),
		},
		Retry: RetryConfig{
			Attempts:  3,
			BaseDelay: 2 * time.Second,
		},
		LogLevel: envOr("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.SFTP.Port, err = envInt("SFTP_PORT", cfg.SFTP.Port); err != nil {
		return nil, err
	}
	if cfg.DB.Port, err = envInt("DB_PORT", cfg.DB.Port); err != nil {
		return nil, err
	}
	if cfg.Retry.Attempts, err = envInt("RETRY_ATTEMPTS", cfg.Retry.Attempts); err != nil {
		return nil, err
	}
	if v := os.Getenv("RETRY_BASE_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid RETRY_BASE_DELAY %q: %w", v, err)
		}
		cfg.Retry.BaseDelay = d
	}

	return cfg, nil
}

// Validate validates the configuration for correctness.
func (c *Config) Validate() error {
	if c.SFTP.Host == "" {
		return fmt.Errorf("sftp host is required")
	}
	if c.SFTP.Port <= 0 || c.SFTP.Port > 65535 {
		return fmt.Errorf("sftp port must be in 1-65535")
	}
	if c.SFTP.Username == "" {
		return fmt.Errorf("sftp username is required")
	}
	if c.DB.Name == "" {
		return fmt.Errorf("db name is required")
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		return fmt.Errorf("db port must be in 1-65535")
	}
	if c.Retry.Attempts <= 0 {
		return fmt.Errorf("retry attempts must be positive")
	}
	if c.Dirs.Download == "" || c.Dirs.Transformed == "" {
		return fmt.Errorf("download and transformed directories are required")
	}
	return nil
}

// ConnString builds the PostgreSQL connection URL for pgx. Credentials go
// through url.UserPassword so characters like spaces survive the round trip
// to pgx's URL parser.
func (d DBConfig) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	return u.String()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}
