// Package config loads application settings from a JSON file with
// environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// S3 holds the cloud backup settings. The secret access key is NOT here;
// it lives in the secret store keyed by AccessKeyID.
type S3 struct {
	Region      string `json:"region"`
	Bucket      string `json:"bucket"`
	Endpoint    string `json:"endpoint,omitempty"`
	AccessKeyID string `json:"access_key_id"`
}

// Config is the full application configuration.
type Config struct {
	// DataDir contains the archives/, mount/, orphans/, records/ and
	// secrets/ working directories.
	DataDir string `json:"data_dir"`

	AutoEject           bool `json:"auto_eject"`
	AutoEjectTimeoutMin int  `json:"auto_eject_timeout_min"`
	EjectOnClose        bool `json:"eject_on_close"`
	CompactOnDetach     bool `json:"compact_on_detach"`

	// HdiutilPath is the disk-image tool; overridable for test doubles.
	HdiutilPath string `json:"hdiutil_path"`
	// Filesystem is the volume filesystem passed to create.
	Filesystem string `json:"filesystem"`

	// SecretBackend selects "keychain" or "file".
	SecretBackend string `json:"secret_backend"`

	S3 S3 `json:"s3"`
}

// Working directories under DataDir.
func (c Config) ArchivesDir() string { return filepath.Join(c.DataDir, "archives") }
func (c Config) MountDir() string    { return filepath.Join(c.DataDir, "mount") }
func (c Config) OrphansDir() string  { return filepath.Join(c.DataDir, "orphans") }
func (c Config) RecordsDir() string  { return filepath.Join(c.DataDir, "records") }
func (c Config) SecretsDir() string  { return filepath.Join(c.DataDir, "secrets") }
func (c Config) TrashDir() string    { return filepath.Join(c.DataDir, "trash") }

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DataDir:             defaultDataDir(),
		AutoEject:           true,
		AutoEjectTimeoutMin: 15,
		EjectOnClose:        true,
		CompactOnDetach:     false,
		HdiutilPath:         "/usr/bin/hdiutil",
		Filesystem:          "Case-sensitive APFS",
		SecretBackend:       defaultSecretBackend(),
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "ArcKeeper")
	}
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return filepath.Join(v, "arckeeper")
	}
	return filepath.Join(home, ".local", "share", "arckeeper")
}

func defaultSecretBackend() string {
	if runtime.GOOS == "darwin" {
		return "keychain"
	}
	return "file"
}

// DefaultPath is the config file location.
func DefaultPath() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "arckeeper", "config.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "arckeeper", "config.json")
}

// Load reads the config file at path (Default() when the file is absent)
// and applies ARCKEEPER_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// First run; defaults apply.
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

// Save writes the config file, creating parent directories.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ARCKEEPER_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("ARCKEEPER_HDIUTIL"); v != "" {
		cfg.HdiutilPath = v
	}
	if v := os.Getenv("ARCKEEPER_SECRET_BACKEND"); v != "" {
		cfg.SecretBackend = v
	}
	if v := os.Getenv("ARCKEEPER_AUTO_EJECT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AutoEject = b
		}
	}
	if v := os.Getenv("ARCKEEPER_AUTO_EJECT_TIMEOUT_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AutoEjectTimeoutMin = n
		}
	}
	if v := os.Getenv("ARCKEEPER_EJECT_ON_CLOSE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.EjectOnClose = b
		}
	}
	if v := os.Getenv("ARCKEEPER_COMPACT_ON_DETACH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.CompactOnDetach = b
		}
	}
	if v := os.Getenv("ARCKEEPER_S3_REGION"); v != "" {
		cfg.S3.Region = v
	}
	if v := os.Getenv("ARCKEEPER_S3_BUCKET"); v != "" {
		cfg.S3.Bucket = v
	}
	if v := os.Getenv("ARCKEEPER_S3_ENDPOINT"); v != "" {
		cfg.S3.Endpoint = v
	}
	if v := os.Getenv("ARCKEEPER_S3_ACCESS_KEY_ID"); v != "" {
		cfg.S3.AccessKeyID = v
	}
}
