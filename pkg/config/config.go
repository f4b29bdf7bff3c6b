// Package config provides configuration management for modelkeep.
// It handles loading, validating and saving application settings: where the catalog
// lives, where artifacts and the metadata store are kept, and how transfers and
// output behave. Settings are stored as YAML with sensible defaults for anything
// left unset.
package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glorpus-work/modelkeep/pkg/errutils"
	"github.com/glorpus-work/modelkeep/pkg/fsutil"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Settings Settings `yaml:"settings"`
}

// Settings represents general application settings.
type Settings struct {
	// Catalog settings. An empty catalog_url means only the bundled catalog is used.
	CatalogURL  string  `yaml:"catalog_url"`
	DeviceRAMGB float64 `yaml:"device_ram_gb"`

	// Storage settings
	DocumentsDir string `yaml:"documents_dir,omitempty"`
	StateDir     string `yaml:"state_dir,omitempty"`

	// Network settings
	HTTPTimeout      time.Duration `yaml:"http_timeout"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
	UserAgent        string        `yaml:"user_agent,omitempty"`

	// Control API
	ListenAddr string `yaml:"listen_addr"`

	// Output settings
	OutputFormat string `yaml:"output_format"` // text, json
	LogLevel     string `yaml:"log_level"`     // debug, info, warn, error
}

// Default configuration values.
const (
	// DefaultCatalogURL is where the model catalog is published.
	DefaultCatalogURL = "https://models.glorpus.work/catalog.json"

	// DefaultHTTPTimeout bounds the wait for response headers. It does not bound
	// the body, which may take as long as the artifact needs.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultProgressInterval is the minimum spacing of persisted progress writes.
	DefaultProgressInterval = 500 * time.Millisecond

	// DefaultListenAddr is the control API address used by `modelkeep serve`.
	DefaultListenAddr = "127.0.0.1:7788"

	// YAMLIndent is the number of spaces to use for YAML indentation.
	YAMLIndent = 2
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	documentsDir, err := fsutil.GetDocumentsDir()
	if err != nil {
		documentsDir = filepath.Join(os.TempDir(), fsutil.AppName, "models")
	}
	stateDir, err := fsutil.GetStateDir()
	if err != nil {
		stateDir = filepath.Join(os.TempDir(), fsutil.AppName, "state")
	}

	return &Config{
		Settings: Settings{
			CatalogURL:       DefaultCatalogURL,
			DocumentsDir:     documentsDir,
			StateDir:         stateDir,
			HTTPTimeout:      DefaultHTTPTimeout,
			ProgressInterval: DefaultProgressInterval,
			ListenAddr:       DefaultListenAddr,
			OutputFormat:     "text",
			LogLevel:         "info",
		},
	}
}

// LoadConfig loads configuration from a file. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errutils.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errutils.Wrap(errutils.ErrInvalidConfigPath, err.Error())
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errutils.Wrapf(err, "failed to open config file: %s", path)
	}
	defer func() { _ = file.Close() }()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errutils.Wrap(err, "failed to read config data")
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errutils.Wrap(errutils.ErrConfigParse, err.Error())
	}

	config.applyDefaults(data)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// SaveConfig saves configuration to a file.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		return errutils.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return errutils.Wrap(errutils.ErrInvalidConfigPath, err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(absPath), fsutil.DirModeDefault); err != nil {
		return errutils.Wrap(errutils.ErrConfigDirectory, err.Error())
	}

	tempPath := absPath + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fsutil.FileModeDefault)
	if err != nil {
		return errutils.Wrap(errutils.ErrConfigFileCreate, err.Error())
	}

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(YAMLIndent)

	if err := encoder.Encode(c); err != nil {
		_ = file.Close()
		_ = os.Remove(tempPath)
		return errutils.Wrap(errutils.ErrConfigEncode, err.Error())
	}

	_ = encoder.Close()
	_ = file.Close()

	// Atomically replace the config file
	if err := os.Rename(tempPath, absPath); err != nil {
		_ = os.Remove(tempPath)
		return errutils.Wrap(errutils.ErrConfigFileRename, err.Error())
	}

	return nil
}

// ToYAML converts the config to YAML bytes.
func (c *Config) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, errutils.Wrap(errutils.ErrConfigMarshal, err.Error())
	}
	return data, nil
}

// Validate checks if the configuration is valid. Every failure wraps
// ErrConfigValidation.
func (c *Config) Validate() error {
	if c == nil {
		return errutils.ErrConfigValidation
	}
	if err := validateSettings(c.Settings); err != nil {
		return fmt.Errorf("%w: %w", errutils.ErrConfigValidation, err)
	}
	return nil
}

func validateSettings(s Settings) error {
	if s.CatalogURL != "" {
		u, err := url.Parse(s.CatalogURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %q", errutils.ErrCatalogURLInvalid, s.CatalogURL)
		}
	}
	if s.DeviceRAMGB < 0 {
		return errutils.ErrDeviceRAMNegative
	}
	if s.HTTPTimeout < 0 {
		return errutils.ErrHTTPTimeoutNegative
	}
	if s.ProgressInterval <= 0 {
		return errutils.ErrProgressIntervalInvalid
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[s.OutputFormat] {
		return errutils.ErrInvalidOutputFormatWithDetails(s.OutputFormat)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(s.LogLevel)] {
		return errutils.ErrInvalidLogLevelWithDetails(s.LogLevel)
	}
	return nil
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, fsutil.AppName, "config.yaml"), nil
}

// GetDocumentsDir returns the directory artifacts are stored in.
func (c *Config) GetDocumentsDir() string {
	return c.Settings.DocumentsDir
}

// GetStateDir returns the directory holding the metadata store.
func (c *Config) GetStateDir() string {
	return c.Settings.StateDir
}

// GetStorePath returns the badger directory inside the state dir.
func (c *Config) GetStorePath() string {
	return filepath.Join(c.GetStateDir(), "store")
}

// applyDefaults fills in missing values with defaults. raw is the document the
// config was decoded from; catalog_url is only defaulted when the key is absent so
// that an explicit empty value can select bundled-only operation.
func (c *Config) applyDefaults(raw []byte) {
	defaults := DefaultConfig()

	if c.Settings.CatalogURL == "" && !hasSettingsKey(raw, "catalog_url") {
		c.Settings.CatalogURL = defaults.Settings.CatalogURL
	}
	if c.Settings.DocumentsDir == "" {
		c.Settings.DocumentsDir = defaults.Settings.DocumentsDir
	}
	if c.Settings.StateDir == "" {
		c.Settings.StateDir = defaults.Settings.StateDir
	}
	if c.Settings.HTTPTimeout == 0 {
		c.Settings.HTTPTimeout = defaults.Settings.HTTPTimeout
	}
	if c.Settings.ProgressInterval == 0 {
		c.Settings.ProgressInterval = defaults.Settings.ProgressInterval
	}
	if c.Settings.ListenAddr == "" {
		c.Settings.ListenAddr = defaults.Settings.ListenAddr
	}
	if c.Settings.OutputFormat == "" {
		c.Settings.OutputFormat = defaults.Settings.OutputFormat
	}
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = defaults.Settings.LogLevel
	}
}

func hasSettingsKey(raw []byte, key string) bool {
	var doc struct {
		Settings map[string]yaml.Node `yaml:"settings"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return false
	}
	_, ok := doc.Settings[key]
	return ok
}
