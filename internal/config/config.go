// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for freechat.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/jeranaias/freechat-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete freechat configuration.
//
// User preferences (theme, system prompt, display name, credentials) are not
// part of it; they live in the persisted settings blob.
type Config struct {
	// DataDir holds chats, settings, custom models and logs. Empty means ConfigDir().
	DataDir string `toml:"data_dir" json:"data_dir"`

	// DefaultModel is the model id selected for a fresh session.
	DefaultModel string `toml:"default_model" json:"default_model"`

	Storage     StorageConfig     `toml:"storage" json:"storage"`
	Network     NetworkConfig     `toml:"network" json:"network"`
	Attachments AttachmentsConfig `toml:"attachments" json:"attachments"`
	Logging     LoggingConfig     `toml:"logging" json:"logging"`
	UI          UIConfig          `toml:"ui" json:"ui"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Backend is "file" (one JSON document per blob) or "sqlite".
	Backend string `toml:"backend" json:"backend"`
	// EncryptCredentials seals API keys inside the settings blob.
	EncryptCredentials bool `toml:"encrypt_credentials" json:"encrypt_credentials"`
}

// NetworkConfig contains outbound request settings.
type NetworkConfig struct {
	// Referer is sent as HTTP-Referer to identify the app to the provider.
	Referer string `toml:"referer" json:"referer"`
	// AppTitle is sent as X-Title.
	AppTitle string `toml:"app_title" json:"app_title"`
	// RequestsPerMinute caps outbound requests; 0 disables the limiter.
	RequestsPerMinute int `toml:"requests_per_minute" json:"requests_per_minute"`
	// TitleTimeoutSecs bounds the background title request.
	TitleTimeoutSecs int `toml:"title_timeout_secs" json:"title_timeout_secs"`
}

// AttachmentsConfig bounds what can be staged on a message.
type AttachmentsConfig struct {
	MaxFiles          int   `toml:"max_files" json:"max_files"`
	MaxFileBytes      int64 `toml:"max_file_bytes" json:"max_file_bytes"`
	MaxImageDimension int   `toml:"max_image_dimension" json:"max_image_dimension"`
}

// LoggingConfig controls the diagnostic log.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `toml:"level" json:"level"`
	// Format is text or json.
	Format string `toml:"format" json:"format"`
	// File is the log destination. Empty means <data_dir>/logs/freechat.log,
	// "-" means stderr.
	File string `toml:"file" json:"file"`
}

// UIConfig contains surface settings.
type UIConfig struct {
	// Surface is auto, tui or repl.
	Surface string `toml:"surface" json:"surface"`
	// WordWrap is the markdown wrap width for the REPL.
	WordWrap int `toml:"word_wrap" json:"word_wrap"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		DefaultModel: "gpt-oss",
		Storage: StorageConfig{
			Backend: "file",
		},
		Network: NetworkConfig{
			Referer:           "https://github.com/jeranaias/freechat-tui",
			AppTitle:          "freechat",
			RequestsPerMinute: 0,
			TitleTimeoutSecs:  15,
		},
		Attachments: AttachmentsConfig{
			MaxFiles:          10,
			MaxFileBytes:      20 << 20,
			MaxImageDimension: 2048,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		UI: UIConfig{
			Surface:  "auto",
			WordWrap: 80,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the freechat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".freechat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ResolvedDataDir returns DataDir, or ConfigDir() when it is unset.
func (c *Config) ResolvedDataDir() (string, error) {
	if c.DataDir != "" {
		return expandHome(c.DataDir)
	}
	return ConfigDir()
}

func expandHome(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}

// ensureSecurePermissions tightens a config file to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config directory. It tries TOML first,
// then JSON, and falls back to defaults. Environment overrides are applied
// last. A file that fails to decode is reported alongside the defaults.
func Load() (*Config, error) {
	if path, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}
	if path, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %s\n", path, strings.Join(keys, ", "))
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// SetDefaults fills zero values that would otherwise be invalid.
func (c *Config) SetDefaults() {
	d := Default()

	if c.DefaultModel == "" {
		c.DefaultModel = d.DefaultModel
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	if c.Network.AppTitle == "" {
		c.Network.AppTitle = d.Network.AppTitle
	}
	if c.Network.TitleTimeoutSecs <= 0 {
		c.Network.TitleTimeoutSecs = d.Network.TitleTimeoutSecs
	}
	if c.Attachments.MaxFiles <= 0 {
		c.Attachments.MaxFiles = d.Attachments.MaxFiles
	}
	if c.Attachments.MaxFileBytes <= 0 {
		c.Attachments.MaxFileBytes = d.Attachments.MaxFileBytes
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
	if c.UI.Surface == "" {
		c.UI.Surface = d.UI.Surface
	}
	if c.UI.WordWrap <= 0 {
		c.UI.WordWrap = d.UI.WordWrap
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var b strings.Builder
	b.WriteString("# freechat configuration file\n")
	b.WriteString("# Chats, settings and API keys are stored separately under data_dir.\n\n")

	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes the configuration to a JSON file with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors

	oneOf := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if strings.EqualFold(value, a) {
				return
			}
		}
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("invalid value '%s', must be one of: %s", value, strings.Join(allowed, ", ")),
		})
	}

	oneOf("storage.backend", c.Storage.Backend, "file", "sqlite")
	oneOf("logging.level", c.Logging.Level, "debug", "info", "warn", "error")
	oneOf("logging.format", c.Logging.Format, "text", "json")
	oneOf("ui.surface", c.UI.Surface, "auto", "tui", "repl")

	if c.Network.Referer != "" {
		if u, err := url.Parse(c.Network.Referer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "network.referer",
				Message: fmt.Sprintf("'%s' is not an absolute URL", c.Network.Referer),
			})
		}
	}
	if c.Network.RequestsPerMinute < 0 {
		errs = append(errs, ValidationError{Field: "network.requests_per_minute", Message: "must not be negative"})
	}
	if c.Attachments.MaxFiles < 1 || c.Attachments.MaxFiles > 100 {
		errs = append(errs, ValidationError{Field: "attachments.max_files", Message: "must be between 1 and 100"})
	}
	if c.Attachments.MaxImageDimension < 0 {
		errs = append(errs, ValidationError{Field: "attachments.max_image_dimension", Message: "must not be negative"})
	}
	if c.UI.WordWrap < 20 {
		errs = append(errs, ValidationError{Field: "ui.word_wrap", Message: "must be at least 20"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides:
//   - FREECHAT_DATA_DIR: overrides data_dir
//   - FREECHAT_DEFAULT_MODEL: overrides default_model
//   - FREECHAT_STORAGE: overrides storage.backend
//   - FREECHAT_LOG_LEVEL: overrides logging.level
//   - FREECHAT_LOG_FILE: overrides logging.file
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("FREECHAT_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("FREECHAT_DEFAULT_MODEL"); v != "" {
		c.DefaultModel = v
	}
	if v := os.Getenv("FREECHAT_STORAGE"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("FREECHAT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FREECHAT_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g. "ui.surface").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts snake_case or kebab-case to a Go field name.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})
	var result strings.Builder
	for _, part := range parts {
		result.WriteString(strings.ToUpper(part[:1]))
		result.WriteString(strings.ToLower(part[1:]))
	}
	return result.String()
}

func setFieldValue(field reflect.Value, value interface{}) error {
	if s, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(s)
			return nil
		case reflect.Int, reflect.Int64:
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %w", err)
			}
			field.SetInt(n)
			return nil
		case reflect.Bool:
			b, err := strconv.ParseBool(s)
			if err != nil {
				return fmt.Errorf("invalid boolean value: %w", err)
			}
			field.SetBool(b)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// Keys returns every configuration key in dot notation.
func Keys() []string {
	return []string{
		"data_dir",
		"default_model",
		"storage.backend",
		"storage.encrypt_credentials",
		"network.referer",
		"network.app_title",
		"network.requests_per_minute",
		"network.title_timeout_secs",
		"attachments.max_files",
		"attachments.max_file_bytes",
		"attachments.max_image_dimension",
		"logging.level",
		"logging.format",
		"logging.file",
		"ui.surface",
		"ui.word_wrap",
	}
}
