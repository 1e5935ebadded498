/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package config loads the user configuration: a YAML file in the per-user
// config directory, overridden at runtime by SPW_* environment variables. The
// model provider's API key never touches the YAML file; it lives in the OS
// keyring, with SPW_API_KEY and a .env file as fallbacks.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

type EngineConfig struct {
	CharsPerPage     int `yaml:"chars_per_page"`
	MinContentLines  int `yaml:"min_content_lines"`
	TargetMinLines   int `yaml:"target_min_lines"`
	TargetMaxLines   int `yaml:"target_max_lines"`
	MaxContextChars  int `yaml:"max_context_chars"`
	MaxSummaryChars  int `yaml:"max_summary_chars"`
	LineTolerancePct int `yaml:"line_tolerance_pct"`
}

type ProviderConfig struct {
	Kind        string  `yaml:"kind"` // openrouter | ollama
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	TimeoutMs   int     `yaml:"timeout_ms"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	// MaxRetries < 0 disables retrying 429 and 5xx answers.
	MaxRetries int `yaml:"max_retries"`
	// The API key is not stored on disk; see APIKey.
}

type StorageConfig struct {
	// JournalPath empty means next to the screenplay, see storage.JournalPath.
	JournalPath    string `yaml:"journal_path"`
	JournalKeep    int    `yaml:"journal_keep"`
	RegistryDriver string `yaml:"registry_driver"` // yaml | sqlite | postgres | libsql
	RegistryDSN    string `yaml:"registry_dsn"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// Token, when set, is required as a bearer token on every API call except /health.
	Token string `yaml:"token"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int            `yaml:"config_version"`
	Engine        EngineConfig   `yaml:"engine"`
	Provider      ProviderConfig `yaml:"provider"`
	Storage       StorageConfig  `yaml:"storage"`
	Server        ServerConfig   `yaml:"server"`
	Logging       LoggingConfig  `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Engine: EngineConfig{
			CharsPerPage:     3000,
			MinContentLines:  3,
			TargetMinLines:   5,
			TargetMaxLines:   30,
			MaxContextChars:  6000,
			MaxSummaryChars:  240,
			LineTolerancePct: 10,
		},
		Provider: ProviderConfig{
			Kind:        "openrouter",
			BaseURL:     "https://openrouter.ai/api/v1",
			Model:       "anthropic/claude-3.5-sonnet",
			TimeoutMs:   120000,
			Temperature: 0.7,
			MaxTokens:   4096,
			MaxRetries:  2,
		},
		Storage: StorageConfig{JournalKeep: 200, RegistryDriver: "yaml"},
		Server:  ServerConfig{Addr: "127.0.0.1:7878"},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigPath       = "SPW_CONFIG"
	EnvAPIKey           = "SPW_API_KEY"
	EnvCharsPerPage     = "SPW_CHARS_PER_PAGE"
	EnvMinContentLines  = "SPW_MIN_CONTENT_LINES"
	EnvMaxContextChars  = "SPW_MAX_CONTEXT_CHARS"
	EnvLineTolerancePct = "SPW_LINE_TOLERANCE_PCT"
	EnvProviderKind     = "SPW_PROVIDER"
	EnvProviderURL      = "SPW_PROVIDER_URL"
	EnvProviderModel    = "SPW_MODEL"
	EnvProviderTimeout  = "SPW_PROVIDER_TIMEOUT_MS"
	EnvJournalPath      = "SPW_JOURNAL_PATH"
	EnvRegistryDriver   = "SPW_REGISTRY_DRIVER"
	EnvRegistryDSN      = "SPW_REGISTRY_DSN"
	EnvServerAddr       = "SPW_SERVER_ADDR"
	EnvServerToken      = "SPW_SERVER_TOKEN"
	EnvLogLevel         = "SPW_LOG_LEVEL"
	EnvLogFormat        = "SPW_LOG_FORMAT"
	EnvLogSource        = "SPW_LOG_SOURCE"
	EnvLogFile          = "SPW_LOG_FILE"
)

// field binds a dotted key to its env override and accessors.
type field struct {
	env string
	get func(*AppConfig) string
	set func(*AppConfig, string) error
}

func intField(env string, p func(*AppConfig) *int) field {
	return field{
		env: env,
		get: func(c *AppConfig) string { return strconv.Itoa(*p(c)) },
		set: func(c *AppConfig, v string) error {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("not an integer: %q", v)
			}
			*p(c) = n
			return nil
		},
	}
}

func stringField(env string, lower bool, p func(*AppConfig) *string) field {
	return field{
		env: env,
		get: func(c *AppConfig) string { return *p(c) },
		set: func(c *AppConfig, v string) error {
			v = strings.TrimSpace(v)
			if lower {
				v = strings.ToLower(v)
			}
			*p(c) = v
			return nil
		},
	}
}

func boolField(env string, p func(*AppConfig) *bool) field {
	return field{
		env: env,
		get: func(c *AppConfig) string { return strconv.FormatBool(*p(c)) },
		set: func(c *AppConfig, v string) error {
			*p(c) = truthy(v)
			return nil
		},
	}
}

var fields = map[string]field{
	"engine.chars_per_page":     intField(EnvCharsPerPage, func(c *AppConfig) *int { return &c.Engine.CharsPerPage }),
	"engine.min_content_lines":  intField(EnvMinContentLines, func(c *AppConfig) *int { return &c.Engine.MinContentLines }),
	"engine.target_min_lines":   intField("", func(c *AppConfig) *int { return &c.Engine.TargetMinLines }),
	"engine.target_max_lines":   intField("", func(c *AppConfig) *int { return &c.Engine.TargetMaxLines }),
	"engine.max_context_chars":  intField(EnvMaxContextChars, func(c *AppConfig) *int { return &c.Engine.MaxContextChars }),
	"engine.max_summary_chars":  intField("", func(c *AppConfig) *int { return &c.Engine.MaxSummaryChars }),
	"engine.line_tolerance_pct": intField(EnvLineTolerancePct, func(c *AppConfig) *int { return &c.Engine.LineTolerancePct }),
	"provider.kind":             stringField(EnvProviderKind, true, func(c *AppConfig) *string { return &c.Provider.Kind }),
	"provider.base_url":         stringField(EnvProviderURL, false, func(c *AppConfig) *string { return &c.Provider.BaseURL }),
	"provider.model":            stringField(EnvProviderModel, false, func(c *AppConfig) *string { return &c.Provider.Model }),
	"provider.timeout_ms":       intField(EnvProviderTimeout, func(c *AppConfig) *int { return &c.Provider.TimeoutMs }),
	"provider.max_tokens":       intField("", func(c *AppConfig) *int { return &c.Provider.MaxTokens }),
	"provider.max_retries":      intField("", func(c *AppConfig) *int { return &c.Provider.MaxRetries }),
	"provider.temperature": {
		get: func(c *AppConfig) string { return strconv.FormatFloat(c.Provider.Temperature, 'f', -1, 64) },
		set: func(c *AppConfig, v string) error {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return fmt.Errorf("not a number: %q", v)
			}
			c.Provider.Temperature = f
			return nil
		},
	},
	"storage.journal_path":    stringField(EnvJournalPath, false, func(c *AppConfig) *string { return &c.Storage.JournalPath }),
	"storage.journal_keep":    intField("", func(c *AppConfig) *int { return &c.Storage.JournalKeep }),
	"storage.registry_driver": stringField(EnvRegistryDriver, true, func(c *AppConfig) *string { return &c.Storage.RegistryDriver }),
	"storage.registry_dsn":    stringField(EnvRegistryDSN, false, func(c *AppConfig) *string { return &c.Storage.RegistryDSN }),
	"server.addr":             stringField(EnvServerAddr, false, func(c *AppConfig) *string { return &c.Server.Addr }),
	"server.token":            stringField(EnvServerToken, false, func(c *AppConfig) *string { return &c.Server.Token }),
	"logging.level":           stringField(EnvLogLevel, true, func(c *AppConfig) *string { return &c.Logging.Level }),
	"logging.format":          stringField(EnvLogFormat, true, func(c *AppConfig) *string { return &c.Logging.Format }),
	"logging.source":          boolField(EnvLogSource, func(c *AppConfig) *bool { return &c.Logging.Source }),
	"logging.file":            stringField(EnvLogFile, false, func(c *AppConfig) *string { return &c.Logging.File }),
}

// ErrUnknownKey is returned by Get and Set for keys not in Keys.
var ErrUnknownKey = errors.New("unknown config key")

// Keys lists the dotted keys accepted by Get and Set, sorted.
func Keys() []string {
	out := make([]string, 0, len(fields))
	for k := range fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Get returns the value of a dotted key such as "provider.model".
func (c *AppConfig) Get(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return f.get(c), nil
}

// Set parses value into the dotted key.
func (c *AppConfig) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if err := f.set(c, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// EnvOverrideFor returns the env var currently overriding key, if any.
func EnvOverrideFor(key string) (string, bool) {
	f, ok := fields[key]
	if !ok || f.env == "" || os.Getenv(f.env) == "" {
		return "", false
	}
	return f.env, true
}

// ProviderTimeout returns the provider timeout, falling back to the default.
func (p ProviderConfig) ProviderTimeout() time.Duration {
	ms := p.TimeoutMs
	if ms <= 0 {
		ms = Defaults().Provider.TimeoutMs
	}
	return time.Duration(ms) * time.Millisecond
}

// ConfigPath returns the config file path: SPW_CONFIG when set, else the per-user location.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "Screenwriter")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "Screenwriter")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = filepath.Join(xdg, "screenwriter")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "screenwriter")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the config file if present, applies defaults and merges env overrides.
// A file that does not parse is an error; a missing one is not.
func Load() (AppConfig, error) {
	cfg, err := LoadFile()
	if err != nil {
		return cfg, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// LoadFile is Load without the environment overrides; use it to edit and Save.
func LoadFile() (AppConfig, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to the config file.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func mergeInto(dst, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	mergeInt(&dst.Engine.CharsPerPage, src.Engine.CharsPerPage)
	mergeInt(&dst.Engine.MinContentLines, src.Engine.MinContentLines)
	mergeInt(&dst.Engine.TargetMinLines, src.Engine.TargetMinLines)
	mergeInt(&dst.Engine.TargetMaxLines, src.Engine.TargetMaxLines)
	mergeInt(&dst.Engine.MaxContextChars, src.Engine.MaxContextChars)
	mergeInt(&dst.Engine.MaxSummaryChars, src.Engine.MaxSummaryChars)
	mergeInt(&dst.Engine.LineTolerancePct, src.Engine.LineTolerancePct)

	mergeString(&dst.Provider.Kind, src.Provider.Kind, true)
	mergeString(&dst.Provider.BaseURL, src.Provider.BaseURL, false)
	mergeString(&dst.Provider.Model, src.Provider.Model, false)
	mergeInt(&dst.Provider.TimeoutMs, src.Provider.TimeoutMs)
	mergeInt(&dst.Provider.MaxTokens, src.Provider.MaxTokens)
	mergeInt(&dst.Provider.MaxRetries, src.Provider.MaxRetries)
	if src.Provider.Temperature != 0 {
		dst.Provider.Temperature = src.Provider.Temperature
	}

	mergeString(&dst.Storage.JournalPath, src.Storage.JournalPath, false)
	mergeInt(&dst.Storage.JournalKeep, src.Storage.JournalKeep)
	mergeString(&dst.Storage.RegistryDriver, src.Storage.RegistryDriver, true)
	mergeString(&dst.Storage.RegistryDSN, src.Storage.RegistryDSN, false)

	mergeString(&dst.Server.Addr, src.Server.Addr, false)
	mergeString(&dst.Server.Token, src.Server.Token, false)

	mergeString(&dst.Logging.Level, src.Logging.Level, true)
	mergeString(&dst.Logging.Format, src.Logging.Format, true)
	// booleans come straight from the file so user preferences persist
	dst.Logging.Source = src.Logging.Source
	mergeString(&dst.Logging.File, src.Logging.File, false)
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func mergeString(dst *string, v string, lower bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	if lower {
		v = strings.ToLower(v)
	}
	*dst = v
}

// applyEnvOverrides applies every set SPW_* variable; values that do not parse are ignored.
func applyEnvOverrides(cfg *AppConfig) {
	for _, f := range fields {
		if f.env == "" {
			continue
		}
		if v := strings.TrimSpace(os.Getenv(f.env)); v != "" {
			_ = f.set(cfg, v)
		}
	}
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// Keyring entry holding the provider API key.
const (
	keyringService = "Screenwriter"
	keyringAPIKey  = "provider_api_key"
)

// TokenStore abstracts the OS keyring so tests can stub it.
type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring implements TokenStore with github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

var tokenStore TokenStore = osKeyring{}

// ErrNoAPIKey means no API key was found in any source.
var ErrNoAPIKey = errors.New("no API key configured")

// APIKey resolves the provider API key from, in order: SPW_API_KEY, the OS
// keyring, and SPW_API_KEY in the .env file at dotenvPath (skipped when empty).
func APIKey(dotenvPath string) (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvAPIKey)); v != "" {
		return v, nil
	}
	v, err := tokenStore.Get(keyringService, keyringAPIKey)
	if err == nil && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), nil
	}
	if err != nil && !errors.Is(err, keyring.ErrNotFound) && dotenvPath == "" {
		return "", fmt.Errorf("read keyring: %w", err)
	}
	if dotenvPath != "" {
		env, derr := godotenv.Read(dotenvPath)
		if derr != nil && !errors.Is(derr, os.ErrNotExist) {
			return "", fmt.Errorf("read %s: %w", dotenvPath, derr)
		}
		if v := strings.TrimSpace(env[EnvAPIKey]); v != "" {
			return v, nil
		}
	}
	return "", ErrNoAPIKey
}

// SetAPIKey stores key in the OS keyring; an empty key deletes the entry.
func SetAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		err := tokenStore.Delete(keyringService, keyringAPIKey)
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return err
	}
	return tokenStore.Set(keyringService, keyringAPIKey, key)
}
