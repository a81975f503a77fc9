/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"multiassistant/internal/appearance"
	"multiassistant/internal/slots"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.

type SlotConfig struct {
	URL     string `yaml:"url"`
	Label   string `yaml:"label,omitempty"`
	Enabled bool   `yaml:"enabled"`
	Persist bool   `yaml:"persist"`
}

type TabsConfig struct {
	// UnloadDelaySeconds is the idle time before a background slot is unloaded; 0 means never.
	UnloadDelaySeconds int  `yaml:"unload_delay_seconds"`
	CyclePersistedOnly bool `yaml:"cycle_persisted_only"`
}

type WindowConfig struct {
	Alpha        float64 `yaml:"alpha"`
	ContentAlpha float64 `yaml:"content_alpha"`
	Desktop      string  `yaml:"desktop"` // "all" | "current" | "standard"
	Autohide     bool    `yaml:"autohide"`
}

type AppearanceConfig struct {
	Temperature float64 `yaml:"temperature"`
	Bold        bool    `yaml:"bold"`
}

type ShortcutConfig struct {
	Key       string   `yaml:"key"`
	Modifiers []string `yaml:"modifiers"`
}

type EngineConfig struct {
	// Command launches one view, e.g. "chromium --app={url}". Empty runs views in memory only.
	Command string `yaml:"command"`
}

type GeneralConfig struct {
	TelemetryOptIn bool `yaml:"telemetry_opt_in"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int              `yaml:"config_version"`
	General       GeneralConfig    `yaml:"general"`
	Slots         []SlotConfig     `yaml:"slots"`
	Tabs          TabsConfig       `yaml:"tabs"`
	Window        WindowConfig     `yaml:"window"`
	Appearance    AppearanceConfig `yaml:"appearance"`
	Shortcut      ShortcutConfig   `yaml:"shortcut"`
	Engine        EngineConfig     `yaml:"engine"`
	Logging       LoggingConfig    `yaml:"logging"`
}

// DefaultSlotURLs are used for the first slots when their URL is left empty.
var DefaultSlotURLs = []string{"https://chat.openai.com/", "https://gemini.google.com/app"}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false},
		Slots: []SlotConfig{
			{URL: DefaultSlotURLs[0], Label: "ChatGPT", Enabled: true},
			{URL: DefaultSlotURLs[1], Label: "Gemini", Enabled: true},
		},
		Tabs: TabsConfig{UnloadDelaySeconds: 300},
		Window: WindowConfig{
			Alpha:        appearance.DefaultWindowAlpha,
			ContentAlpha: appearance.DefaultContentAlpha,
			Desktop:      string(appearance.DesktopStandard),
		},
		Appearance: AppearanceConfig{Temperature: appearance.NeutralTemperature},
		Shortcut:   ShortcutConfig{Key: ".", Modifiers: []string{"option"}},
		Logging:    LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigDir      = "MA_CONFIG_DIR"
	EnvTelemetryOptIn = "MA_TELEMETRY_OPT_IN"
	EnvUnloadDelay    = "MA_UNLOAD_DELAY_SECONDS"
	EnvEngineCommand  = "MA_ENGINE_COMMAND"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "MA_LOG_LEVEL"
	EnvLogFormat = "MA_LOG_FORMAT"
	EnvLogSource = "MA_LOG_SOURCE"
	EnvLogFile   = "MA_LOG_FILE"
)

// ConfigDir returns the per-user directory holding the config file and the state database.
func ConfigDir() (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvConfigDir)); v != "" {
		return v, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "MultiAssistant")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "MultiAssistant")
	default: // linux and others
		base = filepath.Join(os.Getenv("HOME"), ".config", "multiassistant")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return base, nil
}

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the user config file from ConfigPath. See LoadFile.
func Load() (AppConfig, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := Defaults()
		applyEnvOverrides(&cfg)
		return cfg, err
	}
	return LoadFile(path)
}

// LoadFile reads path (if present) over the defaults, validates it and merges environment overrides.
// A missing file is not an error. On a parse or validation error the defaults (plus env) are returned
// together with the error so the caller can keep running.
func LoadFile(path string) (AppConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := Defaults()
		applyEnvOverrides(&cfg)
		return cfg, nil
	}
	if err != nil {
		cfg := Defaults()
		applyEnvOverrides(&cfg)
		return cfg, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	applyEnvOverrides(&cfg)
	return cfg, err
}

// Parse decodes YAML over the defaults and validates it. Keys missing from data keep their defaults.
func Parse(data []byte) (AppConfig, error) {
	if err := Validate(data); err != nil {
		return Defaults(), err
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Defaults(), fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	normalize(&cfg)
	return cfg, nil
}

// Save writes the user config YAML to path.
func Save(path string, cfg AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func normalize(cfg *AppConfig) {
	if cfg.ConfigVersion == 0 {
		cfg.ConfigVersion = 1
	}
	if len(cfg.Slots) > slots.DefaultCount {
		cfg.Slots = cfg.Slots[:slots.DefaultCount]
	}
	for i := range cfg.Slots {
		cfg.Slots[i].URL = strings.TrimSpace(cfg.Slots[i].URL)
		cfg.Slots[i].Label = strings.TrimSpace(cfg.Slots[i].Label)
	}
	if cfg.Tabs.UnloadDelaySeconds < 0 {
		cfg.Tabs.UnloadDelaySeconds = 0
	}
	cfg.Window.Alpha = appearance.ClampAlpha(cfg.Window.Alpha)
	cfg.Window.ContentAlpha = appearance.ClampAlpha(cfg.Window.ContentAlpha)
	cfg.Window.Desktop = string(appearance.ParseDesktop(cfg.Window.Desktop))
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
	cfg.Logging.File = strings.TrimSpace(cfg.Logging.File)
}

func truthy(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.General.TelemetryOptIn = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvUnloadDelay)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Tabs.UnloadDelaySeconds = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvEngineCommand)); v != "" {
		cfg.Engine.Command = v
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

// envKeys maps config keys to the variables that override them, in file order.
var envKeys = [][2]string{
	{"general.telemetry_opt_in", EnvTelemetryOptIn},
	{"tabs.unload_delay_seconds", EnvUnloadDelay},
	{"engine.command", EnvEngineCommand},
	{"logging.level", EnvLogLevel},
	{"logging.format", EnvLogFormat},
	{"logging.source", EnvLogSource},
	{"logging.file", EnvLogFile},
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	for _, kv := range envKeys {
		if kv[0] == key && os.Getenv(kv[1]) != "" {
			return kv[1], true
		}
	}
	return "", false
}

// Overridden lists the config keys currently overridden by the environment.
func Overridden() []string {
	var out []string
	for _, kv := range envKeys {
		if _, ok := EnvOverrideFor(kv[0]); ok {
			out = append(out, kv[0])
		}
	}
	return out
}

// SlotConfigs returns the registry configuration. Empty URLs of the first slots fall back to
// DefaultSlotURLs; other empty slots stay inert.
func (c AppConfig) SlotConfigs() []slots.Config {
	out := make([]slots.Config, 0, len(c.Slots))
	for i, s := range c.Slots {
		u := s.URL
		if u == "" && i < len(DefaultSlotURLs) {
			u = DefaultSlotURLs[i]
		}
		out = append(out, slots.Config{URL: u, Label: s.Label, Enabled: s.Enabled, Persist: s.Persist})
	}
	return out
}

// UnloadDelay returns the idle unload delay; zero means never.
func (c AppConfig) UnloadDelay() time.Duration {
	if c.Tabs.UnloadDelaySeconds <= 0 {
		return 0
	}
	return time.Duration(c.Tabs.UnloadDelaySeconds) * time.Second
}

// AppearanceSettings returns the window look with every value clamped.
func (c AppConfig) AppearanceSettings() appearance.Settings {
	return appearance.Settings{
		WindowAlpha:  c.Window.Alpha,
		ContentAlpha: c.Window.ContentAlpha,
		Temperature:  c.Appearance.Temperature,
		Bold:         c.Appearance.Bold,
		Desktop:      appearance.DesktopAssignment(c.Window.Desktop),
		Autohide:     c.Window.Autohide,
	}.Normalize()
}
