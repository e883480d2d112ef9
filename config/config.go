// Package config handles loading and managing application configuration
// from YAML files, an optional .env file, and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/openclaw/qr/render"
)

// RenderDefaults are the form values used when a generation request leaves
// a field empty.
type RenderDefaults struct {
	Size    int    `yaml:"size"`
	Margin  int    `yaml:"margin"`
	Dark    string `yaml:"dark"`
	Light   string `yaml:"light"`
	Level   string `yaml:"level"`
	MaxSize int    `yaml:"max_size"` // largest size a request may ask for
}

// Config holds all application configuration values.
type Config struct {
	Port                int            `yaml:"port"`
	DataDir             string         `yaml:"data_dir"`
	LogLevel            string         `yaml:"log_level"`
	LogoURL             string         `yaml:"logo_url"`
	LogoTimeout         Duration       `yaml:"logo_timeout"`
	DefaultText         string         `yaml:"default_text"`
	DownloadPrefix      string         `yaml:"download_prefix"`
	Render              RenderDefaults `yaml:"render"`
	WebhookURL          string         `yaml:"webhook_url"`
	WebhookIgnoreAgents []string       `yaml:"webhook_ignore_agents"`
	Retention           Duration       `yaml:"retention"`
	PruneInterval       Duration       `yaml:"prune_interval"`
}

// Duration is a wrapper around time.Duration that supports YAML unmarshalling
// from human-readable strings like "30s", "5m", "1h".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// DefaultLogoURL is the logo overlaid on every generated code unless
// logo_url says otherwise.
const DefaultLogoURL = "https://blogger.googleusercontent.com/img/b/R29vZ2xl/AVvXsEjBmOwBmeJNIY9k9MseUafoJNNDPMVAwPFHAzb7tqiLfytLx9rxe6TsCOGHcOkDb73CD989HW1qcXQCVk3DChOtNr6Us291QpLuOu8FeDsSK7IVXsgI6ZFthCDSRXT5MQNgJw0pxUyFID0cP47Bb0Xy8Z_J-Z4MWOkCK4cpOVyAvJFVAU0JlDniJmsAd4nc/s16000/Logo-SENA.png"

// defaults returns a Config populated with sensible default values.
func defaults() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return &Config{
		Port:           8556,
		DataDir:        filepath.Join(homeDir, ".openclaw-qr"),
		LogLevel:       "info",
		LogoURL:        DefaultLogoURL,
		LogoTimeout:    Duration{10 * time.Second},
		DefaultText:    "http://127.0.0.1:8556/scan",
		DownloadPrefix: "codigo-qr",
		Render: RenderDefaults{
			Size:    256,
			Margin:  4,
			Dark:    "#000000",
			Light:   "#ffffff",
			Level:   "M",
			MaxSize: render.MaxSize,
		},
		PruneInterval: Duration{time.Hour},
	}
}

// Load reads configuration from the YAML file at path, falling back to
// defaults if the file does not exist. A .env file in the working directory
// is loaded into the process environment (existing variables win), then
// environment variables with the OC_QR_ prefix override any file or default
// values.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies OC_QR_* environment variable overrides to cfg.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OC_QR_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("OC_QR_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("OC_QR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("OC_QR_LOGO_URL"); ok {
		// An explicitly empty value disables the overlay.
		cfg.LogoURL = v
	}
	if v := os.Getenv("OC_QR_LOGO_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LogoTimeout = Duration{d}
		}
	}
	if v := os.Getenv("OC_QR_DEFAULT_TEXT"); v != "" {
		cfg.DefaultText = v
	}
	if v := os.Getenv("OC_QR_WEBHOOK_URL"); v != "" {
		cfg.WebhookURL = v
	}
	if v := os.Getenv("OC_QR_WEBHOOK_IGNORE_AGENTS"); v != "" {
		cfg.WebhookIgnoreAgents = splitList(v)
	}
	if v := os.Getenv("OC_QR_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retention = Duration{d}
		}
	}
	if v := os.Getenv("OC_QR_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Render.Size = n
		}
	}
	if v := os.Getenv("OC_QR_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Render.MaxSize = n
		}
	}
	if v := os.Getenv("OC_QR_LEVEL"); v != "" {
		cfg.Render.Level = strings.ToUpper(v)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports configuration values that would make the service
// unusable.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Render.Size <= 0 {
		return fmt.Errorf("invalid render size %d", c.Render.Size)
	}
	if c.Render.MaxSize <= 0 || c.Render.MaxSize > render.MaxSize {
		return fmt.Errorf("invalid render max_size %d (must be 1-%d)", c.Render.MaxSize, render.MaxSize)
	}
	if c.Render.Size > c.Render.MaxSize {
		return fmt.Errorf("render size %d exceeds max_size %d", c.Render.Size, c.Render.MaxSize)
	}
	if c.Render.Margin < 0 {
		return fmt.Errorf("invalid render margin %d", c.Render.Margin)
	}
	if c.Retention.Duration < 0 {
		return fmt.Errorf("invalid retention %s", c.Retention.Duration)
	}
	return nil
}

// DBPath returns the location of the scan database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "scans.db")
}

// EnsureDataDir creates the DataDir if it does not already exist.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir %s: %w", c.DataDir, err)
	}
	return nil
}
