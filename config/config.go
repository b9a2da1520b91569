package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Backend   BackendConfig   `yaml:"backend"`
	Languages LanguagesConfig `yaml:"languages"`
	State     StateConfig     `yaml:"state"`
	Export    ExportConfig    `yaml:"export"`
	Upload    UploadConfig    `yaml:"upload"`
	Relay     RelayConfig     `yaml:"relay"`
	Auth      AuthConfig      `yaml:"auth"`
}

type BackendConfig struct {
	APIKey            string `yaml:"api_key" env:"GEMINI_API_KEY"`
	BaseURL           string `yaml:"base_url" env:"GEMINI_BASE_URL"`
	TextModel         string `yaml:"text_model"`
	SpeechModel       string `yaml:"speech_model"`
	ImageModel        string `yaml:"image_model"`
	Voice             string `yaml:"voice"`
	TimeoutSec        int    `yaml:"timeout_sec"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// Timeout returns the per-call deadline for backend requests
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSec) * time.Second
}

type LanguagesConfig struct {
	PrimaryLabel   string `yaml:"primary_label"`
	SecondaryLabel string `yaml:"secondary_label"`
}

type StateConfig struct {
	Dir string `yaml:"dir" env:"SHORTS_STATE_DIR"`
}

type ExportConfig struct {
	OutputDir string   `yaml:"output_dir"`
	S3        S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket       string `yaml:"bucket" env:"SHORTS_S3_BUCKET"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region" env:"AWS_REGION"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

type UploadConfig struct {
	SimulatedDelayMs int    `yaml:"simulated_delay_ms"`
	Visibility       string `yaml:"visibility"`
	LogDir           string `yaml:"log_dir"`
}

type RelayConfig struct {
	Addr         string `yaml:"addr" env:"RELAY_ADDR"`
	BaseURL      string `yaml:"base_url" env:"RELAY_BASE_URL"`
	AppURL       string `yaml:"app_url" env:"APP_URL"`
	ClientID     string `yaml:"client_id" env:"YOUTUBE_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"YOUTUBE_CLIENT_SECRET"`
	RedirectURL  string `yaml:"redirect_url" env:"YOUTUBE_REDIRECT_URL"`
}

type AuthConfig struct {
	CallbackAddr string `yaml:"callback_addr"`
	WaitSec      int    `yaml:"wait_sec"`
}

// Default returns the configuration used when no config file is present
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Backend: BackendConfig{
			BaseURL:           "https://generativelanguage.googleapis.com/v1beta",
			TextModel:         "gemini-2.5-flash",
			SpeechModel:       "gemini-2.5-flash-preview-tts",
			ImageModel:        "gemini-2.5-flash-image",
			Voice:             "Kore",
			TimeoutSec:        90,
			RequestsPerMinute: 30,
		},
		Languages: LanguagesConfig{
			PrimaryLabel:   "English",
			SecondaryLabel: "Hindi",
		},
		State: StateConfig{
			Dir: filepath.Join(home, ".shorts-studio"),
		},
		Export: ExportConfig{
			OutputDir: "output",
		},
		Upload: UploadConfig{
			SimulatedDelayMs: 3000,
			Visibility:       "private",
			LogDir:           "logs",
		},
		Relay: RelayConfig{
			Addr:    ":3000",
			BaseURL: "http://localhost:3000",
			AppURL:  "http://127.0.0.1:8765",
		},
		Auth: AuthConfig{
			CallbackAddr: "127.0.0.1:8765",
			WaitSec:      300,
		},
	}
}

// Load reads config.yaml over the defaults and then applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	return cfg, nil
}

// EnsureDirectories creates the state, export and upload log directories
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.State.Dir, c.Export.OutputDir, c.Upload.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	return nil
}
