package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"json2video/types"
)

type Config struct {
	Paths     PathsConfig     `yaml:"paths"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
	Narration NarrationConfig `yaml:"narration"`
	Assets    AssetsConfig    `yaml:"assets"`
	Subtitles SubtitlesConfig `yaml:"subtitles"`
	Render    RenderConfig    `yaml:"render"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type PathsConfig struct {
	Work        string `yaml:"work"`
	Output      string `yaml:"output"`
	Library     string `yaml:"library"`
	LibraryTags string `yaml:"library_tags"`
}

type DefaultsConfig struct {
	Width             int     `yaml:"width"`
	Height            int     `yaml:"height"`
	BackgroundColor   []int   `yaml:"background_color"`
	FillerDurationSec float64 `yaml:"filler_duration_sec"`
}

type NarrationConfig struct {
	Service     string          `yaml:"service"`
	Voice       string          `yaml:"voice"`
	Model       string          `yaml:"model"`
	Command     string          `yaml:"command"`
	APIKeyEnv   string          `yaml:"api_key_env"`
	BaseURL     string          `yaml:"base_url"`
	TimeoutSec  float64         `yaml:"timeout_sec"`
	Concurrency int             `yaml:"concurrency"`
	Azure       *AzureConfig    `yaml:"azure"`
	Google      GoogleTTSConfig `yaml:"google"`
}

// AzureConfig must carry all three keys when the azure_openai service is used
type AzureConfig struct {
	Endpoint   string `yaml:"azure_endpoint"`
	Deployment string `yaml:"azure_deployment"`
	APIVersion string `yaml:"azure_api_version"`
}

type GoogleTTSConfig struct {
	LanguageCode    string `yaml:"language_code"`
	CredentialsFile string `yaml:"credentials_file"`
	SampleRateHertz int64  `yaml:"sample_rate_hertz"`
}

type ProviderConfig struct {
	Name       string   `yaml:"name"`
	APIKeyEnv  string   `yaml:"api_key_env"`
	BaseURL    string   `yaml:"base_url"`
	Model      string   `yaml:"model"`
	TimeoutSec float64  `yaml:"timeout_sec"`
	CX         string   `yaml:"cx"`
	Subreddits []string `yaml:"subreddits"`
}

type AssetsConfig struct {
	Concurrency            int              `yaml:"concurrency"`
	DownloadTimeoutSec     float64          `yaml:"download_timeout_sec"`
	MaxDownloadBytes       int64            `yaml:"max_download_bytes"`
	NeverRepeatInSameVideo bool             `yaml:"never_repeat_in_same_video"`
	Providers              []ProviderConfig `yaml:"providers"`
}

type SubtitlesConfig struct {
	Engine       string  `yaml:"engine"`
	WhisperModel string  `yaml:"whisper_model"`
	Language     string  `yaml:"language"`
	APIKeyEnv    string  `yaml:"api_key_env"`
	BaseURL      string  `yaml:"base_url"`
	TimeoutSec   float64 `yaml:"timeout_sec"`
	WordsPerCue  int     `yaml:"words_per_cue"`
	MaxGapSec    float64 `yaml:"max_gap_sec"`
	PositionY    float64 `yaml:"position_y"`
}

type RenderConfig struct {
	Command    string  `yaml:"command"`
	Output     string  `yaml:"output"`
	FPS        int     `yaml:"fps"`
	TimeoutSec float64 `yaml:"timeout_sec"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when config.yaml leaves a key out
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Work:   "tmp",
			Output: "output",
		},
		Defaults: DefaultsConfig{
			Width:             1920,
			Height:            1080,
			BackgroundColor:   []int{249, 249, 249},
			FillerDurationSec: 10,
		},
		Narration: NarrationConfig{
			Service:     "edge_tts",
			Voice:       "en-US-GuyNeural",
			TimeoutSec:  60,
			Concurrency: 4,
			Google: GoogleTTSConfig{
				LanguageCode:    "en-US",
				SampleRateHertz: 24000,
			},
		},
		Assets: AssetsConfig{
			Concurrency:        4,
			DownloadTimeoutSec: 15,
			MaxDownloadBytes:   10 * 1024 * 1024,
			Providers: []ProviderConfig{
				{Name: "pollinations", TimeoutSec: 30},
			},
		},
		Subtitles: SubtitlesConfig{
			Engine:       "whisper_cli",
			WhisperModel: "base",
			Language:     "en",
			TimeoutSec:   120,
			WordsPerCue:  2,
			MaxGapSec:    0.6,
			PositionY:    0.4,
		},
		Render: RenderConfig{
			Output:     "final_video.mp4",
			FPS:        30,
			TimeoutSec: 1800,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads config.yaml over the defaults and validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var (
	narrationServices = map[string]bool{
		"edge_tts": true, "command": true, "openai": true,
		"azure_openai": true, "elevenlabs": true, "google": true,
	}
	keyedProviders = map[string]bool{
		"dalle": true, "leonardo": true, "pexels": true, "pixabay": true,
		"serpapi": true, "google_search": true,
	}
	keylessProviders = map[string]bool{
		"pollinations": true, "wikipedia": true, "reddit": true, "library": true,
	}
)

// Validate checks that every selected service carries the keys it needs
func (c *Config) Validate() error {
	invalid := func(path, reason string) error {
		return types.ValidationError{Path: "config." + path, Reason: reason}
	}

	if c.Defaults.Width <= 0 || c.Defaults.Height <= 0 {
		return invalid("defaults", "width and height must be positive")
	}
	if len(c.Defaults.BackgroundColor) != 3 {
		return invalid("defaults.background_color", "must be [r, g, b]")
	}

	n := c.Narration
	if !narrationServices[n.Service] {
		return invalid("narration.service", fmt.Sprintf("unknown service %q", n.Service))
	}
	if n.TimeoutSec <= 0 {
		return invalid("narration.timeout_sec", "must be positive")
	}
	if n.Concurrency < 1 {
		return invalid("narration.concurrency", "must be at least 1")
	}
	switch n.Service {
	case "command":
		if n.Command == "" {
			return invalid("narration.command", "is required for the command service")
		}
	case "openai", "elevenlabs":
		if n.APIKeyEnv == "" {
			return invalid("narration.api_key_env", "is required for "+n.Service)
		}
	case "azure_openai":
		if n.APIKeyEnv == "" {
			return invalid("narration.api_key_env", "is required for azure_openai")
		}
		if n.Azure == nil {
			return invalid("narration.azure", "is required for azure_openai")
		}
		for key, val := range map[string]string{
			"azure_endpoint":    n.Azure.Endpoint,
			"azure_deployment":  n.Azure.Deployment,
			"azure_api_version": n.Azure.APIVersion,
		} {
			if val == "" {
				return invalid("narration.azure."+key, "is required")
			}
		}
	}

	if c.Assets.Concurrency < 1 {
		return invalid("assets.concurrency", "must be at least 1")
	}
	if c.Assets.DownloadTimeoutSec <= 0 {
		return invalid("assets.download_timeout_sec", "must be positive")
	}
	for i, p := range c.Assets.Providers {
		path := fmt.Sprintf("assets.providers[%d]", i)
		if !keyedProviders[p.Name] && !keylessProviders[p.Name] {
			return invalid(path+".name", fmt.Sprintf("unknown provider %q", p.Name))
		}
		if keyedProviders[p.Name] && p.APIKeyEnv == "" {
			return invalid(path+".api_key_env", "is required for "+p.Name)
		}
		if p.TimeoutSec < 0 {
			return invalid(path+".timeout_sec", "must not be negative")
		}
		switch p.Name {
		case "google_search":
			if p.CX == "" {
				return invalid(path+".cx", "is required for google_search")
			}
		case "reddit":
			if len(p.Subreddits) == 0 {
				return invalid(path+".subreddits", "is required for reddit")
			}
		case "library":
			if c.Paths.Library == "" || c.Paths.LibraryTags == "" {
				return invalid("paths.library", "library and library_tags are required for the library provider")
			}
		}
	}

	switch c.Subtitles.Engine {
	case "whisper_cli":
	case "openai":
		if c.Subtitles.APIKeyEnv == "" {
			return invalid("subtitles.api_key_env", "is required for openai")
		}
	default:
		return invalid("subtitles.engine", fmt.Sprintf("unknown engine %q", c.Subtitles.Engine))
	}
	if c.Subtitles.WordsPerCue < 1 {
		return invalid("subtitles.words_per_cue", "must be at least 1")
	}
	return nil
}

// Timeout converts a *_sec config value into a duration
func Timeout(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

// ProviderTimeout is the per-call timeout of a provider, falling back to the
// download timeout when the provider does not set one
func (c *Config) ProviderTimeout(p ProviderConfig) time.Duration {
	if p.TimeoutSec > 0 {
		return Timeout(p.TimeoutSec)
	}
	return Timeout(c.Assets.DownloadTimeoutSec)
}

// BackgroundRGB returns the default background colour
func (c *Config) BackgroundRGB() types.RGB {
	var rgb types.RGB
	copy(rgb[:], c.Defaults.BackgroundColor)
	return rgb
}
