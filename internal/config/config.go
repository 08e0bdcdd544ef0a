package config

import (
	"errors"
	"fmt"
	"io/fs"
	log "log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/mo"
	"gopkg.in/yaml.v3"
)

type WeatherConfig struct {
	APIKey string
}

func (c WeatherConfig) IsConfigured() bool {
	return c.APIKey != ""
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// IsConfigured returns true if the client credentials and a refresh token are present
func (c SpotifyConfig) IsConfigured() bool {
	return c.ClientID != "" &&
		c.ClientSecret != "" &&
		c.RefreshToken != ""
}

type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Bucket          string
}

// IsConfigured only needs the bucket; credentials may come from the default
// AWS chain.
func (c S3Config) IsConfigured() bool {
	return c.Bucket != ""
}

type OpenAIConfig struct {
	APIKey string
}

func (c OpenAIConfig) IsConfigured() bool {
	return c.APIKey != ""
}

type Endpoints struct {
	Weather      string `yaml:"weather,omitempty"`
	Wikipedia    string `yaml:"wikipedia,omitempty"`
	Spotify      string `yaml:"spotify,omitempty"`
	SpotifyToken string `yaml:"spotify_token,omitempty"`
	DuckDuckGo   string `yaml:"duckduckgo,omitempty"`
	S3           string `yaml:"s3,omitempty"`
	OpenAI       string `yaml:"openai,omitempty"`
}

// Settings are the non-secret knobs read from the YAML settings file.
type Settings struct {
	DefaultCity    string        `yaml:"default_city"`
	Units          string        `yaml:"units"`
	Language       string        `yaml:"language"`
	Speech         string        `yaml:"speech"` // espeak, openai or none
	STT            string        `yaml:"stt"`    // whisper or openai
	WhisperModel   string        `yaml:"whisper_model"`
	Listen         string        `yaml:"listen"`
	Socket         string        `yaml:"socket"`
	FallbackSearch bool          `yaml:"fallback_search"`
	LLMFallback    bool          `yaml:"llm_fallback"`
	Duck           bool          `yaml:"duck"`
	HTTPTimeout    time.Duration `yaml:"http_timeout"`
	HistoryLimit   int           `yaml:"history_limit"`
	Endpoints      Endpoints     `yaml:"endpoints"`
}

func DefaultSettings() Settings {
	return Settings{
		DefaultCity:  "New York",
		Units:        "metric",
		Language:     "en",
		Speech:       "espeak",
		STT:          "whisper",
		WhisperModel: "third_party/whisper.cpp/models/ggml-medium.bin",
		Socket:       "/tmp/voxpro.sock",
		Duck:         true,
		HTTPTimeout:  10 * time.Second,
		HistoryLimit: 5,
	}
}

type Config struct {
	Settings

	// Optional integrations. None disables the matching feature.
	Weather     mo.Option[WeatherConfig]
	Spotify     mo.Option[SpotifyConfig]
	S3          mo.Option[S3Config]
	OpenAI      mo.Option[OpenAIConfig]
	DatabaseURL mo.Option[string]
	HistoryFile mo.Option[string]
}

// Load reads envFile with godotenv (a missing file is fine), then the YAML
// settings file when settingsPath is set, then the environment.
func Load(envFile, settingsPath string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			log.Debug("Could not load env file, continuing with system env vars", "file", envFile, "err", err)
		}
	}

	settings, err := LoadSettings(settingsPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Settings: settings,
		Weather: configured(WeatherConfig{
			APIKey: os.Getenv("WEATHER_API_KEY"),
		}),
		Spotify: configured(SpotifyConfig{
			ClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
			ClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
			RefreshToken: os.Getenv("SPOTIFY_REFRESH_TOKEN"),
		}),
		S3: configured(S3Config{
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			Region:          getEnvWithDefault("AWS_REGION", "us-east-1"),
			Bucket:          os.Getenv("S3_BUCKET_NAME"),
		}),
		OpenAI: configured(OpenAIConfig{
			APIKey: os.Getenv("OPENAI_API_KEY"),
		}),
		DatabaseURL: nonEmpty(os.Getenv("HISTORY_DATABASE_URL")),
		HistoryFile: nonEmpty(os.Getenv("HISTORY_FILE")),
	}

	cfg.logIntegrations()

	return cfg, nil
}

// LoadSettings decodes path over DefaultSettings. An empty path or a missing
// file yields the defaults.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn("Settings file not found, using defaults", "path", path)
			return settings, nil
		}
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}

	if err := yaml.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
	}

	return hydrateDefaults(settings), nil
}

func hydrateDefaults(s Settings) Settings {
	def := DefaultSettings()
	if s.DefaultCity == "" {
		s.DefaultCity = def.DefaultCity
	}
	if s.Units != "metric" && s.Units != "imperial" {
		s.Units = def.Units
	}
	if s.Language == "" {
		s.Language = def.Language
	}
	if s.HTTPTimeout <= 0 {
		s.HTTPTimeout = def.HTTPTimeout
	}
	if s.HistoryLimit <= 0 {
		s.HistoryLimit = def.HistoryLimit
	}
	if s.Socket == "" {
		s.Socket = def.Socket
	}
	return s
}

func (c *Config) logIntegrations() {
	status := []struct {
		name string
		ok   bool
	}{
		{"weather", c.Weather.IsPresent()},
		{"spotify", c.Spotify.IsPresent()},
		{"s3", c.S3.IsPresent()},
		{"openai", c.OpenAI.IsPresent()},
	}
	for _, s := range status {
		if s.ok {
			log.Info("Integration configured", "name", s.name)
		} else {
			log.Warn("Integration not configured, feature disabled", "name", s.name)
		}
	}
}

type checkable interface {
	IsConfigured() bool
}

func configured[T checkable](c T) mo.Option[T] {
	if c.IsConfigured() {
		return mo.Some(c)
	}
	return mo.None[T]()
}

func nonEmpty(s string) mo.Option[string] {
	if s == "" {
		return mo.None[string]()
	}
	return mo.Some(s)
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
