package handlers

import (
	"context"
	"fmt"
	log "log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"voxpro/internal/apperr"
	"voxpro/internal/models"
)

const DefaultWeatherURL = "https://api.openweathermap.org"

type WeatherConfig struct {
	APIKey      string
	BaseURL     string
	DefaultCity string
	Units       string // metric or imperial
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// Weather answers with the current conditions for a city from OpenWeatherMap.
type Weather struct {
	client      *resty.Client
	apiKey      string
	defaultCity string
	units       string
}

func NewWeather(cfg WeatherConfig) *Weather {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultWeatherURL
	}
	if cfg.DefaultCity == "" {
		cfg.DefaultCity = "New York"
	}
	if cfg.Units != "imperial" {
		cfg.Units = "metric"
	}

	return &Weather{
		client:      newRestClient(cfg.HTTPClient, cfg.BaseURL, cfg.Timeout),
		apiKey:      cfg.APIKey,
		defaultCity: cfg.DefaultCity,
		units:       cfg.Units,
	}
}

type weatherPayload struct {
	Name string `json:"name"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
}

type weatherError struct {
	Message string `json:"message"`
}

func (w *Weather) Handle(ctx context.Context, city string) models.Response {
	report, err := w.Lookup(ctx, city)
	if err != nil {
		return models.Failure(err)
	}
	return models.Success(report)
}

// Lookup fetches and formats the current weather for city.
func (w *Weather) Lookup(ctx context.Context, city string) (string, error) {
	const op = "weather.lookup"

	city = strings.TrimSpace(city)
	if city == "" {
		city = w.defaultCity
	}

	var (
		payload weatherPayload
		apiErr  weatherError
	)

	resp, err := w.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":     city,
			"appid": w.apiKey,
			"units": w.units,
		}).
		SetResult(&payload).
		SetError(&apiErr).
		Get("/data/2.5/weather")
	if err != nil {
		return "", transportError(op, err)
	}
	if resp.IsError() {
		log.Debug("Weather provider error", "status", resp.StatusCode(), "message", apiErr.Message)
		return "", statusError(op, resp, fmt.Sprintf("Sorry, I couldn't find the weather for %s.", titleCase(city)))
	}

	if payload.Name == "" && len(payload.Weather) == 0 {
		return "", apperr.New(apperr.Unclassified, op, "", fmt.Errorf("empty weather payload"))
	}

	name := payload.Name
	if name == "" {
		name = titleCase(city)
	}
	description := "no description"
	if len(payload.Weather) > 0 && payload.Weather[0].Description != "" {
		description = payload.Weather[0].Description
	}

	unit := "°C"
	if w.units == "imperial" {
		unit = "°F"
	}

	return fmt.Sprintf("Weather in %s: %s. Temperature: %.1f%s, feels like %.1f%s. Humidity: %d%%",
		name, description,
		payload.Main.Temp, unit,
		payload.Main.FeelsLike, unit,
		payload.Main.Humidity,
	), nil
}

func titleCase(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		r := []rune(f)
		fields[i] = strings.ToUpper(string(r[0])) + string(r[1:])
	}
	return strings.Join(fields, " ")
}
