package handlers

import (
	log "log/slog"
	"net/http"
	"time"

	"voxpro/internal/config"
	"voxpro/internal/nlu"
)

// NewRegistry wires one handler per command. Integrations that are not
// configured stay unregistered so the dispatcher answers "not configured".
func NewRegistry(cfg *config.Config, hc *http.Client, now func() time.Time) nlu.Registry {
	clock := NewClock(now)
	search := NewSearch(SearchConfig{
		BaseURL:    cfg.Endpoints.DuckDuckGo,
		HTTPClient: hc,
		Timeout:    cfg.HTTPTimeout,
	})

	reg := nlu.Registry{
		nlu.Knowledge: NewKnowledge(KnowledgeConfig{
			BaseURL:    cfg.Endpoints.Wikipedia,
			HTTPClient: hc,
			Timeout:    cfg.HTTPTimeout,
		}),
		nlu.Search:   search,
		nlu.Time:     nlu.HandlerFunc(clock.Time),
		nlu.Date:     nlu.HandlerFunc(clock.Date),
		nlu.Greeting: nlu.HandlerFunc(Greeting),
	}

	if weather, ok := cfg.Weather.Get(); ok {
		reg[nlu.Weather] = NewWeather(WeatherConfig{
			APIKey:      weather.APIKey,
			BaseURL:     cfg.Endpoints.Weather,
			DefaultCity: cfg.DefaultCity,
			Units:       cfg.Units,
			HTTPClient:  hc,
			Timeout:     cfg.HTTPTimeout,
		})
	}

	if spotify, ok := cfg.Spotify.Get(); ok {
		reg[nlu.Music] = NewMusic(MusicConfig{
			ClientID:     spotify.ClientID,
			ClientSecret: spotify.ClientSecret,
			RefreshToken: spotify.RefreshToken,
			BaseURL:      cfg.Endpoints.Spotify,
			TokenURL:     cfg.Endpoints.SpotifyToken,
			HTTPClient:   hc,
			Timeout:      cfg.HTTPTimeout,
		})
	}

	if cfg.FallbackSearch {
		reg[nlu.Unknown] = search
	}

	log.Debug("Handlers registered", "count", len(reg))

	return reg
}
