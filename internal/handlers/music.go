package handlers

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"

	"voxpro/internal/apperr"
	"voxpro/internal/models"
)

const (
	DefaultSpotifyURL      = "https://api.spotify.com"
	DefaultSpotifyTokenURL = "https://accounts.spotify.com/api/token"
)

type MusicConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	BaseURL      string
	TokenURL     string
	HTTPClient   *http.Client
	Timeout      time.Duration
}

// Music searches Spotify for a track and starts playback on the user's
// active device. It only refreshes tokens; obtaining the refresh token is
// done out of band.
type Music struct {
	client *resty.Client
	tokens oauth2.TokenSource
}

func NewMusic(cfg MusicConfig) *Music {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSpotifyURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultSpotifyTokenURL
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	// the token source keeps this context for every refresh
	tokenCtx := context.Background()
	if cfg.HTTPClient != nil {
		tokenCtx = context.WithValue(tokenCtx, oauth2.HTTPClient, cfg.HTTPClient)
	}

	return &Music{
		client: newRestClient(cfg.HTTPClient, cfg.BaseURL, cfg.Timeout),
		tokens: oauthCfg.TokenSource(tokenCtx, &oauth2.Token{RefreshToken: cfg.RefreshToken}),
	}
}

type spotifyTrack struct {
	Name    string `json:"name"`
	URI     string `json:"uri"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
}

type spotifySearch struct {
	Tracks struct {
		Items []spotifyTrack `json:"items"`
	} `json:"tracks"`
}

type spotifyError struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
		Reason  string `json:"reason"`
	} `json:"error"`
}

func (m *Music) Handle(ctx context.Context, song string) models.Response {
	msg, err := m.Play(ctx, song)
	if err != nil {
		return models.Failure(err)
	}
	return models.Success(msg)
}

// Play finds the best match for query and starts it.
func (m *Music) Play(ctx context.Context, query string) (string, error) {
	const op = "music.play"

	query = strings.TrimSpace(query)
	if query == "" {
		return "", apperr.New(apperr.InvalidArgument, op, "Specify a song.", nil)
	}

	token, err := m.tokens.Token()
	if err != nil {
		return "", tokenError(op, err)
	}

	track, err := m.search(ctx, token.AccessToken, query)
	if err != nil {
		return "", err
	}

	var apiErr spotifyError
	resp, err := m.client.R().
		SetContext(ctx).
		SetAuthToken(token.AccessToken).
		SetBody(map[string][]string{"uris": {track.URI}}).
		SetError(&apiErr).
		Put("/v1/me/player/play")
	if err != nil {
		return "", transportError(op, err)
	}
	if resp.IsError() {
		log.Debug("Spotify playback refused", "status", resp.StatusCode(), "reason", apiErr.Error.Reason, "message", apiErr.Error.Message)
		if resp.StatusCode() == http.StatusNotFound || apiErr.Error.Reason == "NO_ACTIVE_DEVICE" {
			return "", apperr.New(apperr.InvalidArgument, op,
				"No active Spotify device. Open Spotify on one of your devices and try again.",
				&httpStatusError{code: resp.StatusCode(), status: resp.Status()})
		}
		return "", statusError(op, resp, "")
	}

	artist := "unknown artist"
	if len(track.Artists) > 0 {
		artist = track.Artists[0].Name
	}
	return fmt.Sprintf("Now playing: %s by %s", track.Name, artist), nil
}

func (m *Music) search(ctx context.Context, accessToken, query string) (spotifyTrack, error) {
	const op = "music.search"

	var result spotifySearch
	resp, err := m.client.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetQueryParams(map[string]string{
			"q":     query,
			"type":  "track",
			"limit": "1",
		}).
		SetResult(&result).
		Get("/v1/search")
	if err != nil {
		return spotifyTrack{}, transportError(op, err)
	}
	if resp.IsError() {
		return spotifyTrack{}, statusError(op, resp, "Song not found.")
	}
	if len(result.Tracks.Items) == 0 {
		return spotifyTrack{}, apperr.New(apperr.InvalidArgument, op, "Song not found.", nil)
	}

	return result.Tracks.Items[0], nil
}

// tokenError separates a rejected refresh token from an unreachable token
// endpoint.
func tokenError(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return apperr.New(apperr.AuthFailure, op,
			"Spotify authorization has expired. Please reconnect your account.", err)
	}
	return transportError(op, err)
}
