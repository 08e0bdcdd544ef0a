package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"voxpro/internal/apperr"
	"voxpro/internal/models"
)

const DefaultDuckDuckGoURL = "https://api.duckduckgo.com"

type SearchConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Search asks the DuckDuckGo instant answer API. Results are reported as the
// provider returns them.
type Search struct {
	client *resty.Client
}

func NewSearch(cfg SearchConfig) *Search {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultDuckDuckGoURL
	}
	return &Search{client: newRestClient(cfg.HTTPClient, cfg.BaseURL, cfg.Timeout)}
}

type relatedTopic struct {
	Text     string `json:"Text"`
	FirstURL string `json:"FirstURL"`
}

type instantAnswer struct {
	Answer         string         `json:"Answer"`
	AbstractText   string         `json:"AbstractText"`
	AbstractSource string         `json:"AbstractSource"`
	RelatedTopics  []relatedTopic `json:"RelatedTopics"`
}

func (s *Search) Handle(ctx context.Context, query string) models.Response {
	answer, err := s.Query(ctx, query)
	if err != nil {
		return models.Failure(err)
	}
	return models.Success(answer)
}

func (s *Search) Query(ctx context.Context, query string) (string, error) {
	const op = "search.query"

	query = strings.TrimSpace(query)
	if query == "" {
		return "", apperr.New(apperr.InvalidArgument, op, "Specify a search.", nil)
	}

	var payload instantAnswer
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":             query,
			"format":        "json",
			"no_html":       "1",
			"skip_disambig": "1",
		}).
		// the API answers with application/x-javascript
		ForceContentType("application/json").
		SetResult(&payload).
		Get("/")
	if err != nil {
		return "", transportError(op, err)
	}
	if resp.IsError() {
		return "", statusError(op, resp, fmt.Sprintf("No results for %s.", query))
	}

	switch {
	case payload.Answer != "":
		return payload.Answer, nil
	case payload.AbstractText != "":
		if payload.AbstractSource != "" {
			return fmt.Sprintf("%s (%s)", firstSentences(payload.AbstractText, 2), payload.AbstractSource), nil
		}
		return firstSentences(payload.AbstractText, 2), nil
	}
	for _, topic := range payload.RelatedTopics {
		if topic.FirstURL != "" {
			return fmt.Sprintf("Top result for %s: %s", query, topic.FirstURL), nil
		}
	}

	return fmt.Sprintf("Searching the web for %s: https://duckduckgo.com/?q=%s", query, url.QueryEscape(query)), nil
}
