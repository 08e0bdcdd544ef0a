package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/go-resty/resty/v2"

	"voxpro/internal/apperr"
	"voxpro/internal/models"
)

const DefaultWikipediaURL = "https://en.wikipedia.org"

type KnowledgeConfig struct {
	BaseURL    string
	Sentences  int
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Knowledge reads the summary of an encyclopedia article.
type Knowledge struct {
	client    *resty.Client
	sentences int
}

func NewKnowledge(cfg KnowledgeConfig) *Knowledge {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultWikipediaURL
	}
	if cfg.Sentences <= 0 {
		cfg.Sentences = 2
	}

	return &Knowledge{
		client:    newRestClient(cfg.HTTPClient, cfg.BaseURL, cfg.Timeout),
		sentences: cfg.Sentences,
	}
}

type summaryPayload struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Extract string `json:"extract"`
}

func (k *Knowledge) Handle(ctx context.Context, topic string) models.Response {
	summary, err := k.Summary(ctx, topic)
	if err != nil {
		return models.Failure(err)
	}
	return models.Success(summary)
}

func (k *Knowledge) Summary(ctx context.Context, topic string) (string, error) {
	const op = "knowledge.summary"

	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", apperr.New(apperr.InvalidArgument, op, "Specify a search term.", nil)
	}

	var payload summaryPayload
	resp, err := k.client.R().
		SetContext(ctx).
		SetPathParam("title", wikiTitle(topic)).
		SetResult(&payload).
		Get("/api/rest_v1/page/summary/{title}")
	if err != nil {
		return "", transportError(op, err)
	}
	if resp.IsError() {
		return "", statusError(op, resp, "No information found. Try different terms.")
	}

	switch {
	case payload.Type == "disambiguation":
		return "", apperr.New(apperr.InvalidArgument, op,
			fmt.Sprintf("Multiple matches for %s. Be more specific.", topic), nil)
	case strings.TrimSpace(payload.Extract) == "":
		return "", apperr.New(apperr.InvalidArgument, op, "No information found. Try different terms.", nil)
	}

	return firstSentences(payload.Extract, k.sentences), nil
}

// firstSentences keeps the first n sentences of text.
func firstSentences(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	count := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if i+1 == len(text) || text[i+1] == ' ' {
				count++
				if count == n {
					return text[:i+1]
				}
			}
		}
	}
	return text
}

// wikiTitle upper-cases only the first rune, the way Wikipedia stores titles
// ("united states" becomes "United_states").
func wikiTitle(topic string) string {
	r := []rune(strings.Join(strings.Fields(topic), "_"))
	if len(r) == 0 {
		return ""
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
