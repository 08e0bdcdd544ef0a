package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	log "log/slog"
	"strings"

	openai "github.com/openai/openai-go/v3"
)

const systemPrompt = `
You are the intent classifier of a voice assistant.
Your ONLY job is to convert the user's utterance into a minimal structured JSON.

GENERAL RULES:
1. Do NOT converse.
2. Do NOT answer the question.
3. Output ONLY JSON. No markdown.

OUTPUT FORMAT:
{
  "command": "<string>",
  "arg": "<string or empty>"
}

COMMANDS:
- "weather"   arg = city name, empty if none given
- "knowledge" arg = topic to look up in an encyclopedia
- "music"     arg = song and/or artist to play
- "search"    arg = web search query
- "time"      arg = empty
- "date"      arg = empty
- "greeting"  arg = empty
- "unknown"   if nothing fits

Never invent arguments that are not in the utterance.
`

// Classifier is the optional second opinion for utterances the keyword
// router could not place.
type Classifier struct {
	client openai.Client
	model  openai.ChatModel
}

func NewClassifier(client openai.Client, model string) *Classifier {
	if model == "" {
		model = openai.ChatModelGPT5Nano
	}
	return &Classifier{client: client, model: model}
}

type classification struct {
	Command string `json:"command"`
	Arg     string `json:"arg"`
}

func (c *Classifier) Classify(ctx context.Context, utterance string) (Intent, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(utterance),
		},
		Model: c.model,
	})
	if err != nil {
		return Intent{}, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Intent{}, fmt.Errorf("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return Intent{}, fmt.Errorf("empty message content")
	}

	log.Debug("Classified", "data", content)

	var out classification
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return Intent{}, fmt.Errorf("unmarshal classification: %w (raw: %s)", err, content)
	}

	cmd, err := ParseCommand(out.Command)
	if err != nil {
		cmd = Unknown
	}

	return Intent{
		Command:   cmd,
		Arg:       Normalize(strings.TrimSpace(out.Arg)),
		Utterance: utterance,
	}, nil
}
