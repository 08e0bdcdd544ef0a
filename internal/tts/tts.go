package tts

import (
	"context"
	"fmt"
	"strings"
)

// Speaker turns response text into audio on the local output device.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Nop is used when speech output is switched off.
type Nop struct{}

func (Nop) Speak(context.Context, string) error { return nil }

type Options struct {
	Backend  string // espeak, openai or none
	Language string
	OpenAI   *OpenAIConfig
}

func New(opt Options) (Speaker, error) {
	switch strings.ToLower(opt.Backend) {
	case "", "none", "off":
		return Nop{}, nil
	case "espeak":
		return NewEspeak(opt.Language), nil
	case "openai":
		if opt.OpenAI == nil {
			return nil, fmt.Errorf("openai speech needs OPENAI_API_KEY")
		}
		return NewOpenAI(*opt.OpenAI), nil
	default:
		return nil, fmt.Errorf("unknown speech backend %q", opt.Backend)
	}
}
