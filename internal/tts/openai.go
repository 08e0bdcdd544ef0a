package tts

import (
	"context"
	"fmt"

	"github.com/faiface/beep/mp3"
	openai "github.com/openai/openai-go/v3"

	"voxpro/internal/audio"
)

type OpenAIConfig struct {
	Client openai.Client
	Model  openai.SpeechModel
	Voice  openai.AudioSpeechNewParamsVoice
}

// OpenAI synthesises speech remotely and plays the returned mp3.
type OpenAI struct {
	cfg OpenAIConfig
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = openai.SpeechModelGPT4oMiniTTS
	}
	if cfg.Voice == "" {
		cfg.Voice = openai.AudioSpeechNewParamsVoiceAlloy
	}
	return &OpenAI{cfg: cfg}
}

func (o *OpenAI) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	resp, err := o.cfg.Client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          o.cfg.Model,
		Voice:          o.cfg.Voice,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return fmt.Errorf("speech request: %w", err)
	}

	streamer, format, err := mp3.Decode(resp.Body)
	if err != nil {
		resp.Body.Close()
		return fmt.Errorf("decode speech: %w", err)
	}
	defer streamer.Close()

	return audio.Play(ctx, streamer, format)
}
