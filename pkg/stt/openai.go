package stt

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	openai "github.com/openai/openai-go/v3"

	"voxpro/pkg/audioconv"
)

// OpenAI uploads the recording as WAV to the transcription endpoint.
type OpenAI struct {
	client openai.Client
	model  openai.AudioModel
}

func NewOpenAI(client openai.Client, model openai.AudioModel) *OpenAI {
	if model == "" {
		model = openai.AudioModelWhisper1
	}
	return &OpenAI{client: client, model: model}
}

func (o *OpenAI) TranscribePCM(ctx context.Context, pcm16k []float32, opt Options) (Result, error) {
	if len(pcm16k) == 0 {
		return Result{}, ErrNoAudio
	}

	// the wav encoder needs to seek back to patch the header
	f, err := os.CreateTemp("", "voxpro-*.wav")
	if err != nil {
		return Result{}, err
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if err := audioconv.EncodeWAV(f, pcm16k, audioconv.TargetRate); err != nil {
		return Result{}, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Result{}, err
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(f, "speech.wav", "audio/wav"),
		Model: o.model,
	}
	if opt.Language != "" && opt.Language != "auto" {
		params.Language = openai.String(opt.Language)
	}
	if opt.InitialPrompt != "" {
		params.Prompt = openai.String(opt.InitialPrompt)
	}

	resp, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("transcription request: %w", err)
	}

	return Result{
		Text:     strings.TrimSpace(resp.Text),
		Language: opt.Language,
	}, nil
}
