package stt

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIUploadsWAV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		file, header, err := r.FormFile("file")
		if assert.NoError(t, err) {
			defer file.Close()
			raw, _ := io.ReadAll(file)
			assert.Equal(t, "speech.wav", header.Filename)
			assert.Equal(t, "RIFF", string(raw[:4]))
		}
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "en", r.FormValue("language"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"  what's the weather in london  "}`)
	}))
	defer srv.Close()

	client := openai.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(srv.URL+"/v1/"),
		option.WithMaxRetries(0),
	)

	res, err := NewOpenAI(client, "").TranscribePCM(context.Background(), make([]float32, 1600), Options{Language: "en"})
	require.NoError(t, err)
	assert.Equal(t, "what's the weather in london", res.Text)
}

func TestOpenAIRejectsEmptyAudio(t *testing.T) {
	_, err := NewOpenAI(openai.NewClient(option.WithAPIKey("k")), "").TranscribePCM(context.Background(), nil, Options{})
	assert.ErrorIs(t, err, ErrNoAudio)
}
