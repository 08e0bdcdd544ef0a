package assistant

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"voxpro/internal/apperr"
	"voxpro/internal/models"
	"voxpro/internal/nlu"
)

type mockHistory struct {
	mock.Mock
}

func (m *mockHistory) Record(rec models.Record) {
	m.Called(rec)
}

func (m *mockHistory) Recent(ctx context.Context, limit int) ([]models.Record, error) {
	args := m.Called(ctx, limit)
	recs, _ := args.Get(0).([]models.Record)
	return recs, args.Error(1)
}

func (m *mockHistory) Enabled() bool {
	return m.Called().Bool(0)
}

type mockSpeaker struct {
	mock.Mock
}

func (m *mockSpeaker) Speak(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

type fakeListener struct {
	text string
	err  error
}

func (f fakeListener) Listen(context.Context) (string, error) {
	return f.text, f.err
}

type fakeClassifier struct {
	intent nlu.Intent
	err    error
}

func (f fakeClassifier) Classify(context.Context, string) (nlu.Intent, error) {
	return f.intent, f.err
}

var fixedNow = time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC)

func echo(prefix string) nlu.Handler {
	return nlu.HandlerFunc(func(_ context.Context, arg string) models.Response {
		return models.Success(prefix + arg)
	})
}

func newTestAssistant(t *testing.T, cfg Config) (*Assistant, *mockHistory) {
	t.Helper()
	hist := &mockHistory{}
	cfg.History = hist
	cfg.Now = func() time.Time { return fixedNow }
	if cfg.Registry == nil {
		cfg.Registry = nlu.Registry{
			nlu.Weather: echo("weather:"),
			nlu.Time:    echo("time:"),
		}
	}
	return New(cfg), hist
}

func TestProcessRecordsOnce(t *testing.T) {
	a, hist := newTestAssistant(t, Config{})
	hist.On("Record", mock.MatchedBy(func(rec models.Record) bool {
		return rec.Command == "weather" && rec.Success && rec.Input == "weather in London"
	})).Once()

	it := a.Process(context.Background(), Request{Text: "weather in London", Source: models.SourceText})

	assert.Equal(t, "weather:london", it.Response)
	assert.Equal(t, "london", it.Arg)
	assert.True(t, it.Success)
	assert.Equal(t, models.SourceText, it.Source)
	assert.Equal(t, fixedNow, it.Timestamp)
	assert.Len(t, it.ID, 26)
	assert.False(t, it.Spoken)
	hist.AssertExpectations(t)
	hist.AssertNumberOfCalls(t, "Record", 1)
}

func TestProcessFailuresAreRecorded(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		command string
		kind    apperr.Kind
	}{
		{"empty input", "   ", "unknown", apperr.RecognitionFailure},
		{"unknown input", "blorp", "unknown", apperr.InvalidArgument},
		{"unconfigured service", "play some jazz", "music", apperr.AuthFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, hist := newTestAssistant(t, Config{})
			hist.On("Record", mock.Anything).Once()

			it := a.Process(context.Background(), Request{Text: tt.input, Source: models.SourceText})

			assert.False(t, it.Success)
			assert.Equal(t, tt.command, it.Command)
			assert.Equal(t, tt.kind, it.Kind)
			assert.NotEmpty(t, it.Response)
			hist.AssertNumberOfCalls(t, "Record", 1)
		})
	}
}

func TestProcessSpeaks(t *testing.T) {
	speaker := &mockSpeaker{}
	speaker.On("Speak", mock.Anything, "time:").Return(nil).Once()

	a, hist := newTestAssistant(t, Config{Speaker: speaker})
	hist.On("Record", mock.Anything).Once()

	it := a.Process(context.Background(), Request{Text: "what time is it"})
	assert.True(t, it.Spoken)
	speaker.AssertExpectations(t)
}

func TestSpeechFailureStillAnswers(t *testing.T) {
	speaker := &mockSpeaker{}
	speaker.On("Speak", mock.Anything, mock.Anything).Return(errors.New("no audio device")).Once()

	a, hist := newTestAssistant(t, Config{Speaker: speaker})
	hist.On("Record", mock.Anything).Once()

	it := a.Process(context.Background(), Request{Text: "what time is it"})
	assert.True(t, it.Success)
	assert.False(t, it.Spoken)
	hist.AssertNumberOfCalls(t, "Record", 1)
}

func TestMuteSkipsSpeech(t *testing.T) {
	speaker := &mockSpeaker{}
	a, hist := newTestAssistant(t, Config{Speaker: speaker})
	hist.On("Record", mock.Anything).Once()

	a.Process(context.Background(), Request{Text: "what time is it", Mute: true})
	speaker.AssertNotCalled(t, "Speak", mock.Anything, mock.Anything)
}

func TestClassifierFallback(t *testing.T) {
	a, hist := newTestAssistant(t, Config{
		Classifier: fakeClassifier{intent: nlu.Intent{Command: nlu.Weather, Arg: "paris"}},
	})
	hist.On("Record", mock.Anything).Once()

	it := a.Process(context.Background(), Request{Text: "is it going to rain in paris"})
	assert.Equal(t, "weather", it.Command)
	assert.Equal(t, "weather:paris", it.Response)
}

func TestClassifierErrorKeepsUnknown(t *testing.T) {
	a, hist := newTestAssistant(t, Config{
		Classifier: fakeClassifier{err: errors.New("timeout")},
	})
	hist.On("Record", mock.Anything).Once()

	it := a.Process(context.Background(), Request{Text: "blorp"})
	assert.Equal(t, "unknown", it.Command)
	assert.False(t, it.Success)
}

func TestListen(t *testing.T) {
	t.Run("no microphone", func(t *testing.T) {
		a, hist := newTestAssistant(t, Config{})
		_, err := a.Listen(context.Background())
		assert.ErrorIs(t, err, ErrNoMicrophone)
		hist.AssertNotCalled(t, "Record", mock.Anything)
	})

	t.Run("transcribed", func(t *testing.T) {
		a, hist := newTestAssistant(t, Config{Microphone: fakeListener{text: "weather in Oslo"}})
		hist.On("Record", mock.Anything).Once()

		it, err := a.Listen(context.Background())
		require.NoError(t, err)
		assert.Equal(t, models.SourceVoice, it.Source)
		assert.Equal(t, "weather:oslo", it.Response)
		hist.AssertNumberOfCalls(t, "Record", 1)
	})

	t.Run("capture failure", func(t *testing.T) {
		capErr := apperr.New(apperr.RecognitionFailure, "capture", "Sorry, I didn't hear anything. Please try again.", nil)
		a, hist := newTestAssistant(t, Config{Microphone: fakeListener{err: capErr}})
		hist.On("Record", mock.Anything).Once()

		it, err := a.Listen(context.Background())
		require.NoError(t, err)
		assert.False(t, it.Success)
		assert.Equal(t, apperr.RecognitionFailure, it.Kind)
		assert.Equal(t, "Sorry, I didn't hear anything. Please try again.", it.Response)
		hist.AssertNumberOfCalls(t, "Record", 1)
	})
}

func TestQuick(t *testing.T) {
	a, hist := newTestAssistant(t, Config{})
	hist.On("Record", mock.Anything).Twice()

	it, err := a.Quick(context.Background(), "weather", "Rome")
	require.NoError(t, err)
	assert.Equal(t, models.SourceQuick, it.Source)
	assert.Equal(t, "weather Rome", it.Input)
	assert.Equal(t, "weather:rome", it.Response)

	it, err = a.Quick(context.Background(), "time", "")
	require.NoError(t, err)
	assert.Equal(t, "time:", it.Response)

	_, err = a.Quick(context.Background(), "dance", "")
	assert.ErrorIs(t, err, ErrUnknownAction)
	hist.AssertNumberOfCalls(t, "Record", 2)
}

func TestSubscribe(t *testing.T) {
	a, hist := newTestAssistant(t, Config{})
	hist.On("Record", mock.Anything)

	feed, cancel := a.Subscribe()
	a.Process(context.Background(), Request{Text: "what time is it"})

	select {
	case it := <-feed:
		assert.Equal(t, "time", it.Command)
	case <-time.After(time.Second):
		t.Fatal("no interaction published")
	}

	cancel()
	cancel()
	_, open := <-feed
	assert.False(t, open)

	// publishing after unsubscribe must not panic
	a.Process(context.Background(), Request{Text: "what time is it"})
}

func TestOneRequestAtATime(t *testing.T) {
	var active, peak atomic.Int32
	slow := nlu.HandlerFunc(func(context.Context, string) models.Response {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return models.Success("ok")
	})

	a, hist := newTestAssistant(t, Config{Registry: nlu.Registry{nlu.Time: slow}})
	hist.On("Record", mock.Anything)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Process(context.Background(), Request{Text: "time"})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	hist.AssertNumberOfCalls(t, "Record", 8)
}

func TestStatus(t *testing.T) {
	a, hist := newTestAssistant(t, Config{Microphone: fakeListener{}})
	hist.On("Enabled").Return(true)

	st := a.Status()
	assert.True(t, st.Services["weather"])
	assert.False(t, st.Services["music"])
	assert.True(t, st.History)
	assert.True(t, st.Microphone)
	assert.False(t, st.Speech)
	assert.False(t, st.Fallback)
}
