package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxpro/internal/assistant"
	"voxpro/internal/ipc"
	"voxpro/internal/models"
	"voxpro/internal/nlu"
)

func startDaemon(t *testing.T) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "vx")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "d.sock")

	srv, err := ipc.Listen(path)
	require.NoError(t, err)

	a := assistant.New(assistant.Config{
		Registry: nlu.Registry{
			nlu.Greeting: nlu.HandlerFunc(func(context.Context, string) models.Response {
				return models.Success("Hello! How can I help?")
			}),
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, ipc.NewHandler(a, 5))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = srv.Close()
	})
	return path
}

func execCtl(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewCtlCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestCtlAsk(t *testing.T) {
	socket := startDaemon(t)

	out, err := execCtl(t, "--socket", socket, "ask", "hello", "there")
	require.NoError(t, err)
	assert.Equal(t, "✓ [greeting] Hello! How can I help?\n", out)
}

func TestCtlAskUnknown(t *testing.T) {
	socket := startDaemon(t)

	out, err := execCtl(t, "--socket", socket, "ask", "blorp")
	require.NoError(t, err)
	assert.Contains(t, out, "✗ [unknown]")
}

func TestCtlStatus(t *testing.T) {
	socket := startDaemon(t)

	out, err := execCtl(t, "--socket", socket, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "services:   greeting\n")
	assert.Contains(t, out, "microphone: off\n")
}

func TestCtlHistoryEmpty(t *testing.T) {
	socket := startDaemon(t)

	out, err := execCtl(t, "--socket", socket, "history", "--limit", "3")
	require.NoError(t, err)
	assert.Equal(t, msgNoHistory+"\n", out)
}

func TestCtlTriggerWithoutMicrophone(t *testing.T) {
	socket := startDaemon(t)

	_, err := execCtl(t, "--socket", socket, "trigger")
	assert.EqualError(t, err, "microphone not configured")
}

func TestCtlWithoutDaemon(t *testing.T) {
	_, err := execCtl(t, "--socket", filepath.Join(t.TempDir(), "none.sock"), "status")
	assert.ErrorContains(t, err, "daemon not running")
}

func TestRootAsk(t *testing.T) {
	for _, key := range []string{
		"WEATHER_API_KEY", "SPOTIFY_CLIENT_ID", "S3_BUCKET_NAME", "OPENAI_API_KEY",
		"HISTORY_DATABASE_URL", "HISTORY_FILE",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--env", filepath.Join(t.TempDir(), "none.env"), "--mute", "ask", "what", "time", "is", "it"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "✓ [time] The time is ")
}

func TestPrintRecords(t *testing.T) {
	var out bytes.Buffer
	printRecords(&out, []models.Record{{
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local),
		Command:   "weather",
		Source:    models.SourceVoice,
		Input:     "weather in london",
		Response:  "London: 18°C",
		Success:   true,
	}})
	assert.Equal(t, "2024-05-01 12:00:00  weather   voice weather in london => London: 18°C\n", out.String())
}
