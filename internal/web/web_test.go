package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxpro/internal/assistant"
	"voxpro/internal/models"
	"voxpro/internal/nlu"
	"voxpro/pkg/protocol"
)

type memoryHistory struct {
	mu      sync.Mutex
	records []models.Record
	err     error
}

func (m *memoryHistory) Record(rec models.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
}

func (m *memoryHistory) Recent(_ context.Context, limit int) ([]models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []models.Record
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

func (m *memoryHistory) Enabled() bool { return true }

type fakeMic struct{}

func (fakeMic) Listen(context.Context) (string, error) { return "what time is it", nil }

func newTestServer(t *testing.T, mic assistant.Listener, hist *memoryHistory) *httptest.Server {
	t.Helper()

	reg := nlu.Registry{
		nlu.Time: nlu.HandlerFunc(func(context.Context, string) models.Response {
			return models.Success("The time is 10:00")
		}),
		nlu.Weather: nlu.HandlerFunc(func(_ context.Context, city string) models.Response {
			if city == "" {
				city = "new york"
			}
			return models.Success("weather in " + city)
		}),
	}

	cfg := assistant.Config{Registry: reg, History: hist}
	if mic != nil {
		cfg.Microphone = mic
	}

	srv := httptest.NewServer(NewServer(Config{Service: assistant.New(cfg)}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestAsk(t *testing.T) {
	hist := &memoryHistory{}
	srv := newTestServer(t, nil, hist)

	resp := postJSON(t, srv.URL+"/api/ask", `{"text":"What time is it?"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	it := decode[models.Interaction](t, resp)
	assert.Equal(t, "The time is 10:00", it.Response)
	assert.Equal(t, "time", it.Command)
	assert.Equal(t, models.SourceText, it.Source)
	recent, err := hist.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestAskRejectsBadBody(t *testing.T) {
	srv := newTestServer(t, nil, &memoryHistory{})

	resp := postJSON(t, srv.URL+"/api/ask", `{"text":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListen(t *testing.T) {
	t.Run("without microphone", func(t *testing.T) {
		srv := newTestServer(t, nil, &memoryHistory{})
		resp := postJSON(t, srv.URL+"/api/listen", "")
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("with microphone", func(t *testing.T) {
		srv := newTestServer(t, fakeMic{}, &memoryHistory{})
		resp := postJSON(t, srv.URL+"/api/listen", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		it := decode[models.Interaction](t, resp)
		assert.Equal(t, models.SourceVoice, it.Source)
		assert.Equal(t, "The time is 10:00", it.Response)
	})
}

func TestQuick(t *testing.T) {
	srv := newTestServer(t, nil, &memoryHistory{})

	resp := postJSON(t, srv.URL+"/api/quick/weather", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "weather in new york", decode[models.Interaction](t, resp).Response)

	resp = postJSON(t, srv.URL+"/api/quick/weather", `{"arg":"Paris"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "weather in paris", decode[models.Interaction](t, resp).Response)

	resp = postJSON(t, srv.URL+"/api/quick/dance", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHistory(t *testing.T) {
	hist := &memoryHistory{}
	srv := newTestServer(t, nil, hist)

	for _, q := range []string{"time", "weather in oslo", "time"} {
		postJSON(t, srv.URL+"/api/ask", `{"text":"`+q+`"}`)
	}

	resp, err := http.Get(srv.URL + "/api/history?limit=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[struct {
		Records []models.Record `json:"records"`
	}](t, resp)
	require.Len(t, body.Records, 2)
	assert.Equal(t, "time", body.Records[0].Command)
	assert.Equal(t, "weather", body.Records[1].Command)

	bad, err := http.Get(srv.URL + "/api/history?limit=zero")
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestHistoryUnavailable(t *testing.T) {
	srv := newTestServer(t, nil, &memoryHistory{err: errors.New("bucket gone")})

	resp, err := http.Get(srv.URL + "/api/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestStatusAndIndex(t *testing.T) {
	srv := newTestServer(t, nil, &memoryHistory{})

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	st := decode[statusResponse](t, resp)
	assert.True(t, st.Services["time"])
	assert.False(t, st.Services["music"])
	assert.True(t, st.History)
	assert.False(t, st.Microphone)

	page, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer page.Body.Close()
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, page.Header.Get("Content-Type"), "text/html")
}

func TestWebSocketPushesInteractions(t *testing.T) {
	srv := newTestServer(t, nil, &memoryHistory{})

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var hello protocol.Event
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, protocol.KindHello, hello.Kind)
	assert.NotEmpty(t, hello.Client)

	require.NoError(t, conn.WriteJSON(protocol.Event{Kind: protocol.KindPing}))
	var pong protocol.Event
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, protocol.KindPong, pong.Kind)

	postJSON(t, srv.URL+"/api/ask", `{"text":"time please"}`)

	var pushed protocol.Event
	require.NoError(t, conn.ReadJSON(&pushed))
	require.Equal(t, protocol.KindInteraction, pushed.Kind)
	assert.Equal(t, "The time is 10:00", pushed.Interaction.Response)
}
