package protocol

import (
	"context"
	log "log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

type WebSocket struct {
	url    string
	reconn time.Duration

	mu     sync.Mutex
	conn   *ws.Conn
	closed bool
}

func NewWebSocket(ctx context.Context, url string, reconn time.Duration) (*WebSocket, error) {
	log.Debug("init websocket", "url", url)

	if reconn <= 0 {
		reconn = time.Second
	}

	conn, _, err := ws.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		log.Error("Failed to dial url", "url", url, "err", err)
		return nil, err
	}

	return &WebSocket{url: url, reconn: reconn, conn: conn}, nil
}

// Write is safe for concurrent use.
func (web *WebSocket) Write(payload []byte) error {
	web.mu.Lock()
	defer web.mu.Unlock()

	log.Debug("Write ws", "msg", string(payload))
	return web.conn.WriteMessage(ws.TextMessage, payload)
}

type IncomeKind uint

const (
	ConnClose IncomeKind = iota
	ReadFailure
	ReadOK
)

type Income struct {
	kind IncomeKind
	msg  []byte
	err  error
}

func (web *WebSocket) Read() Income {
	web.mu.Lock()
	conn := web.conn
	web.mu.Unlock()

	_, msg, err := conn.ReadMessage()
	if err != nil {
		if IsClosed(err) {
			return Income{kind: ConnClose, err: err}
		}
		return Income{kind: ReadFailure, err: err}
	}

	log.Debug("Read ws", "msg", string(msg))
	return Income{kind: ReadOK, msg: msg}
}

// TryReconn dials until it succeeds or ctx ends.
func (web *WebSocket) TryReconn(ctx context.Context) error {
	for {
		conn, _, err := ws.DefaultDialer.DialContext(ctx, web.url, nil)
		if err == nil {
			web.mu.Lock()
			if web.closed {
				web.mu.Unlock()
				conn.Close()
				return context.Canceled
			}
			web.conn.Close()
			web.conn = conn
			web.mu.Unlock()
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(web.reconn):
		}
	}
}

func (web *WebSocket) Close() error {
	web.mu.Lock()
	defer web.mu.Unlock()

	web.closed = true
	return web.conn.Close()
}

func IsClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
