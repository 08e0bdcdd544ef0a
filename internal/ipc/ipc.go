package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const DefaultSocketPath = "/tmp/voxpro.sock"

// a client has this long to send its request
const readTimeout = 10 * time.Second

var ErrAlreadyRunning = errors.New("another voxpro daemon is already running on this socket")

// HandlerFunc answers one control request.
type HandlerFunc func(ctx context.Context, req Request) Response

// Server accepts one JSON request per connection and writes one JSON
// response back. It holds a file lock next to the socket for its lifetime.
type Server struct {
	path string
	lock *flock.Flock
	ln   net.Listener
	wg   sync.WaitGroup
}

func Listen(path string) (*Server, error) {
	if path == "" {
		path = DefaultSocketPath
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to try lock: %w", err)
	}
	if !locked {
		return nil, ErrAlreadyRunning
	}

	// a stale socket from a crashed daemon blocks Listen
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		_ = lock.Unlock()
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("listen: %w", err)
	}

	log.Info("Control socket listening", "path", path)
	return &Server{path: path, lock: lock, ln: ln}, nil
}

func (s *Server) Path() string { return s.path }

// Serve blocks until ctx is done or the listener fails.
func (s *Server) Serve(ctx context.Context, handler HandlerFunc) error {
	stop := context.AfterFunc(ctx, func() { s.ln.Close() })
	defer stop()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn("Accept failed", "err", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			handleConn(ctx, conn, handler)
		}()
	}
}

func handleConn(ctx context.Context, conn net.Conn, handler HandlerFunc) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		log.Warn("Bad control request", "err", err)
		_ = json.NewEncoder(conn).Encode(errorResponse("invalid request"))
		return
	}

	_ = conn.SetReadDeadline(time.Time{})

	log.Debug("Control request", "cmd", req.Cmd)
	resp := handler(ctx, req)

	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		log.Warn("Failed to write control response", "cmd", req.Cmd, "err", err)
	}
}

// Close stops accepting, waits for in-flight requests and releases the lock.
func (s *Server) Close() error {
	err := s.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	s.wg.Wait()

	_ = os.Remove(s.path)
	if uerr := s.lock.Unlock(); uerr != nil && err == nil {
		err = uerr
	}
	_ = os.Remove(s.lock.Path())
	return err
}

// Send performs one request against the daemon at path.
func Send(ctx context.Context, path string, req Request) (Response, error) {
	if path == "" {
		path = DefaultSocketPath
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return Response{}, fmt.Errorf("voxpro daemon not running: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		// listening can take a while
		_ = conn.SetDeadline(time.Now().Add(2 * time.Minute))
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	if !resp.OK {
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}
