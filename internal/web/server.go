package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io"
	log "log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"voxpro/internal/assistant"
	"voxpro/internal/models"
)

//go:embed static/index.html
var static embed.FS

// Service is the part of *assistant.Assistant the front end drives.
type Service interface {
	Process(ctx context.Context, req assistant.Request) models.Interaction
	Listen(ctx context.Context) (models.Interaction, error)
	Quick(ctx context.Context, action, arg string) (models.Interaction, error)
	Recent(ctx context.Context, limit int) ([]models.Record, error)
	Status() assistant.Status
	Subscribe() (<-chan models.Interaction, func())
}

type Config struct {
	Service        Service
	HistoryLimit   int
	AllowedOrigins []string
}

type Server struct {
	svc   Service
	limit int
	hub   *Hub
	cors  *cors.Cors
}

func NewServer(cfg Config) *Server {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 5
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	return &Server{
		svc:   cfg.Service,
		limit: cfg.HistoryLimit,
		hub:   NewHub(cfg.Service),
		cors: cors.New(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
		}),
	}
}

func (s *Server) SetupEndpoints(router *mux.Router) {
	router.HandleFunc("/", s.handleIndex).Methods("GET")
	router.HandleFunc("/api/ask", s.handleAsk).Methods("POST")
	router.HandleFunc("/api/listen", s.handleListen).Methods("POST")
	router.HandleFunc("/api/quick/{action}", s.handleQuick).Methods("POST")
	router.HandleFunc("/api/history", s.handleHistory).Methods("GET")
	router.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	router.HandleFunc("/ws", s.hub.HandleWebSocket).Methods("GET")

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET")
}

func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	s.SetupEndpoints(router)
	return s.cors.Handler(router)
}

// Serve runs until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("Web front end listening", "addr", "http://"+addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Web server shutdown error", "err", err)
		return err
	}
	log.Info("Web server stopped")
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "page not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

type askRequest struct {
	Text string `json:"text"`
	Mute bool   `json:"mute"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	it := s.svc.Process(r.Context(), assistant.Request{
		Text:   req.Text,
		Source: models.SourceText,
		Mute:   req.Mute,
	})
	writeJSON(w, http.StatusOK, it)
}

func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	it, err := s.svc.Listen(r.Context())
	if errors.Is(err, assistant.ErrNoMicrophone) {
		http.Error(w, "microphone not configured", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		log.Error("Listen failed", "err", err)
		http.Error(w, "listen failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

type quickRequest struct {
	Arg string `json:"arg"`
}

func (s *Server) handleQuick(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]

	// the body is optional
	var req quickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	it, err := s.svc.Quick(r.Context(), action, req.Arg)
	if errors.Is(err, assistant.ErrUnknownAction) {
		http.Error(w, "unknown action", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "quick action failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := s.limit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := s.svc.Recent(r.Context(), limit)
	if err != nil {
		log.Error("Failed to read history", "err", err)
		http.Error(w, "history unavailable", http.StatusBadGateway)
		return
	}
	if records == nil {
		records = []models.Record{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

type statusResponse struct {
	assistant.Status
	Clients int `json:"clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:  s.svc.Status(),
		Clients: s.hub.Clients(),
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error("Failed to encode JSON response", "err", err)
	}
}
