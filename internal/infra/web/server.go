// Package web serves the assistant's presentation surface: listening and
// conversation controls over HTTP and a WebSocket stream of updates.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voice-assist/internal/application"
	"voice-assist/internal/domain"
	"voice-assist/internal/observe"
)

// Assistant is the part of application.Assistant the server drives.
type Assistant interface {
	Toggle(ctx context.Context) error
	StartListening(ctx context.Context) error
	StopListening() error
	SendText(ctx context.Context, text string) error
	ClearConversation()
	ErrorHandled()
	State() application.State
	Subscribe(buffer int) (<-chan domain.Update, func())
}

// History reads archived messages, oldest first.
type History interface {
	Recent(ctx context.Context, limit int) ([]domain.Message, error)
}

type Config struct {
	Addr      string
	AuthToken string

	// RateLimit requests per RateWindow per client IP on mutating routes.
	RateLimit  int
	RateWindow time.Duration

	// History backs GET /conversation/archive; nil disables the route.
	History History

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

type Server struct {
	assistant Assistant
	cfg       Config
	logger    *slog.Logger
	mux       *http.ServeMux
	handler   http.Handler
	limiter   *RateLimiter
}

func NewServer(assistant Assistant, cfg Config) *Server {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 30
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		assistant: assistant,
		cfg:       cfg,
		logger:    cfg.Logger,
		mux:       http.NewServeMux(),
		limiter:   NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
	}

	s.mux.HandleFunc("POST /listen/toggle", s.guard(s.handleToggle))
	s.mux.HandleFunc("POST /listen/start", s.guard(s.handleStart))
	s.mux.HandleFunc("POST /listen/stop", s.guard(s.handleStop))
	s.mux.HandleFunc("POST /text", s.guard(s.handleText))
	s.mux.HandleFunc("POST /conversation/clear", s.guard(s.handleClear))
	s.mux.HandleFunc("POST /conversation/error/ack", s.guard(s.handleErrorAck))

	s.mux.HandleFunc("GET /conversation", s.authorized(s.handleConversation))
	if cfg.History != nil {
		s.mux.HandleFunc("GET /conversation/archive", s.authorized(s.handleArchive))
	}
	s.mux.HandleFunc("GET /events", s.authorized(s.handleEvents))

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.handler = observe.Middleware(cfg.Metrics)(s.mux)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server starting", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("serving http: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
		if err := srv.Close(); err != nil {
			return fmt.Errorf("closing server: %w", err)
		}
	}
	return nil
}

// guard applies auth and the per-IP rate limit.
func (s *Server) guard(next http.HandlerFunc) http.HandlerFunc {
	return s.authorized(s.limiter.Middleware(next))
}

func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	if s.cfg.AuthToken == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != s.cfg.AuthToken {
			s.logger.Warn("unauthorized request", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	s.respondListening(w, s.assistant.Toggle(r.Context()))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.respondListening(w, s.assistant.StartListening(r.Context()))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.respondListening(w, s.assistant.StopListening())
}

func (s *Server) respondListening(w http.ResponseWriter, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"listening": s.assistant.State().Listening})
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		http.Error(w, "empty text", http.StatusBadRequest)
		return
	}

	if err := s.assistant.SendText(r.Context(), text); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("received text input via HTTP", "chars", len(text))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "received", "text": text})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.assistant.ClearConversation()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleErrorAck(w http.ResponseWriter, r *http.Request) {
	s.assistant.ErrorHandled()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.assistant.State())
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	msgs, err := s.cfg.History.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("reading archive", "error", err)
		http.Error(w, "archive unavailable", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	// Clients only listen; CloseRead ends ctx when they go away.
	ctx := conn.CloseRead(r.Context())

	updates, cancel := s.assistant.Subscribe(32)
	defer cancel()

	state := s.assistant.State()
	initial := []domain.Update{
		{Kind: domain.UpdateTranscript, Transcript: state.Messages},
		{Kind: domain.UpdateProcessing, Processing: state.Processing},
		{Kind: domain.UpdateListening, Listening: state.Listening},
	}
	if state.Error != "" {
		initial = append(initial, domain.Update{Kind: domain.UpdateError, Error: state.Error})
	}
	for _, u := range initial {
		if err := s.writeUpdate(ctx, conn, u); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case u, ok := <-updates:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			if err := s.writeUpdate(ctx, conn, u); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

func (s *Server) writeUpdate(ctx context.Context, conn *websocket.Conn, u domain.Update) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(ctx, conn, u)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.assistant.State()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"listening":  state.Listening,
		"processing": state.Processing,
	})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, application.ErrBusy), errors.Is(err, application.ErrSessionActive):
		status = http.StatusConflict
	case errors.Is(err, application.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, application.ErrControllerClosed):
		status = http.StatusServiceUnavailable
	default:
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
