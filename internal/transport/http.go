package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rpggio/browserhost/internal/events"
	"go.uber.org/zap"
)

// Handler handles IPC method dispatch.
type Handler interface {
	Handle(ctx context.Context, method string, params json.RawMessage) (any, error)
}

// Server wires HTTP handlers.
type Server struct {
	handler Handler
	hub     *events.Hub
	logger  *zap.Logger
}

// Options configures the HTTP router.
type Options struct {
	Handler Handler
	Hub     *events.Hub
	// Token enables bearer authentication when non-empty.
	Token  string
	Logger *zap.Logger
}

// NewServer creates an HTTP server router with middleware.
func NewServer(opts Options) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	srv := &Server{handler: opts.Handler, hub: opts.Hub, logger: logger.Named("http")}

	r.Get("/health", srv.handleHealth)
	r.Group(func(r chi.Router) {
		if opts.Token != "" {
			r.Use(AuthMiddleware(opts.Token))
		}
		r.Post("/rpc", srv.handleRPC)
		r.Get("/events", srv.handleEvents)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	req, err := ParseRequest(r.Body)
	if err != nil {
		WriteError(w, nil, requestError(err))
		return
	}

	s.logger.Debug("rpc request",
		zap.String("method", req.Method),
		zap.String("request_id", middleware.GetReqID(r.Context())))

	result, err := s.handler.Handle(r.Context(), req.Method, req.Params)
	if err != nil {
		apiErr, known := callError(err)
		if !known {
			s.logger.Error("rpc failed", zap.String("method", req.Method), zap.Error(err))
		}
		WriteError(w, req.ID, apiErr)
		return
	}

	WriteResult(w, req.ID, result)
}

// keepAlive is how often an idle event stream writes a blank line.
const keepAlive = 30 * time.Second

// handleEvents streams hub events as newline-delimited JSON until the client
// disconnects or the hub closes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok || s.hub == nil {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ch, cancel := s.hub.Subscribe(0)
	defer cancel()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := w.Write([]byte("\n")); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := enc.Encode(ev); err != nil {
				s.logger.Debug("event stream closed", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}
