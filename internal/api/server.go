package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/MikeSquared-Agency/medbot/internal/consultation"
	"github.com/MikeSquared-Agency/medbot/internal/observability"
	"github.com/MikeSquared-Agency/medbot/internal/session"
)

type Server struct {
	router   *chi.Mux
	port     int
	sessions *session.Manager
	metrics  *observability.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

func NewServer(port int, apiToken string, sessions *session.Manager, metrics *observability.Metrics, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		port:     port,
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOrigin,
		},
	}

	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	router.Get("/health", s.health)
	if metrics != nil {
		router.Handle("/metrics", metrics.Handler())
	}

	router.Route("/api/v1/sessions", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Post("/", s.createSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.endSession)
			r.Post("/turns", s.postTurn)
			r.Post("/reset", s.resetSession)
			r.Get("/summary", s.getSummary)
			r.Get("/ws", s.sessionWS)
		})
	})

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks until the server stops. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create()
	s.logger.Info("session created", "session_id", sess.ID())
	respondJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: sess.ID(),
		History:   sess.History(),
	})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	turns, history, _ := sess.Snapshot()
	respondJSON(w, http.StatusOK, sessionResponse{
		SessionID: sess.ID(),
		TurnCount: turns,
		Phase:     consultation.PhaseOf(turns),
		History:   history,
	})
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.sessions.End(id); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.logger.Info("session ended", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) postTurn(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req turnRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := sess.HandleTurn(r.Context(), req.Text)
	if errors.Is(err, consultation.ErrEmptyInput) {
		turns, history, _ := sess.Snapshot()
		respondJSON(w, http.StatusOK, turnResponse{
			History:   history,
			Phase:     consultation.PhaseOf(turns),
			TurnCount: turns,
			Skipped:   true,
		})
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "turn_failed", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, turnResponse{
		History:   sess.History(),
		Reply:     res.Reply,
		Phase:     res.Phase,
		TurnCount: res.Turn,
		Failed:    res.Failed,
	})
}

func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	history, input := sess.Reset()
	respondJSON(w, http.StatusOK, resetResponse{History: history, Input: input})
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, sess.PatientSummary())
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*consultation.Session, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return nil, false
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return nil, false
	}
	return sess, true
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
