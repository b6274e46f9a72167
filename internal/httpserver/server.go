// internal/httpserver/server.go
//
// HTTP server wiring for the hunt session server.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health", "/metrics".
//   - Lobby endpoints: GET/POST /sessions, GET /sessions/{id}.
//   - Game transport: GET /sessions/{id}/ws upgrades to a websocket and
//     hands every frame to the session (see ws.go).
//
// Notes:
//   - The request timeout applies to the REST group only; websocket
//     connections live as long as the client stays.
//   - Error bodies are {"error":"<code>"} like every other JSON response.

package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wolfsheep/internal/errs"
	"github.com/robalobadob/wolfsheep/internal/game"
	"github.com/robalobadob/wolfsheep/internal/session"
)

// Server bundles the router and the session manager.
type Server struct {
	r        *chi.Mux
	mgr      *session.Manager
	upgrader websocket.Upgrader
}

// New constructs a Server, installs middleware, and registers routes.
// gatherer backs /metrics; nil leaves the endpoint out.
func New(mgr *session.Manager, gatherer prometheus.Gatherer, origin string) *Server {
	s := &Server{
		r:        chi.NewRouter(),
		mgr:      mgr,
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin(origin)},
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID) // add X-Request-ID
	s.r.Use(chimw.RealIP)    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer) // recover from panics
	s.r.Use(jsonContentType) // default JSON responses
	s.r.Use(corsFor(origin)) // credentials-friendly CORS

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"service":"wolfsheep","endpoints":["/health","/metrics","GET /sessions","POST /sessions","GET /sessions/{id}","GET /sessions/{id}/ws"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "sessions": s.mgr.Len()})
	})
	if gatherer != nil {
		s.r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// --- lobby ---
	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second)) // bound handler time
		r.Get("/sessions", s.handleList)
		r.Post("/sessions", s.handleCreate)
		r.Get("/sessions/{id}", s.handleGet)
	})

	// --- game transport ---
	s.r.Get("/sessions/{id}/ws", s.handleWS)

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not_found","path":"`+r.URL.Path+`"}`, http.StatusNotFound)
	})

	return s
}

// Handler returns the root handler, for http.Server and tests.
func (s *Server) Handler() http.Handler { return s.r }

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ------------------------------ SESSIONS -----------------------------------

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(s.mgr.List())
}

// createRes answers POST /sessions.
type createRes struct {
	ID        string        `json:"id"`
	Rules     game.Rules    `json:"rules"`
	Protected bool          `json:"protected"`
	WS        string        `json:"ws"`
	Snapshot  game.Snapshot `json:"snapshot"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	sess, err := s.mgr.Create(r.Context(), req)
	switch {
	case errors.Is(err, session.ErrTooManySessions):
		http.Error(w, `{"error":"too_many_sessions"}`, http.StatusServiceUnavailable)
		return
	case errors.Is(err, errs.Configuration):
		http.Error(w, `{"error":"`+errs.ReasonOf(err)+`"}`, http.StatusBadRequest)
		return
	case err != nil:
		log.Error().Err(err).Msg("create session")
		http.Error(w, `{"error":"create_failed"}`, http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(createRes{
		ID:        sess.ID(),
		Rules:     sess.Controller().Rules(),
		Protected: sess.Protected(),
		WS:        "/sessions/" + sess.ID() + "/ws",
		Snapshot:  sess.Snapshot(),
	})
}

// sessionRes answers GET /sessions/{id}.
type sessionRes struct {
	Session  session.Info  `json:"session"`
	Snapshot game.Snapshot `json:"snapshot"`
	Board    string        `json:"board"`
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	snap := sess.Snapshot()
	_ = json.NewEncoder(w).Encode(sessionRes{
		Session:  sess.Info(),
		Snapshot: snap,
		Board:    game.Render(sess.Controller().Board(), snap),
	})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.mgr.Get(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return nil, false
	}
	return sess, true
}
