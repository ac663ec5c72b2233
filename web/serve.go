// Package web exposes the interview relay over HTTP: a websocket endpoint
// the browser client talks to, a small JSON API for reviewing past
// interviews, and the embedded client page.
package web

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"parley/db"
	"parley/relay"
	"parley/summary"
	"parley/upstream"
)

//go:embed index.html
var indexHTML []byte

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	// The relay fronts its own embedded page and local dev clients.
	CheckOrigin: func(*http.Request) bool { return true },
}

type Server struct {
	Store      db.Store
	Dialer     upstream.Dialer
	Summarizer summary.Summarizer
	Config     relay.Config
	Logger     *log.Logger
}

func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/ws/interview", s.handleInterview)
	r.Get("/api/interviews", s.handleListInterviews)
	r.Get("/api/interviews/{id}", s.handleGetInterview)
	r.Get("/api/interviews/{id}/transcript", s.handleTranscript)

	return r
}

func (s *Server) Serve(port int) error {
	s.Logger.Info("http", "url", fmt.Sprintf("http://localhost:%d", port))
	return http.ListenAndServe(fmt.Sprintf(":%d", port), s.Router())
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleInterview upgrades the connection and runs one interview on it. The
// orchestrator owns the socket from here and closes it when the interview
// reaches its terminal state.
func (s *Server) handleInterview(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Error("websocket upgrade failed", "err", err)
		return
	}

	o := &relay.Orchestrator{
		Client:     relay.NewWSConn(conn),
		Store:      s.Store,
		Dialer:     s.Dialer,
		Summarizer: s.Summarizer,
		Config:     s.Config,
		Logger:     s.Logger,
	}
	if err := o.Run(r.Context()); err != nil {
		s.Logger.Error("interview aborted", "err", err)
	}
}

type interviewJSON struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	StartedAt       string `json:"started_at"`
	EndedAt         string `json:"ended_at,omitempty"`
	DurationSeconds int    `json:"duration_seconds"`
	Summary         string `json:"summary,omitempty"`
}

func toInterviewJSON(interview db.Interview) interviewJSON {
	out := interviewJSON{
		ID:              interview.ID,
		Status:          string(interview.Status),
		StartedAt:       interview.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		DurationSeconds: interview.DurationSeconds,
		Summary:         interview.Summary,
	}
	if interview.EndedAt != nil {
		out.EndedAt = interview.EndedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return out
}

func (s *Server) handleListInterviews(w http.ResponseWriter, r *http.Request) {
	interviews, err := s.Store.ListInterviews(r.Context())
	if err != nil {
		s.Logger.Error("failed to list interviews", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	out := make([]interviewJSON, 0, len(interviews))
	for _, interview := range interviews {
		out = append(out, toInterviewJSON(interview))
	}
	writeJSON(w, out)
}

func (s *Server) handleGetInterview(w http.ResponseWriter, r *http.Request) {
	interview, err := s.Store.GetInterview(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, db.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.Logger.Error("failed to load interview", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, toInterviewJSON(interview))
}

type utteranceJSON struct {
	Speaker  string `json:"speaker"`
	Text     string `json:"text"`
	Sequence int    `json:"sequence"`
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.Store.GetInterview(r.Context(), id); errors.Is(err, db.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	} else if err != nil {
		s.Logger.Error("failed to load interview", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	utterances, err := s.Store.ListUtterances(r.Context(), id)
	if err != nil {
		s.Logger.Error("failed to load transcript", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	out := make([]utteranceJSON, 0, len(utterances))
	for _, u := range utterances {
		out = append(out, utteranceJSON{
			Speaker:  string(u.Speaker),
			Text:     u.Text,
			Sequence: u.Sequence,
		})
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
