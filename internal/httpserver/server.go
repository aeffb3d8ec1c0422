// Package httpserver exposes the trigger API and the read-only views over the
// action store.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fixstream/fixstream/internal/actionstore"
	"github.com/fixstream/fixstream/internal/auth"
	"github.com/fixstream/fixstream/internal/dispatcher"
	"github.com/fixstream/fixstream/internal/models"
)

// Pinger lets the health endpoint report on durable storage when present.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	dispatcher *dispatcher.Dispatcher
	store      *actionstore.Store
	db         Pinger
	jwtSecret  string
}

func New(d *dispatcher.Dispatcher, store *actionstore.Store, db Pinger, jwtSecret string) *Server {
	return &Server{dispatcher: d, store: store, db: db, jwtSecret: jwtSecret}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/actions", func(r chi.Router) {
		r.Use(auth.Middleware(s.jwtSecret))
		r.Post("/", s.handleTrigger)
		r.Get("/", s.handleList)
		r.Get("/latest", s.handleLatest)
		r.Get("/{actionID}", s.handleGet)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC(),
	}
	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			status["ok"] = false
			status["db"] = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	respondJSON(w, http.StatusOK, status)
}

type triggerRequest struct {
	BaselineName        string        `json:"baselineName"`
	GroupName           string        `json:"groupName"`
	Stage               string        `json:"stage"`
	Window              models.Window `json:"window"`
	ChangeTicket        string        `json:"changeTicket"`
	RequireChangeTicket bool          `json:"requireChangeTicket"`
	Notify              bool          `json:"notify"`
	Recipients          []string      `json:"recipients"`
	TriggeredBy         string        `json:"triggeredBy"`
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}
	if req.BaselineName == "" || req.GroupName == "" {
		respondError(w, http.StatusBadRequest, "validation", "baselineName and groupName are required")
		return
	}
	triggeredBy := req.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = auth.Subject(r.Context())
	}

	result, err := s.dispatcher.Trigger(r.Context(), dispatcher.TriggerRequest{
		BaselineName:        req.BaselineName,
		GroupName:           req.GroupName,
		Stage:               req.Stage,
		Window:              req.Window,
		ChangeTicket:        req.ChangeTicket,
		RequireChangeTicket: req.RequireChangeTicket,
		Notify:              req.Notify,
		Recipients:          req.Recipients,
		TriggeredBy:         triggeredBy,
	})
	if err != nil {
		var te *dispatcher.TriggerError
		if errors.As(err, &te) {
			respondError(w, statusForCode(te.Code), te.Code, te.Message)
			return
		}
		respondError(w, http.StatusBadGateway, "upstream-rejection", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func statusForCode(code string) int {
	switch code {
	case dispatcher.CodeNotFound, dispatcher.CodeGhost:
		return http.StatusNotFound
	case dispatcher.CodeValidation:
		return http.StatusBadRequest
	case dispatcher.CodeShape, dispatcher.CodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.store.All())
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	id := s.store.LastID()
	if id == "" {
		respondError(w, http.StatusNotFound, "not-found", "no actions recorded yet")
		return
	}
	rec, ok := s.store.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "not-found", "no actions recorded yet")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "actionID")
	rec, ok := s.store.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "not-found", fmt.Sprintf("action %s not known", id))
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	defer io.Copy(io.Discard, r.Body)
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]string{"code": code, "message": message})
}
