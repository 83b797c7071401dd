package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dcervantes/rutalert/internal/cleanup"
	"github.com/dcervantes/rutalert/internal/storage"
	"github.com/dcervantes/rutalert/internal/trigger"
)

// Server is the ingress for the external collaborators: the database
// change-feed relay posts before/after snapshots here, and the cron
// service (or an operator) hits the cleanup job endpoint.
type Server struct {
	handler    *trigger.Handler
	sanitizer  *cleanup.Sanitizer
	store      storage.Store
	httpServer *http.Server
	router     chi.Router
}

func New(handler *trigger.Handler, sanitizer *cleanup.Sanitizer, store storage.Store) *Server {
	return &Server{handler: handler, sanitizer: sanitizer, store: store}
}

func (s *Server) Start(addr string) error {
	log.Printf("Starting server on %s", addr)
	s.router = s.setupRouter()
	s.httpServer = &http.Server{
		Addr:    ":" + addr,
		Handler: s.router,
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/ping", s.handlePing)

		r.Route("/triggers", func(r chi.Router) {
			r.Post("/buses/{busID}", s.handleBusUpdated)
			r.Post("/announcements/{announcementID}", s.handleAnnouncementCreated)
		})

		r.Post("/jobs/token-cleanup", s.handleTokenCleanup)

		r.Get("/dispatches/{dispatchID}", s.handleGetDispatch)
	})

	return r
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("pong"))
}

func (s *Server) handleBusUpdated(w http.ResponseWriter, r *http.Request) {
	busID := chi.URLParam(r, "busID")
	if busID == "" {
		http.Error(w, "busID is required", http.StatusBadRequest)
		return
	}

	var req struct {
		Before trigger.Bus `json:"before"`
		After  trigger.Bus `json:"after"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	outcome := s.handler.BusUpdated(r.Context(), busID, req.Before, req.After)
	if outcome == nil {
		s.respond(w, r, map[string]bool{"skipped": true}, http.StatusOK)
		return
	}

	s.respond(w, r, outcome, http.StatusOK)
}

func (s *Server) handleAnnouncementCreated(w http.ResponseWriter, r *http.Request) {
	announcementID := chi.URLParam(r, "announcementID")
	if announcementID == "" {
		http.Error(w, "announcementID is required", http.StatusBadRequest)
		return
	}

	var req trigger.Announcement
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	outcome := s.handler.AnnouncementCreated(r.Context(), announcementID, req)
	s.respond(w, r, outcome, http.StatusOK)
}

func (s *Server) handleTokenCleanup(w http.ResponseWriter, r *http.Request) {
	if s.sanitizer == nil {
		http.Error(w, "Token cleanup is not configured", http.StatusServiceUnavailable)
		return
	}

	report := s.sanitizer.Run(r.Context())
	s.respond(w, r, report, http.StatusOK)
}

func (s *Server) handleGetDispatch(w http.ResponseWriter, r *http.Request) {
	dispatchID := chi.URLParam(r, "dispatchID")
	if dispatchID == "" {
		http.Error(w, "dispatchID is required", http.StatusBadRequest)
		return
	}

	d, err := s.store.GetDispatch(r.Context(), dispatchID)
	if err != nil {
		if errors.Is(err, storage.Errors.NotFound) {
			http.Error(w, "Dispatch not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Error getting dispatch", http.StatusInternalServerError)
		log.Printf("Error getting dispatch %v", err)
		return
	}

	receipts, err := s.store.ListFailedReceipts(r.Context(), dispatchID)
	if err != nil {
		http.Error(w, "Error listing receipts", http.StatusInternalServerError)
		log.Printf("Error listing receipts %v", err)
		return
	}

	s.respond(w, r, map[string]interface{}{
		"dispatch": d,
		"failures": receipts,
	}, http.StatusOK)
}

// MARK: Helpers
func (s *Server) respond(w http.ResponseWriter, r *http.Request, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("Error encoding response for request %s: %v", middleware.GetReqID(r.Context()), err)
		}
	}
}
