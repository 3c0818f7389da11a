/*
 * Copyright 2025 ThreatLens Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package console

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/threatlens/threatlens/pkg/logger"
	"github.com/threatlens/threatlens/pkg/playbook"
	"github.com/threatlens/threatlens/pkg/scenario"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server exposes the reconciled state and operator actions over HTTP.
type Server struct {
	controller *Controller
	logger     logger.Logger
	httpServer *http.Server
	router     *mux.Router
}

// NewServer creates the console HTTP server.
func NewServer(addr string, controller *Controller, log logger.Logger) *Server {
	s := &Server{
		controller: controller,
		logger:     log,
		router:     mux.NewRouter(),
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/state", s.handleState).Methods(http.MethodGet)
	s.router.HandleFunc("/api/scenario", s.handleScenario).Methods(http.MethodPost)
	s.router.HandleFunc("/api/mitigate", s.handleMitigate).Methods(http.MethodPost)
	s.router.HandleFunc("/api/reset", s.handleReset).Methods(http.MethodPost)
	s.router.HandleFunc("/api/forensic/{id}", s.handleForensic).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// Router exposes the handler, for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.controller.Snapshot()
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "controller stopped")
		return
	}

	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scenario scenario.Scenario `json:"scenario"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.controller.SetScenario(req.Scenario); err != nil {
		if errors.Is(err, ErrStopped) {
			s.writeError(w, http.StatusServiceUnavailable, "controller stopped")
			return
		}

		s.writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"scenario": string(req.Scenario)})
}

func (s *Server) handleMitigate(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.ExecutePlaybook(); err != nil {
		if errors.Is(err, playbook.ErrAlreadyActive) {
			s.writeError(w, http.StatusConflict, "mitigation already active")
			return
		}

		s.writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Reset(); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "controller stopped")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleForensic(w http.ResponseWriter, r *http.Request) {
	eventID := mux.Vars(r)["id"]

	report, err := s.controller.ForensicReport(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, ErrStopped) {
			s.writeError(w, http.StatusServiceUnavailable, "controller stopped")
			return
		}

		s.writeError(w, http.StatusNotFound, err.Error())

		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Response encoding failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
