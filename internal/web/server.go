/*
 * Copyright (c) 2024. Anton Starikov -- All Rights Reserved
 *
 * This file is part of MZTRVC project.
 *
 * MZTRVC is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as the Free Software Foundation,
 * either version 3 of the License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/antst/mztrvc/internal/engine"
	"github.com/antst/mztrvc/internal/logger"
	"github.com/antst/mztrvc/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

// StateSource is the read side of the decision engine.
type StateSource interface {
	State() engine.ControllerState
	ZoneState(id string) (engine.ZoneSnapshot, error)
	ZoneIDs() []string
}

type Server struct {
	addr    string
	source  StateSource
	metrics *metrics.Metrics
}

func NewServer(addr string, source StateSource, m *metrics.Metrics) *Server {
	return &Server{addr: addr, source: source, metrics: m}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.Handle("/health", s.metrics.WrapHandler("/health", http.HandlerFunc(s.health))).Methods(http.MethodGet)
	r.Handle("/state", s.metrics.WrapHandler("/state", http.HandlerFunc(s.state))).Methods(http.MethodGet)
	r.Handle("/zones", s.metrics.WrapHandler("/zones", http.HandlerFunc(s.zones))).Methods(http.MethodGet)
	r.Handle("/zones/{id}", s.metrics.WrapHandler("/zones/{id}", http.HandlerFunc(s.zone))).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	return r
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	accessLog := zap.NewStdLog(logger.L().Desugar().Named("http")).Writer()
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           handlers.RecoveryHandler()(handlers.LoggingHandler(accessLog, s.Router())),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Infof("HTTP diagnostics listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) state(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.source.State())
}

func (s *Server) zones(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.source.State().Zones)
}

func (s *Server) zone(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, err := s.source.ZoneState(id)
	if err != nil {
		status := http.StatusInternalServerError
		if engine.IsConfiguration(err) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L().Warnf("Failed to encode HTTP response: %v", err)
	}
}
