// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/relabs-tech/rocket_attitude/internal/fusion"
	"github.com/relabs-tech/rocket_attitude/internal/imu"
	"github.com/relabs-tech/rocket_attitude/internal/stream"
)

// maxLoadBytes bounds a POSTed flight log.
const maxLoadBytes = 64 << 20

// staticDir holds the dashboard served at /.
const staticDir = "web"

// Server exposes a live fusion session over HTTP.
type Server struct {
	session *stream.Session
	hub     *Hub
}

func NewServer(session *stream.Session, hub *Hub) *Server {
	return &Server{session: session, hub: hub}
}

// Handler routes:
//
//	GET  /api/orientation  newest fused sample
//	GET  /api/window       fused rolling window
//	POST /api/filter       {"filter":"kalman"} switches the estimator
//	POST /api/load         TSV flight log replaces the session buffers
//	GET  /ws               websocket stream of fused samples
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/orientation", s.handleOrientation)
	mux.HandleFunc("GET /api/window", s.handleWindow)
	mux.HandleFunc("POST /api/filter", s.handleFilter)
	mux.HandleFunc("POST /api/load", s.handleLoad)
	mux.HandleFunc("GET /ws", s.hub.ServeWS)
	mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	return mux
}

func (s *Server) handleOrientation(w http.ResponseWriter, r *http.Request) {
	latest, ok := s.session.Latest()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

type windowResponse struct {
	Session string               `json:"session"`
	Filter  fusion.Kind          `json:"filter"`
	Samples []fusion.FusedSample `json:"samples"`
}

func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	samples := s.session.Fused()
	if samples == nil {
		samples = []fusion.FusedSample{}
	}
	writeJSON(w, http.StatusOK, windowResponse{
		Session: s.session.ID().String(),
		Filter:  s.session.Strategy(),
		Samples: samples,
	})
}

type filterRequest struct {
	Filter string `json:"filter"`
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	kind, err := fusion.ParseKind(req.Filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.session.SetStrategy(kind); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, filterRequest{Filter: string(kind)})
}

type loadResponse struct {
	Loaded int `json:"loaded"`
	Window int `json:"window"`
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	samples, err := imu.Parse(http.MaxBytesReader(w, r.Body, maxLoadBytes))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		http.Error(w, err.Error(), status)
		return
	}
	s.session.LoadBatch(samples)
	log.Printf("web: loaded %d samples into session %s", len(samples), s.session.ID())
	writeJSON(w, http.StatusOK, loadResponse{Loaded: len(samples), Window: len(s.session.Window())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("json encode error: %v", err)
	}
}
