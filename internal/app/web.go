// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/stereo_player/internal/control"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WebSocket message types
type WSMessage struct {
	Command    string   `json:"command,omitempty"` // any control.Command
	IPD        *float64 `json:"ipd,omitempty"`
	PositionMS *int64   `json:"position_ms,omitempty"`
}

type WSResponse struct {
	Type      string     `json:"type"` // hello, telemetry, ack, error
	Session   string     `json:"session,omitempty"`
	Telemetry *Telemetry `json:"telemetry,omitempty"`
	Message   string     `json:"message,omitempty"`
}

type ipdRequest struct {
	IPD   *float64 `json:"ipd,omitempty"`
	Delta *float64 `json:"delta,omitempty"`
}

type ipdResponse struct {
	IPD       float64 `json:"ipd"`
	IPDPixels int32   `json:"ipd_pixels"`
}

type playbackRequest struct {
	Command    string `json:"command,omitempty"`
	PositionMS *int64 `json:"position_ms,omitempty"`
}

// wsSession is one websocket client. gorilla connections allow a single
// writer, so every write goes through send.
type wsSession struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSession) send(resp WSResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	return s.conn.WriteJSON(resp)
}

// ControlServer exposes player status and controls over HTTP and a
// telemetry websocket.
type ControlServer struct {
	player   Player
	interval time.Duration
	router   *mux.Router

	mu       sync.Mutex
	sessions map[string]*wsSession
}

// NewControlServer builds the routes. interval is the websocket telemetry
// cadence.
func NewControlServer(p Player, interval time.Duration) *ControlServer {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	s := &ControlServer{
		player:   p,
		interval: interval,
		router:   mux.NewRouter(),
		sessions: map[string]*wsSession{},
	}

	r := s.router
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("OK\n"))
	}).Methods("GET")
	r.HandleFunc("/api/stats", s.handleStats).Methods("GET")
	r.HandleFunc("/api/ipd", s.handleGetIPD).Methods("GET")
	r.HandleFunc("/api/ipd", s.handleSetIPD).Methods("POST")
	r.HandleFunc("/api/playback", s.handleGetPlayback).Methods("GET")
	r.HandleFunc("/api/playback", s.handleSetPlayback).Methods("POST")
	r.HandleFunc("/api/command/{name}", s.handleCommand).Methods("POST")
	r.HandleFunc("/ws/telemetry", s.handleTelemetryWS)
	return s
}

func (s *ControlServer) Handler() http.Handler { return s.router }

// Sessions returns the number of connected websocket clients.
func (s *ControlServer) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ListenAndServe serves on addr until ctx is done.
func (s *ControlServer) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Printf("web: control server listening on %s", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.closeSessions()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *ControlServer) closeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		sess.conn.Close()
		delete(s.sessions, id)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

func (s *ControlServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Snapshot(s.player, time.Now()))
}

func (s *ControlServer) ipdState() ipdResponse {
	st := s.player.Stats()
	return ipdResponse{IPD: st.IPD, IPDPixels: st.IPDPixels}
}

func (s *ControlServer) handleGetIPD(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ipdState())
}

func (s *ControlServer) handleSetIPD(w http.ResponseWriter, r *http.Request) {
	var req ipdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	ctl := s.player.Controller()
	switch {
	case req.IPD != nil:
		ctl.SetIPD(*req.IPD)
	case req.Delta != nil:
		ctl.AdjustIPD(*req.Delta)
	default:
		http.Error(w, `expected "ipd" or "delta"`, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.ipdState())
}

func (s *ControlServer) handleGetPlayback(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.player.Controller().Playback())
}

func (s *ControlServer) handleSetPlayback(w http.ResponseWriter, r *http.Request) {
	var req playbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	ctl := s.player.Controller()
	var err error
	switch {
	case req.PositionMS != nil:
		err = ctl.Seek(time.Duration(*req.PositionMS) * time.Millisecond)
	case req.Command != "":
		err = ctl.Dispatch(control.Command(req.Command))
	default:
		http.Error(w, `expected "command" or "position_ms"`, http.StatusBadRequest)
		return
	}
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ctl.Playback())
}

func (s *ControlServer) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.player.Controller().Dispatch(control.Command(name)); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Snapshot(s.player, time.Now()))
}

func writeCommandError(w http.ResponseWriter, err error) {
	status := http.StatusConflict
	if errors.Is(err, control.ErrUnknownCommand) {
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}

// handleTelemetryWS streams telemetry to the client and applies commands it
// sends back.
func (s *ControlServer) handleTelemetryWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	sess := &wsSession{id: uuid.New().String(), conn: conn}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	log.Printf("web: telemetry session %s connected from %s", sess.id, r.RemoteAddr)

	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()
		conn.Close()
		log.Printf("web: telemetry session %s closed", sess.id)
	}()

	if err := sess.send(WSResponse{Type: "hello", Session: sess.id}); err != nil {
		return
	}

	done := make(chan struct{})
	defer close(done)
	go s.streamTelemetry(sess, done)

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("web: websocket read error: %v", err)
			}
			return
		}
		resp := s.applyMessage(msg)
		resp.Session = sess.id
		if err := sess.send(resp); err != nil {
			return
		}
	}
}

func (s *ControlServer) applyMessage(msg WSMessage) WSResponse {
	ctl := s.player.Controller()
	var err error
	switch {
	case msg.IPD != nil:
		ctl.SetIPD(*msg.IPD)
	case msg.PositionMS != nil:
		err = ctl.Seek(time.Duration(*msg.PositionMS) * time.Millisecond)
	case msg.Command != "":
		err = ctl.Dispatch(control.Command(msg.Command))
	default:
		err = errors.New("empty message")
	}
	if err != nil {
		return WSResponse{Type: "error", Message: err.Error()}
	}
	t := Snapshot(s.player, time.Now())
	return WSResponse{Type: "ack", Telemetry: &t}
}

func (s *ControlServer) streamTelemetry(sess *wsSession, done <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			t := Snapshot(s.player, now)
			if err := sess.send(WSResponse{Type: "telemetry", Session: sess.id, Telemetry: &t}); err != nil {
				return
			}
		}
	}
}
