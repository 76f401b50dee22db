// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relabs-tech/inertial_vio/internal/config"
	"github.com/relabs-tech/inertial_vio/internal/frame"
	"github.com/relabs-tech/inertial_vio/internal/fusion"
	"github.com/relabs-tech/inertial_vio/internal/transport"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const (
	wsSendBuffer = 16
	wsWriteWait  = 2 * time.Second
)

// WSMessage is a command sent by a pose stream client.
type WSMessage struct {
	Action string `json:"action"` // reset
	Reason string `json:"reason,omitempty"`
}

// WSResponse is pushed to pose stream clients.
type WSResponse struct {
	Type    string              `json:"type"` // hello, pose, error
	Client  string              `json:"client,omitempty"`
	Pose    *fusion.PoseMessage `json:"pose,omitempty"`
	Message string              `json:"message,omitempty"`
}

// ResetFunc requests an estimator reset.
type ResetFunc func(frame.ResetRequest) error

// PoseServer serves the latest fused pose over HTTP and websocket.
type PoseServer struct {
	reset  ResetFunc
	logger *zap.SugaredLogger

	mu       sync.RWMutex
	lastPose fusion.PoseMessage
	havePose bool
	clients  map[string]*wsClient
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// NewPoseServer returns a server that forwards reset requests to reset.
func NewPoseServer(reset ResetFunc, logger *zap.SugaredLogger) *PoseServer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PoseServer{
		reset:   reset,
		logger:  logger,
		clients: make(map[string]*wsClient),
	}
}

// Update records msg as the latest pose and pushes it to stream clients.
// Slow clients miss updates rather than blocking the caller.
func (s *PoseServer) Update(msg fusion.PoseMessage) {
	payload, err := json.Marshal(WSResponse{Type: "pose", Pose: &msg})
	if err != nil {
		s.logger.Warnw("web: pose marshal error", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPose = msg
	s.havePose = true
	for id, c := range s.clients {
		select {
		case c.send <- payload:
		default:
			s.logger.Debugw("web: dropping pose for slow client", "client", id)
		}
	}
}

// Handler returns the HTTP routes. Static files are served from staticDir
// when it is not empty.
func (s *PoseServer) Handler(staticDir string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/pose", s.handlePose)
	mux.HandleFunc("POST /api/reset", s.handleReset)
	mux.HandleFunc("GET /ws/pose", s.handleStream)
	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}
	return mux
}

func (s *PoseServer) handlePose(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.havePose {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.lastPose); err != nil {
		s.logger.Warnw("web: json encode error", "error", err)
	}
}

func (s *PoseServer) handleReset(w http.ResponseWriter, r *http.Request) {
	var req frame.ResetRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid reset request: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "web"
	}
	if err := s.reset(req); err != nil {
		s.logger.Warnw("web: reset publish error", "error", err)
		http.Error(w, "reset failed", http.StatusBadGateway)
		return
	}
	s.logger.Infow("web: reset requested", "reason", req.Reason)
	w.WriteHeader(http.StatusAccepted)
}

func (s *PoseServer) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("web: websocket upgrade error", "error", err)
		return
	}

	c := &wsClient{id: uuid.NewString(), conn: conn, send: make(chan []byte, wsSendBuffer)}
	hello, _ := json.Marshal(WSResponse{Type: "hello", Client: c.id})
	c.send <- hello

	s.mu.Lock()
	s.clients[c.id] = c
	if s.havePose {
		last := s.lastPose
		if payload, err := json.Marshal(WSResponse{Type: "pose", Pose: &last}); err == nil {
			c.send <- payload
		}
	}
	n := len(s.clients)
	s.mu.Unlock()
	s.logger.Infow("web: stream client connected", "client", c.id, "clients", n)

	done := make(chan struct{})
	go s.writeLoop(c, done)
	s.readLoop(c)

	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	close(done)
	conn.Close()
	s.logger.Infow("web: stream client disconnected", "client", c.id)
}

func (s *PoseServer) writeLoop(c *wsClient, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.logger.Debugw("web: websocket write error", "client", c.id, "error", err)
				c.conn.Close()
				return
			}
		}
	}
}

func (s *PoseServer) readLoop(c *wsClient) {
	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				s.logger.Debugw("web: websocket read error", "client", c.id, "error", err)
			}
			return
		}

		switch msg.Action {
		case "reset":
			reason := msg.Reason
			if reason == "" {
				reason = "web:" + c.id
			}
			if err := s.reset(frame.ResetRequest{Reason: reason}); err != nil {
				s.sendError(c, fmt.Sprintf("reset failed: %v", err))
			}
		default:
			s.sendError(c, fmt.Sprintf("unknown action %q", msg.Action))
		}
	}
}

func (s *PoseServer) sendError(c *wsClient, message string) {
	payload, _ := json.Marshal(WSResponse{Type: "error", Message: message})
	select {
	case c.send <- payload:
	default:
	}
}

// Clients returns the number of connected stream clients.
func (s *PoseServer) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// RunWeb subscribes to fused poses and serves them over HTTP.
func RunWeb() error {
	cfg := config.Get()
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	client, err := transport.Connect(cfg.MQTTBroker, cfg.MQTTClientIDWeb, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(transport.DisconnectQuiesce)

	srv := NewPoseServer(func(req frame.ResetRequest) error {
		return transport.PublishJSON(client, cfg.TopicReset, false, req)
	}, logger)

	if err := transport.SubscribeJSON(client, cfg.TopicPose, logger, srv.Update); err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	logger.Infow("web: server listening", "addr", addr)
	return http.ListenAndServe(addr, srv.Handler("web"))
}
