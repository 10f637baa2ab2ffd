package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rewired-gh/macrooracle/internal/logger"
)

const (
	defaultRunsLimit = 50
	maxRunsLimit     = 500
)

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	latest := s.loop.Latest()
	if latest == nil {
		writeError(w, http.StatusServiceUnavailable, "agent loop has not completed its first run yet")
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func (s *Server) handleRunNow(w http.ResponseWriter, r *http.Request) {
	result, err := s.loop.RunNow(r.Context())
	if err != nil {
		logger.Warn("Forced run failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.loop.Status())
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}
	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		logger.Error("Failed to list runs: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(runs), "runs": runs})
}

// handleAgentFeed pushes the cached result on connect, then every new result as a JSON text
// frame until the client leaves or the subscription is closed.
func (s *Server) handleAgentFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := s.loop.Subscribe()
	defer s.loop.Unsubscribe(sub)

	// The client never sends data frames; reading surfaces close frames and resets the
	// deadline on pong.
	gone := make(chan struct{})
	readDeadline := 2 * s.config.WSPingInterval
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(messageType int, data []byte) error {
		_ = conn.SetWriteDeadline(time.Now().Add(s.config.WSWriteTimeout))
		return conn.WriteMessage(messageType, data)
	}

	lastSent := 0
	if latest := s.loop.Latest(); latest != nil {
		payload, err := json.Marshal(latest)
		if err == nil {
			if err := write(websocket.TextMessage, payload); err != nil {
				return
			}
			lastSent = latest.Loop.RunNumber
		}
	}

	ping := time.NewTicker(s.config.WSPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-gone:
			return
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		case u, ok := <-sub.C:
			if !ok {
				_ = write(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"))
				return
			}
			if u.RunNumber <= lastSent {
				continue
			}
			if err := write(websocket.TextMessage, u.Payload); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					logger.Debug("WebSocket write failed: %v", err)
				}
				return
			}
			lastSent = u.RunNumber
		}
	}
}
