// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relabs-tech/tilt_computer/internal/config"
	"github.com/relabs-tech/tilt_computer/internal/pipeline"
	"github.com/relabs-tech/tilt_computer/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// maxRecentFaults bounds /api/faults.
const maxRecentFaults = 50

// WSUpdate is one push to websocket clients.
type WSUpdate struct {
	Type  string                 `json:"type"` // pose, fault
	Pose  *telemetry.PoseMessage `json:"pose,omitempty"`
	Fault *pipeline.Fault        `json:"fault,omitempty"`
}

// poseHub keeps the latest pose, a window of recent faults and the set of
// connected websocket clients.
type poseHub struct {
	mu       sync.RWMutex
	last     telemetry.PoseMessage
	havePose bool
	faults   []pipeline.Fault
	clients  map[chan WSUpdate]struct{}
}

func newPoseHub() *poseHub {
	return &poseHub{clients: make(map[chan WSUpdate]struct{})}
}

func (h *poseHub) setPose(m telemetry.PoseMessage) {
	h.mu.Lock()
	h.last = m
	h.havePose = true
	h.mu.Unlock()
	h.broadcast(WSUpdate{Type: "pose", Pose: &m})
}

func (h *poseHub) addFault(f pipeline.Fault) {
	h.mu.Lock()
	h.faults = append(h.faults, f)
	if len(h.faults) > maxRecentFaults {
		h.faults = h.faults[len(h.faults)-maxRecentFaults:]
	}
	h.mu.Unlock()
	h.broadcast(WSUpdate{Type: "fault", Fault: &f})
}

// broadcast never blocks; a client that is behind misses updates.
func (h *poseHub) broadcast(u WSUpdate) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- u:
		default:
		}
	}
}

func (h *poseHub) subscribe() chan WSUpdate {
	ch := make(chan WSUpdate, 16)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *poseHub) unsubscribe(ch chan WSUpdate) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

func (h *poseHub) pose() (telemetry.PoseMessage, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last, h.havePose
}

func (h *poseHub) recentFaults() []pipeline.Fault {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]pipeline.Fault, len(h.faults))
	copy(out, h.faults)
	return out
}

// newWebHandler wires the HTTP routes around hub. staticDir may be empty.
func newWebHandler(hub *poseHub, staticDir string, logger *zap.SugaredLogger) http.Handler {
	mux := http.NewServeMux()

	// JSON API endpoint: latest pose
	mux.HandleFunc("/api/orientation", func(w http.ResponseWriter, r *http.Request) {
		p, ok := hub.pose()
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(p); err != nil {
			logger.Warnf("web: json encode error: %v", err)
		}
	})

	mux.HandleFunc("/api/faults", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(hub.recentFaults()); err != nil {
			logger.Warnf("web: json encode error: %v", err)
		}
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWS(hub, w, r, logger)
	})

	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}
	return mux
}

// serveWS streams hub updates to one client until it disconnects.
func serveWS(hub *poseHub, w http.ResponseWriter, r *http.Request, logger *zap.SugaredLogger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	updates := hub.subscribe()
	defer hub.unsubscribe(updates)

	// The reader only exists to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if p, ok := hub.pose(); ok {
		if err := conn.WriteJSON(WSUpdate{Type: "pose", Pose: &p}); err != nil {
			return
		}
	}
	for {
		select {
		case <-gone:
			return
		case u := <-updates:
			conn.SetWriteDeadline(time.Now().Add(time.Second))
			if err := conn.WriteJSON(u); err != nil {
				logger.Debugf("web: websocket write error: %v", err)
				return
			}
		}
	}
}

// RunWeb serves the latest pose over HTTP and websocket, fed from MQTT.
func RunWeb(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) error {
	client, err := telemetry.Connect(cfg.MQTTBroker, cfg.MQTTClientIDWeb, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	hub := newPoseHub()
	if err := telemetry.SubscribePose(client, cfg.TopicPose, logger, hub.setPose); err != nil {
		return err
	}
	logger.Infof("web: subscribed to MQTT topic %s", cfg.TopicPose)
	if cfg.TopicFaults != "" {
		if err := telemetry.SubscribeFaults(client, cfg.TopicFaults, logger, hub.addFault); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           newWebHandler(hub, "web", logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Infof("web server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}
