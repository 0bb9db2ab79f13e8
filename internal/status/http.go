// Package status exposes the bot's live status over HTTP, a websocket stream
// and the gRPC health protocol, and provides a websocket client for it.
package status

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/huntbot/internal/bot/coordinator"
	"github.com/cory-johannsen/huntbot/internal/config"
)

const writeWait = 5 * time.Second

// Reporter produces status reports. *coordinator.Coordinator implements it.
type Reporter interface {
	Status() coordinator.Status
	Subscribe(ch chan<- coordinator.Status)
	Unsubscribe(ch chan<- coordinator.Status)
}

// Handler serves GET /status, GET /ws and GET /healthz.
type Handler struct {
	reporter Reporter
	logger   *zap.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// NewHandler returns the status HTTP handler. When cfg carries a username the
// /status and /ws endpoints require basic auth; /healthz never does.
//
// Precondition: reporter and logger must be non-nil.
func NewHandler(reporter Reporter, cfg config.StatusConfig, logger *zap.Logger) *Handler {
	h := &Handler{
		reporter: reporter,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}
	h.mux.Handle("GET /status", BasicAuth(http.HandlerFunc(h.handleStatus), cfg.Username, cfg.PasswordHash))
	h.mux.Handle("GET /ws", BasicAuth(http.HandlerFunc(h.handleStream), cfg.Username, cfg.PasswordHash))
	h.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.reporter.Status()); err != nil {
		h.logger.Warn("writing status response", zap.Error(err))
	}
}

// handleStream sends the current status immediately and then every report
// the Reporter publishes until the client goes away.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	defer conn.Close()

	ch := make(chan coordinator.Status, 1)
	h.reporter.Subscribe(ch)
	defer h.reporter.Unsubscribe(ch)

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.logger.Debug("status stream opened", zap.String("remote", r.RemoteAddr))
	if !h.write(conn, h.reporter.Status()) {
		return
	}
	for {
		select {
		case <-gone:
			h.logger.Debug("status stream closed", zap.String("remote", r.RemoteAddr))
			return
		case <-r.Context().Done():
			return
		case st := <-ch:
			if !h.write(conn, st) {
				return
			}
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, st coordinator.Status) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(st); err != nil {
		h.logger.Debug("status stream write failed", zap.Error(err))
		return false
	}
	return true
}
