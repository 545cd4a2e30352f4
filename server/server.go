package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mnm89/solana-games/clickgame"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

type Config struct {
	Addr string
}

// Server accepts websocket connections and feeds their events into the
// game manager; the hub carries the manager's notifications back out.
type Server struct {
	cfg Config
	log slog.Logger

	hub         *Hub
	gameManager *clickgame.GameManager
	upgrader    websocket.Upgrader

	httpServer *http.Server
}

func New(cfg Config, log slog.Logger, hub *Hub, gm *clickgame.GameManager) *Server {
	return &Server{
		cfg:         cfg,
		log:         log,
		hub:         hub,
		gameManager: gm,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The deployment fronts this with its own origin policy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run serves until ctx is cancelled, then shuts everything down.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.httpServer = &http.Server{Addr: s.cfg.Addr, Handler: mux}

	errc := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", s.cfg.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("error shutting down HTTP server: %v", err)
	}
	s.hub.CloseAll()
	s.gameManager.Shutdown()
	s.log.Info("server shut down completed")
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("websocket upgrade failed: %v", err)
		return
	}

	c := &conn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, sendBufSize),
	}
	s.log.Debugf("connection established: %s", c.id)
	s.hub.add(c)
	s.gameManager.AddSession(c.id)

	go s.writePump(c)
	s.readPump(c)
}

// readPump consumes inbound frames until the connection drops, then
// translates the disconnect into a leave.
func (s *Server) readPump(c *conn) {
	defer func() {
		s.hub.remove(c.id)
		s.gameManager.HandleDisconnect(c.id)
		_ = c.ws.Close()
		s.log.Debugf("connection closed: %s", c.id)
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debugf("read error on %s: %v", c.id, err)
			}
			return
		}
		s.dispatch(c.id, raw)
	}
}

func (s *Server) writePump(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case b, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
