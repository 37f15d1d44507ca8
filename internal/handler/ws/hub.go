// Package ws pushes metric change events to connected dashboards over
// websockets.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"CoinDash/internal/domain/models"
	domrepo "CoinDash/internal/domain/repository"
	applogger "CoinDash/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	sendBuffer   = 16
)

// Hub fans metric events out to every connected client. A client whose send
// buffer is full is disconnected rather than allowed to stall the others.
type Hub struct {
	logger   *applogger.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

func NewHub(logger *applogger.Logger) *Hub {
	if logger == nil {
		logger = applogger.Nop()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The API is served with permissive CORS; the socket follows suit.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/ws/metrics", h.Serve)
}

// Serve upgrades the request and blocks until the client goes away.
func (h *Hub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", applogger.Error(err))
		return nil
	}

	cl := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.add(cl) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		_ = conn.Close()
		return nil
	}
	h.logger.Debug("websocket client connected", applogger.String("remote", c.RealIP()), applogger.Int("clients", h.Len()))

	go h.writePump(cl)
	h.readPump(cl)
	return nil
}

func (h *Hub) add(cl *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[cl] = struct{}{}
	return true
}

func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
	}
	h.mu.Unlock()
	cl.close()
}

// readPump discards client messages; it exists to process pongs and notice
// disconnects.
func (h *Hub) readPump(cl *client) {
	defer h.remove(cl)

	cl.conn.SetReadLimit(512)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", applogger.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Broadcast sends ev to every connected client.
func (h *Hub) Broadcast(ev models.MetricEvent) {
	b, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("encode metric event", applogger.Error(err))
		return
	}

	var slow []*client
	h.mu.RLock()
	for cl := range h.clients {
		select {
		case cl.send <- b:
		default:
			slow = append(slow, cl)
		}
	}
	h.mu.RUnlock()

	for _, cl := range slow {
		h.logger.Warn("dropping slow websocket client")
		h.remove(cl)
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.closed = true
	h.mu.Unlock()

	for cl := range clients {
		cl.close()
	}
	return nil
}

var _ domrepo.MetricEventSink = (*Hub)(nil)
