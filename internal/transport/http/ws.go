package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

const (
	wsWriteTimeout   = 10 * time.Second
	wsMaxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsConn serializes writes to one WebSocket connection.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// ChatWebSocket serves chat turns over a WebSocket. Each text frame is a chat
// request; the reply is streamed as annotated JSON ClientEvent frames. Turns
// on one connection run one at a time.
// GET /chat/ws
func (h *Handler) ChatWebSocket(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("failed to upgrade websocket", "err", err)
		return nil
	}
	conn := &wsConn{conn: ws}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	requests := make(chan []byte)
	go h.readPump(ctx, cancel, ws, requests)
	go h.pingPump(ctx, conn)

	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-requests:
			h.serveTurn(ctx, conn, data)
		}
	}
}

// readPump forwards incoming frames until the connection fails, then cancels
// ctx so an active turn stops.
func (h *Handler) readPump(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, out chan<- []byte) {
	defer cancel()

	ws.SetReadLimit(wsMaxMessageSize)
	ws.SetReadDeadline(time.Now().Add(h.wsReadTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(h.wsReadTimeout))
		return nil
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "err", err)
			}
			return
		}
		select {
		case out <- message:
		case <-ctx.Done():
			return
		}
		// The hand-off waits for the previous turn to finish.
		ws.SetReadDeadline(time.Now().Add(h.wsReadTimeout))
	}
}

func (h *Handler) pingPump(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(h.wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}

func (h *Handler) serveTurn(ctx context.Context, conn *wsConn, data []byte) {
	var req domain.ChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.writeTurnError(conn, fmt.Sprintf("%v: invalid JSON message", domain.ErrInvalidRequest))
		return
	}

	turn, err := h.service.BeginChat(ctx, req)
	if err != nil {
		message := genericErrorMessage
		if h.service.Debug() || isInvalidRequest(err) {
			message = err.Error()
		}
		h.writeTurnError(conn, message)
		return
	}

	turn.Stream(ctx, true, func(ev domain.ClientEvent) error {
		return conn.writeJSON(ev)
	})
}

func (h *Handler) writeTurnError(conn *wsConn, message string) {
	if err := conn.writeJSON(domain.ErrorEvent("", message)); err != nil {
		h.logger.Warn("failed to write websocket error", "message", message, "err", err)
	}
}
