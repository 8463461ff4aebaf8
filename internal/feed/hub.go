// Package feed serves client events to browser UIs over a websocket and
// exposes a small HTTP control API.
package feed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nightfall-go/mapper/internal/core/event"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Envelope is the wire form of every event.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Command is what a UI may send over the websocket.
type Command struct {
	Type   string `json:"type"` // "send", "route", "cancel"
	Text   string `json:"text,omitempty"`
	Target int    `json:"target,omitempty"`
}

// Hub fans bus events out to every connected websocket.
type Hub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	ctl     Controller
	log     *zap.Logger
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub subscribes to every event on bus. ctl may be nil, in which case
// websocket commands are ignored.
func NewHub(bus *event.Bus, ctl Controller, log *zap.Logger) *Hub {
	h := &Hub{
		clients: make(map[*wsClient]struct{}),
		ctl:     ctl,
		log:     log,
	}
	bus.SubscribeAll(h.broadcast)
	return h
}

// Count returns the number of connected websockets.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(ev any) {
	msg, err := json.Marshal(Envelope{Type: event.Name(ev), Data: ev})
	if err != nil {
		h.log.Warn("事件編碼失敗", zap.String("type", event.Name(ev)), zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// Slow reader; drop it rather than stall the publisher.
			delete(h.clients, c)
			close(c.send)
			h.log.Debug("websocket 佇列已滿，斷開")
		}
	}
}

// ServeWS upgrades the request and starts the client's pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket 升級失敗", zap.Error(err))
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Info("websocket 已連線", zap.String("remote", r.RemoteAddr))

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var cmd Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug("websocket 讀取錯誤", zap.Error(err))
			}
			return
		}
		h.dispatch(cmd)
	}
}

func (h *Hub) dispatch(cmd Command) {
	if h.ctl == nil {
		return
	}
	switch cmd.Type {
	case "send":
		if err := h.ctl.Send(cmd.Text); err != nil {
			h.log.Warn("websocket 指令發送失敗", zap.Error(err))
		}
	case "route":
		h.ctl.RequestRoute(cmd.Target)
	case "cancel":
		h.ctl.CancelRoute()
	default:
		h.log.Debug("未知的 websocket 指令", zap.String("type", cmd.Type))
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Debug("websocket 寫入失敗", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
