package restserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/chrissnell/freqtest/internal/acquisition"
	"github.com/chrissnell/freqtest/pkg/responseformat"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait        = 10 * time.Second
	clientBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Envelope wraps every event sent to websocket clients
type Envelope struct {
	Type acquisition.EventType `json:"type"`
	Time time.Time             `json:"time"`
	Data acquisition.Event     `json:"data"`
}

// Hub broadcasts controller events to websocket clients. It is an event sink.
type Hub struct {
	logger  *zap.SugaredLogger
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// wsClient owns one connection. Only its writer goroutine writes to conn.
type wsClient struct {
	conn      *websocket.Conn
	format    responseformat.Format
	send      chan []byte
	closeOnce sync.Once
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// NewHub creates a hub with no clients
func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// StartEventSink implements sinks.EventSink
func (h *Hub) StartEventSink(ctx context.Context, wg *sync.WaitGroup) chan<- acquisition.Event {
	c := make(chan acquisition.Event, 16)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case ev := <-c:
				h.Broadcast(ev)
			case <-ctx.Done():
				h.closeAll()
				return
			}
		}
	}()

	return c
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues ev for every client. A client whose queue is full is
// disconnected rather than silently missing events.
func (h *Hub) Broadcast(ev acquisition.Event) {
	env := Envelope{Type: ev.Type(), Time: time.Now(), Data: ev}
	encoded := make(map[responseformat.Format][]byte, 2)

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		msg, ok := encoded[c.format]
		if !ok {
			var err error
			msg, err = responseformat.Marshal(c.format, env)
			if err != nil {
				h.logger.Errorf("could not encode %s event as %s: %v", ev.Type(), c.format, err)
				continue
			}
			encoded[c.format] = msg
		}

		select {
		case c.send <- msg:
		default:
			h.logger.Warnf("websocket client %v is not keeping up; disconnecting", c.conn.RemoteAddr())
			delete(h.clients, c)
			c.close()
		}
	}
}

// ServeWS upgrades the request and streams events until the client goes away
func (h *Hub) ServeWS(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.logger.Errorf("websocket upgrade failed: %v", err)
		return
	}

	c := &wsClient{
		conn:   conn,
		format: responseformat.FormatFromRequest(req),
		send:   make(chan []byte, clientBufferSize),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Infof("websocket client %v connected (%s)", conn.RemoteAddr(), c.format)

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client messages and unregisters the client when the
// connection drops.
func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.remove(c)
		h.logger.Infof("websocket client %v disconnected", c.conn.RemoteAddr())
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debugf("websocket read error: %v", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	defer c.conn.Close()

	messageType := websocket.TextMessage
	if c.format == responseformat.MsgPack {
		messageType = websocket.BinaryMessage
	}

	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(messageType, msg); err != nil {
			h.remove(c)
			return
		}
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
