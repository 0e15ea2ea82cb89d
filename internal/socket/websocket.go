package socket

import (
	"sync"

	"github.com/gorilla/websocket"
)

// frame is the JSON envelope exchanged with the real-time server.
type frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// WebsocketTransport implements Transport on a gorilla/websocket client.
type WebsocketTransport struct {
	dialer *websocket.Dialer
}

// NewWebsocketTransport creates a transport using the default dialer.
func NewWebsocketTransport() *WebsocketTransport {
	return &WebsocketTransport{dialer: websocket.DefaultDialer}
}

// Dial returns a handle immediately and connects in the background,
// reporting the outcome through the handlers.
func (t *WebsocketTransport) Dial(url string, h Handlers) (Conn, error) {
	c := &wsConn{handlers: h}
	go c.connect(t.dialer, url)
	return c, nil
}

type wsConn struct {
	handlers Handlers

	mu        sync.Mutex
	ws        *websocket.Conn
	connected bool
	closed    bool
}

func (c *wsConn) connect(dialer *websocket.Dialer, url string) {
	ws, resp, err := dialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if c.handlers.OnConnectError != nil {
			c.handlers.OnConnectError(err)
		}
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ws.Close()
		return
	}
	c.ws = ws
	c.connected = true
	c.mu.Unlock()

	if c.handlers.OnConnect != nil {
		c.handlers.OnConnect()
	}

	c.readLoop(ws)
}

// readLoop drains inbound frames until the link drops. Its exit is the
// transport-level disconnect event.
func (c *wsConn) readLoop(ws *websocket.Conn) {
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			c.mu.Lock()
			c.connected = false
			closedByClient := c.closed
			c.mu.Unlock()

			reason := ReasonTransportClose
			if closedByClient {
				reason = ReasonClientDisconnect
			} else if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				reason = ReasonServerDisconnect
			}

			if c.handlers.OnDisconnect != nil {
				c.handlers.OnDisconnect(reason)
			}
			return
		}
	}
}

func (c *wsConn) Emit(event string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.ws == nil {
		return ErrNotConnected
	}
	return c.ws.WriteJSON(frame{Event: event, Data: payload})
}

func (c *wsConn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.connected = false
	ws := c.ws
	c.mu.Unlock()

	if ws != nil {
		return ws.Close()
	}
	return nil
}
