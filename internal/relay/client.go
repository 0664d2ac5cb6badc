package relay

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/aura-meet/signaling/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 65536
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // clients connect from arbitrary hosts; this is not an auth boundary
	},
}

// Client is one WebSocket connection. It implements registry.Conn.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once
	logger *zap.Logger
}

// Send queues one outbound message. A full buffer counts as a failed send;
// the liveness monitor deals with the connection, not the sender.
func (c *Client) Send(data []byte) error {
	if c.closed.Load() {
		return websocket.ErrCloseSent
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

// Ping writes a transport-level ping control frame.
func (c *Client) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// IsOpen reports whether the connection can still deliver.
func (c *Client) IsOpen() bool {
	return !c.closed.Load()
}

// CloseWithReason force-closes the transport. The read pump observes the
// close and runs the normal teardown, so eviction and organic disconnect
// share one path.
func (c *Client) CloseWithReason(reason string) {
	c.once.Do(func() {
		c.closed.Store(true)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = c.conn.Close()
	})
}

var errSendBufferFull = errors.New("send buffer full")

// ServeWS upgrades the request and runs the connection until it closes.
// pongWait is the read deadline extended on every pong and inbound message.
func ServeWS(router *Router, broadcaster *Broadcaster, logger *zap.Logger, iceServers []webrtc.ICEServer, pongWait time.Duration) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			conn:   conn,
			send:   make(chan []byte, sendBufferSize),
			done:   make(chan struct{}),
			logger: logger,
		}
		info := router.registry.Register(client)
		logger.Info("client connected",
			zap.String("display_id", info.DisplayID),
			zap.String("remote_addr", ctx.Request.RemoteAddr),
		)

		go client.writePump()
		client.welcome(router, broadcaster, info.DisplayID, info.ConnectionID, ctx.Request.RemoteAddr, iceServers)
		client.readPump(router, pongWait)
	}
}

// welcome sends the connection acknowledgment, the ICE configuration blob
// (verbatim), and announces the arrival globally.
func (c *Client) welcome(router *Router, broadcaster *Broadcaster, displayID, connectionID, remoteAddr string, iceServers []webrtc.ICEServer) {
	if body, err := protocol.Notify(protocol.NotifyConnectionSuccess, gin.H{
		"displayId":    displayID,
		"connectionId": connectionID,
		"serverTime":   time.Now().UnixMilli(),
	}); err == nil {
		_ = c.Send(body)
	}
	if body, err := protocol.Notify(protocol.NotifyICEServers, iceServers); err == nil {
		_ = c.Send(body)
	}
	if body, err := protocol.Notify(protocol.NotifyNetworkInfo, gin.H{
		"remoteAddr": remoteAddr,
	}); err == nil {
		_ = c.Send(body)
	}
	_ = c.Send(protocol.Delim(protocol.TypeConnected, protocol.GlobalMeetingID, protocol.ServerSender,
		"Welcome "+displayID))
	broadcaster.Global(protocol.System(protocol.GlobalMeetingID, displayID+" connected"), c)
}

func (c *Client) readPump(router *Router, pongWait time.Duration) {
	defer func() {
		c.closed.Store(true)
		router.Disconnect(c, "connection closed")
		close(c.done)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		router.registry.Touch(c)
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		router.Route(c, data)
	}
}

func (c *Client) writePump() {
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
