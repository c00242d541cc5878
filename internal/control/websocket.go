package control

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/api/schemas"
	"github.com/xkilldash9x/snapclick/internal/events"
	"github.com/xkilldash9x/snapclick/internal/service"
)

// Constants for WebSocket timeouts and limits (based on Gorilla WebSocket examples).
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
	// Default send buffer size.
	sendChannelSize = 256
)

// Frame kinds sent to WebSocket clients.
const (
	FrameEvent  = "event"
	FrameResult = "result"
)

// Frame is one outgoing WebSocket message: either a published event or the
// reply to a command sent over the socket.
type Frame struct {
	Kind   string          `json:"kind"`
	ID     string          `json:"id,omitempty"`
	Event  *events.Event   `json:"event,omitempty"`
	Result *service.Result `json:"result,omitempty"`
}

// Request is a command sent over the socket. ID is echoed in the reply.
type Request struct {
	ID string `json:"id"`
	service.Command
}

// wsClient represents a single active WebSocket connection.
type wsClient struct {
	server *Server
	conn   *websocket.Conn
	events <-chan events.Event
	// replies is drained by the writePump, which owns every write.
	replies chan Frame
	done    chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
	logger   *zap.Logger
}

func parseTypes(raw string) []schemas.EventType {
	var out []schemas.EventType
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, schemas.EventType(t))
		}
	}
	return out
}

// handleEvents upgrades the connection and streams events, optionally
// filtered by ?types=a,b. Commands may be sent back on the same socket.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.clients.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		s.logger.Warn("Failed to upgrade connection to WebSocket.", zap.Error(err))
		return
	}

	stream, unsubscribe := s.bus.Subscribe(parseTypes(r.URL.Query().Get("types"))...)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	c := &wsClient{
		server:  s,
		conn:    conn,
		events:  stream,
		replies: make(chan Frame, s.cfg.SendBuffer),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		logger:  s.logger.With(zap.String("remote", r.RemoteAddr)),
	}
	c.logger.Info("WebSocket client connected.")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()
	c.readPump()

	cancel()
	c.inflight.Wait()
	<-writerDone
	c.logger.Info("WebSocket client disconnected.")
}

// readPump consumes client frames until the connection fails or closes.
func (c *wsClient) readPump() {
	defer close(c.done)

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error("Failed to set initial read deadline.", zap.Error(err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("WebSocket closed unexpectedly.", zap.Error(err))
			}
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil || req.Name == "" {
			c.reply(Frame{Kind: FrameResult, ID: req.ID, Result: &service.Result{Error: "malformed command frame"}})
			continue
		}

		// Commands run off the read loop so pongs and close frames keep flowing.
		c.inflight.Add(1)
		go func(req Request) {
			defer c.inflight.Done()
			ctx := c.ctx
			if t := c.server.cfg.RequestTimeout; t > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, t)
				defer cancel()
			}
			res := c.server.exec.Execute(ctx, req.Command)
			c.reply(Frame{Kind: FrameResult, ID: req.ID, Result: &res})
		}(req)
	}
}

func (c *wsClient) reply(f Frame) {
	select {
	case c.replies <- f:
	case <-c.done:
	default:
		c.logger.Warn("WebSocket send buffer full, dropping reply.", zap.String("id", f.ID))
	}
}

// writePump owns every write to the connection: events, replies and pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.events:
			if !ok {
				c.close(websocket.CloseGoingAway, "event stream closed")
				return
			}
			if !c.write(Frame{Kind: FrameEvent, Event: &ev}) {
				return
			}

		case f := <-c.replies:
			if !c.write(f) {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("Error sending ping.", zap.Error(err))
				return
			}

		case <-c.server.closing:
			c.close(websocket.CloseGoingAway, "server shutting down")
			return

		case <-c.done:
			return
		}
	}
}

func (c *wsClient) write(f Frame) bool {
	data, err := json.Marshal(f)
	if err != nil {
		c.logger.Error("Failed to encode frame.", zap.Error(err))
		return true
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Debug("Error writing to WebSocket.", zap.Error(err))
		return false
	}
	return true
}

func (c *wsClient) close(code int, reason string) {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}
