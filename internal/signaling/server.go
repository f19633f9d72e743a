package signaling

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/drawbridge-app/signal-broker/internal/broker"
	"github.com/drawbridge-app/signal-broker/internal/config"
	"github.com/drawbridge-app/signal-broker/internal/metrics"
	"github.com/drawbridge-app/signal-broker/internal/ratelimit"
)

const (
	writeWait     = 10 * time.Second
	sendQueueSize = 256
)

var (
	errSendQueueFull = errors.New("send queue full")
	errConnClosed    = errors.New("connection closed")
)

// Server upgrades HTTP requests to signaling WebSocket connections and runs
// the per-connection read/write pumps. Clients may connect on any path; the
// path carries no meaning (rooms are joined via subscribe messages), which
// matches how the browser sync provider dials the broker.
type Server struct {
	log     *slog.Logger
	cfg     config.Config
	broker  *broker.Broker
	router  *Router
	metrics *metrics.Metrics

	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*wsConn]struct{}
	closed bool
}

func NewServer(cfg config.Config, logger *slog.Logger, b *broker.Broker, router *Router, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		log:     logger,
		cfg:     cfg,
		broker:  b,
		router:  router,
		metrics: m,
		conns:   make(map[*wsConn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(cfg.AllowedOrigins, r.Header.Get("Origin"))
		},
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	s.mu.Unlock()

	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error (e.g. origin rejected).
		s.log.Debug("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	c := &wsConn{
		id:      uuid.NewString(),
		sock:    sock,
		send:    make(chan []byte, sendQueueSize),
		done:    make(chan struct{}),
		limiter: ratelimit.New(nil, s.cfg.MaxMessagesPerSecond),
		server:  s,
	}
	c.alive.Store(true)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = sock.Close()
		return
	}
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	s.broker.Register(c)
	s.log.Info("client connected", "conn", c.id, "remote_addr", r.RemoteAddr)

	go c.writePump()
	go c.readPump()
}

// Close force-closes every live connection. Each close funnels through the
// normal teardown path, so registries unwind exactly as they would for a
// client-initiated disconnect.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

func (s *Server) dropConn(c *wsConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// wsConn adapts a gorilla connection to broker.Conn. Reads and writes run on
// dedicated goroutines; Send only enqueues.
type wsConn struct {
	id      string
	sock    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	limiter *ratelimit.TokenBucket
	server  *Server

	// alive reports whether the most recent keepalive probe was answered.
	alive     atomic.Bool
	closeOnce sync.Once
}

func (c *wsConn) ID() string { return c.id }

// Send enqueues a frame for the write pump. It fails fast when the peer's
// queue is full rather than blocking the caller, so one slow client cannot
// stall a broadcast to its roommates.
func (c *wsConn) Send(data []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		return errSendQueueFull
	}
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return c.sock.Close()
}

// readPump owns all reads and is the single place teardown is triggered:
// protocol close, transport error, rate-limit violation, and keepalive reaping
// (which closes the socket and surfaces here as a read error) all exit this
// loop.
func (c *wsConn) readPump() {
	defer func() {
		c.server.broker.Teardown(c)
		c.server.dropConn(c)
		_ = c.Close()
		c.server.log.Info("client disconnected", "conn", c.id)
	}()

	c.sock.SetReadLimit(c.server.cfg.MaxMessageBytes)
	c.sock.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	for {
		_, frame, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.log.Debug("read error", "conn", c.id, "error", err)
			}
			return
		}

		if !c.limiter.Allow() {
			c.server.log.Warn("closing connection exceeding message rate", "conn", c.id)
			c.server.metrics.Inc(metrics.EventRateLimited)
			c.writeClose(websocket.ClosePolicyViolation, "message rate exceeded")
			return
		}

		c.server.router.HandleFrame(c, frame)
	}
}

// writePump owns all writes, including the keepalive probes. A probe left
// unanswered by the next tick means the peer is gone: the socket is closed,
// which unwinds the connection through readPump.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.server.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if !c.alive.Load() {
				c.server.log.Warn("reaping unresponsive connection", "conn", c.id)
				c.server.metrics.Inc(metrics.EventConnectionReaped)
				return
			}
			c.alive.Store(false)
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.writeClose(websocket.CloseNormalClosure, "")
			return
		}
	}
}

func (c *wsConn) writeClose(code int, reason string) {
	_ = c.sock.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
}

// originAllowed implements the upgrade origin policy: an empty allowlist
// admits everything (including non-browser clients that send no Origin), and
// entries are compared case-insensitively with "*" as a wildcard.
func originAllowed(allowed []string, origin string) bool {
	if len(allowed) == 0 {
		return true
	}
	normalized := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(origin), "/"))
	if normalized == "" {
		return false
	}
	for _, entry := range allowed {
		if entry == "*" || entry == normalized {
			return true
		}
	}
	return false
}
