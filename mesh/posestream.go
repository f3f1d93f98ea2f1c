package mesh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kwv/slamview/internal/logger"
)

const (
	hubSendBuffer   = 16
	hubWriteTimeout = 5 * time.Second

	defaultStreamMinBackoff = 500 * time.Millisecond
	defaultStreamMaxBackoff = 30 * time.Second
)

// ErrStreamClosed is returned by PoseStream.Run after Close.
var ErrStreamClosed = errors.New("pose stream closed")

// ParsePoseMessage decodes a pose message of the form {"x": <num>, "y": <num>}.
// Extra fields are ignored. Anything else, including non-finite numbers, is
// rejected.
func ParsePoseMessage(data []byte) (PoseSample, bool) {
	var msg struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return PoseSample{}, false
	}
	if msg.X == nil || msg.Y == nil {
		return PoseSample{}, false
	}
	sample := PoseSample{X: *msg.X, Y: *msg.Y}
	if !sample.Valid() {
		return PoseSample{}, false
	}
	return sample, true
}

// PoseHub fans pose messages out to connected websocket clients.
type PoseHub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*hubClient
	closed  bool
}

type hubClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// NewPoseHub creates an empty hub. Cross-origin upgrades are accepted.
func NewPoseHub() *PoseHub {
	return &PoseHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[string]*hubClient),
	}
}

// ServeWS upgrades the request and keeps the client registered until its
// connection closes. Messages sent by clients are read and discarded.
func (h *PoseHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Warnf("[WS] upgrade failed: %v", err)
		return
	}

	c := &hubClient{id: uuid.NewString(), conn: conn, send: make(chan []byte, hubSendBuffer)}
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	logger.Sugar.Infof("[WS] client %s connected from %s", c.id, r.RemoteAddr)

	go h.writeLoop(c)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(c.id)
	logger.Sugar.Infof("[WS] client %s disconnected", c.id)
}

func (h *PoseHub) register(c *hubClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	return true
}

func (h *PoseHub) unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.send)
	}
}

func (h *PoseHub) writeLoop(c *hubClient) {
	defer func() { _ = c.conn.Close() }()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			logger.Sugar.Debugf("[WS] write to %s failed: %v", c.id, err)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

// Publish broadcasts sample as {"x":..,"y":..}.
func (h *PoseHub) Publish(sample PoseSample) error {
	payload, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("marshaling pose: %w", err)
	}
	h.Broadcast(payload)
	return nil
}

// Broadcast queues msg for every client. A client whose queue is full misses
// the message; only the latest pose matters.
func (h *PoseHub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			logger.Sugar.Debugf("[WS] client %s is behind, dropping message", id)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *PoseHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *PoseHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}

// PoseStream is the inbound pose channel: it dials a websocket endpoint and
// hands every well-formed sample to a handler, reconnecting with backoff when
// the connection drops.
type PoseStream struct {
	url     string
	handler func(PoseSample)
	dialer  *websocket.Dialer

	minBackoff time.Duration
	maxBackoff time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewPoseStream creates a stream for url. handler is called from the Run
// goroutine and must not call Close.
func NewPoseStream(url string, handler func(PoseSample)) *PoseStream {
	return &PoseStream{
		url:        url,
		handler:    handler,
		dialer:     websocket.DefaultDialer,
		minBackoff: defaultStreamMinBackoff,
		maxBackoff: defaultStreamMaxBackoff,
	}
}

// Run connects and delivers samples until ctx is done or Close is called.
func (s *PoseStream) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	backoff := s.minBackoff
	for {
		if s.isClosed() {
			return s.exitErr(ctx)
		}

		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			if s.isClosed() {
				return s.exitErr(ctx)
			}
			logger.Sugar.Warnf("[POSE] dial %s failed: %v (retrying in %v)", s.url, err, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, s.maxBackoff)
			continue
		}

		if !s.attach(conn) {
			_ = conn.Close()
			return s.exitErr(ctx)
		}
		logger.Sugar.Infof("[POSE] connected to %s", s.url)
		backoff = s.minBackoff

		s.readLoop(conn)
		s.detach(conn)
		if !s.isClosed() {
			logger.Sugar.Warnf("[POSE] connection to %s lost, reconnecting", s.url)
		}
	}
}

func (s *PoseStream) readLoop(conn *websocket.Conn) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		sample, ok := ParsePoseMessage(data)
		if !ok {
			logger.Sugar.Debugf("[POSE] dropping malformed message %q", truncate(data, 64))
			continue
		}
		s.deliver(sample)
	}
}

// deliver runs the handler under the stream lock so Close cannot return
// while a delivery is in flight.
func (s *PoseStream) deliver(sample PoseSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.handler == nil {
		return
	}
	s.handler(sample)
}

func (s *PoseStream) attach(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conn = conn
	return true
}

func (s *PoseStream) detach(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		s.conn = nil
	}
	_ = conn.Close()
}

func (s *PoseStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *PoseStream) exitErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrStreamClosed
}

// Close tears the connection down. No sample is delivered after Close
// returns. It is safe to call more than once.
func (s *PoseStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
