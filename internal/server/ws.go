package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qontrol/qontrol/internal/dashboard"
	"github.com/qontrol/qontrol/internal/logging"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 60 * time.Second
	wsReadLimit    = 512
)

// FeedMessage is one websocket frame.
type FeedMessage struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

type feedClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *feedClient) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(messageType, data)
}

// QueueFeed pushes queue snapshots to websocket clients: one on connect, then one per interval.
type QueueFeed struct {
	registry *dashboard.Registry
	metrics  *Metrics
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*feedClient]struct{}
}

// NewQueueFeed creates a feed. Call Run to start periodic broadcasts.
func NewQueueFeed(registry *dashboard.Registry, metrics *Metrics, logger *slog.Logger, interval time.Duration, origin string, now func() time.Time) *QueueFeed {
	return &QueueFeed{
		registry: registry,
		metrics:  metrics,
		logger:   logger.With(slog.String("component", "ws")),
		interval: interval,
		now:      now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return origin == "*" || origin == "" || r.Header.Get("Origin") == "" || r.Header.Get("Origin") == origin
			},
		},
		clients: make(map[*feedClient]struct{}),
	}
}

// ClientCount returns the number of connected clients.
func (f *QueueFeed) ClientCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// HandleWebSocket upgrades the connection and registers the client.
func (f *QueueFeed) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("websocket upgrade failed", logging.Err(err))
		return
	}

	client := &feedClient{conn: conn}
	f.mu.Lock()
	f.clients[client] = struct{}{}
	count := len(f.clients)
	f.mu.Unlock()
	f.metrics.WSConnections.Inc()
	f.logger.Debug("websocket client connected", slog.Int("clients", count))

	if data, ok := f.snapshot(r.Context()); ok {
		if err := client.write(websocket.TextMessage, data); err != nil {
			f.logger.Debug("websocket initial write failed", logging.Err(err))
		} else {
			f.metrics.WSMessagesSent.WithLabelValues("queues").Inc()
		}
	}

	go f.readPump(client)
}

// readPump discards client frames and unregisters the client once the connection drops.
func (f *QueueFeed) readPump(client *feedClient) {
	defer func() {
		f.mu.Lock()
		delete(f.clients, client)
		count := len(f.clients)
		f.mu.Unlock()
		f.metrics.WSConnections.Dec()
		_ = client.conn.Close()
		f.logger.Debug("websocket client disconnected", slog.Int("clients", count))
	}()

	conn := client.conn
	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				f.logger.Debug("websocket read failed", logging.Err(err))
			}
			return
		}
	}
}

func (f *QueueFeed) snapshot(ctx context.Context) ([]byte, bool) {
	queues := f.registry.AllQueuesInfo(ctx)
	f.metrics.ObserveQueues(queues)
	data, err := json.Marshal(FeedMessage{Type: "queues", Data: queues, Timestamp: f.now().UTC()})
	if err != nil {
		f.logger.Error("marshal queue snapshot failed", logging.Err(err))
		return nil, false
	}
	return data, true
}

func (f *QueueFeed) broadcast(messageType int, data []byte) {
	f.mu.RLock()
	clients := make([]*feedClient, 0, len(f.clients))
	for client := range f.clients {
		clients = append(clients, client)
	}
	f.mu.RUnlock()

	for _, client := range clients {
		if err := client.write(messageType, data); err != nil {
			f.logger.Debug("websocket broadcast failed", logging.Err(err))
			continue
		}
		if messageType == websocket.TextMessage {
			f.metrics.WSMessagesSent.WithLabelValues("queues").Inc()
		}
	}
}

// Run broadcasts a snapshot and a ping every interval until ctx is done.
// Snapshots are skipped while nobody is connected.
func (f *QueueFeed) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.closeAll()
			return
		case <-ticker.C:
		}

		if f.ClientCount() == 0 {
			continue
		}
		if data, ok := f.snapshot(ctx); ok {
			f.broadcast(websocket.TextMessage, data)
		}
		f.broadcast(websocket.PingMessage, nil)
	}
}

func (f *QueueFeed) closeAll() {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	f.broadcast(websocket.CloseMessage, msg)
}
