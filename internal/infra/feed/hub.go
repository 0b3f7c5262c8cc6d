// Package feed streams the engine's event tape to WebSocket subscribers.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"matchsim/internal/event"
	"matchsim/internal/infra"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 256
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
)

// Message is one tape entry as sent to subscribers.
type Message struct {
	RunID  string          `json:"run_id"`
	Seq    uint64          `json:"seq"`
	Type   event.Type      `json:"type"`
	Ticker string          `json:"ticker"`
	Data   json.RawMessage `json:"data"`
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	ticker string // empty means every ticker
}

// Hub fans sequenced events out to connected clients. A client whose buffer
// is full is disconnected rather than allowed to hold up the tape.
type Hub struct {
	runID    string
	metrics  *infra.Metrics
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}

	server *http.Server
	wg     sync.WaitGroup
}

// NewHub creates a hub tagging every message with runID. metrics may be nil.
func NewHub(runID string, metrics *infra.Metrics) *Hub {
	return &Hub{
		runID:   runID,
		metrics: metrics,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handle implements engine.Handler. It runs on the sequencer goroutine and
// never blocks on a client.
func (h *Hub) Handle(ev event.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to marshal feed event", slog.Any("error", err))
		return
	}
	payload, err := json.Marshal(Message{
		RunID:  h.runID,
		Seq:    ev.GetSeq(),
		Type:   ev.GetType(),
		Ticker: ev.GetTicker(),
		Data:   data,
	})
	if err != nil {
		slog.Error("Failed to marshal feed message", slog.Any("error", err))
		return
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		if c.ticker != "" && c.ticker != ev.GetTicker() {
			continue
		}
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("Dropping slow feed client", slog.String("remote", c.conn.RemoteAddr().String()))
		h.remove(c)
	}
}

// ServeHTTP upgrades the request and subscribes the connection. The optional
// query parameter "ticker" restricts the stream to one instrument.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Feed upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		ticker: r.URL.Query().Get("ticker"),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.IncrementConnections()
	}
	slog.Info("Feed client connected",
		slog.String("remote", conn.RemoteAddr().String()),
		slog.String("ticker", c.ticker))

	h.wg.Add(2)
	go h.writeLoop(c)
	go h.readLoop(c)
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// remove unsubscribes c and closes its send channel. Safe to call twice.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.DecrementConnections()
	}
}

func (h *Hub) writeLoop(c *client) {
	defer h.wg.Done()
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.remove(c)
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// readLoop only exists to notice the client going away and to answer pongs.
func (h *Hub) readLoop(c *client) {
	defer h.wg.Done()
	defer h.remove(c)

	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Start serves the feed on addr at path /feed.
func (h *Hub) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/feed", h)
	h.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Feed server failed", slog.Any("error", err))
		}
	}()
	slog.Info("Feed listening", slog.String("addr", ln.Addr().String()))
	return nil
}

// Shutdown disconnects every client and stops the server.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.remove(c)
	}

	var err error
	if h.server != nil {
		err = h.server.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}
