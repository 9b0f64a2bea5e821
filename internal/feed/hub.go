// Package feed pushes order book snapshots to websocket subscribers.
//
// A client connects and sends ticker names as text messages. Each
// subscription is answered with an immediate snapshot; afterwards the hub
// pushes a fresh snapshot of every ticker an event touched, at most once
// per interval.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/efreitasn/exchangecore/internal/engine"
	"github.com/efreitasn/exchangecore/internal/events"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 32
)

// Source reads a consistent view of one instrument.
type Source interface {
	Snapshot(ticker string) (engine.Snapshot, error)
}

// Update is one pushed snapshot. Absent prices are null.
type Update struct {
	Ticker    string                `json:"ticker"`
	BestBid   *int64                `json:"best_bid"`
	BestAsk   *int64                `json:"best_ask"`
	LastPrice *int64                `json:"last_price"`
	AllBids   []engine.RestingOrder `json:"all_bids"`
	AllAsks   []engine.RestingOrder `json:"all_asks"`
	Version   uint64                `json:"version"`
}

type errorMessage struct {
	Ticker string `json:"ticker"`
	Error  string `json:"error"`
}

func newUpdate(s engine.Snapshot) Update {
	u := Update{
		Ticker:  s.Symbol,
		AllBids: s.Bids,
		AllAsks: s.Asks,
		Version: s.Version,
	}
	if s.HasBid {
		u.BestBid = &s.BestBid
	}
	if s.HasAsk {
		u.BestAsk = &s.BestAsk
	}
	if s.HasLast {
		u.LastPrice = &s.LastPrice
	}
	if u.AllBids == nil {
		u.AllBids = []engine.RestingOrder{}
	}
	if u.AllAsks == nil {
		u.AllAsks = []engine.RestingOrder{}
	}
	return u
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	tickers map[string]struct{} // guarded by Hub.mu
}

// Hub tracks websocket clients and their ticker subscriptions.
type Hub struct {
	src      Source
	interval time.Duration
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	dirty   map[string]struct{}
}

// NewHub creates a hub that coalesces updates over interval.
func NewHub(src Source, interval time.Duration, logger *slog.Logger) *Hub {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Hub{
		src:      src,
		interval: interval,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
		dirty:   make(map[string]struct{}),
	}
}

// Handler marks the event's ticker for the next push.
func (h *Hub) Handler() events.Handler {
	return func(_ context.Context, ev events.Event) {
		if ev.Symbol == "" {
			return
		}
		h.mu.Lock()
		h.dirty[ev.Symbol] = struct{}{}
		h.mu.Unlock()
	}
}

// ServeHTTP upgrades the connection and reads subscriptions until the
// client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade", "error", err)
		return
	}
	c := &client{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		tickers: make(map[string]struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		ticker := strings.ToUpper(strings.TrimSpace(string(msg)))
		snap, err := h.src.Snapshot(ticker)
		if err != nil {
			payload, _ := json.Marshal(errorMessage{Ticker: ticker, Error: err.Error()})
			h.enqueue(c, payload)
			continue
		}
		h.mu.Lock()
		c.tickers[ticker] = struct{}{}
		h.mu.Unlock()

		payload, err := json.Marshal(newUpdate(snap))
		if err != nil {
			h.logger.Error("encode feed update", "ticker", ticker, "error", err)
			continue
		}
		h.enqueue(c, payload)
	}
}

func (h *Hub) writeLoop(c *client) {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.conn.Close()
			for range c.send {
			}
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.conn.Close()
}

// enqueue hands msg to the client's writer. A client too slow to keep
// up is disconnected.
func (h *Hub) enqueue(c *client, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enqueueLocked(c, msg)
}

func (h *Hub) enqueueLocked(c *client, msg []byte) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("feed client too slow, disconnecting", "remote", c.conn.RemoteAddr().String())
		h.removeLocked(c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Run pushes coalesced updates until ctx is cancelled, then disconnects
// every client.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				h.removeLocked(c)
			}
			h.mu.Unlock()
			return
		case <-ticker.C:
			h.flush()
		}
	}
}

func (h *Hub) flush() {
	h.mu.Lock()
	dirty := h.dirty
	h.dirty = make(map[string]struct{})
	h.mu.Unlock()

	for ticker := range dirty {
		snap, err := h.src.Snapshot(ticker)
		if err != nil {
			continue
		}
		payload, err := json.Marshal(newUpdate(snap))
		if err != nil {
			h.logger.Error("encode feed update", "ticker", ticker, "error", err)
			continue
		}

		h.mu.Lock()
		for c := range h.clients {
			if _, ok := c.tickers[ticker]; ok {
				h.enqueueLocked(c, payload)
			}
		}
		h.mu.Unlock()
	}
}
