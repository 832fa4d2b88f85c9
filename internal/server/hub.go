// Package server exposes the tracker over HTTP: a JSON API and debug
// charts for the browser, and a websocket feed for the stream overlay.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// writeTimeout bounds a single websocket write so one stuck overlay
// cannot pin its writer goroutine.
const writeTimeout = 5 * time.Second

// Hub fans estimate snapshots out to connected overlay clients. The
// overlay is receive-only; anything it sends is discarded. Publishing
// with zero clients is fine.
type Hub struct {
	logf func(format string, args ...any)

	mu      sync.RWMutex
	clients map[string]*hubClient

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	clientCount  atomic.Int32
	publishCount atomic.Uint64
	droppedCount atomic.Uint64
}

// hubClient is one connected overlay.
type hubClient struct {
	id     string
	sendCh chan []byte
}

// NewHub creates an empty hub.
func NewHub(logf func(string, ...any)) *Hub {
	if logf == nil {
		logf = log.Printf
	}
	return &Hub{
		logf:    logf,
		clients: make(map[string]*hubClient),
		done:    make(chan struct{}),
	}
}

// Publish marshals v and queues it for every connected client. Slow
// clients drop the update rather than stalling the sampling loop.
func (h *Hub) Publish(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logf("[Hub] marshal failed: %v", err)
		return
	}
	h.publishCount.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.sendCh <- data:
		default:
			h.droppedCount.Add(1)
		}
	}
}

// ClientCount returns the number of connected overlay clients.
func (h *Hub) ClientCount() int {
	return int(h.clientCount.Load())
}

// Stats returns current hub counters.
func (h *Hub) Stats() HubStats {
	return HubStats{
		Published: h.publishCount.Load(),
		Dropped:   h.droppedCount.Load(),
		Clients:   h.clientCount.Load(),
	}
}

// HubStats contains hub counters.
type HubStats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Clients   int32  `json:"clients"`
}

// Shutdown disconnects every client and waits for their handlers to
// return. Safe to call more than once.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() { close(h.done) })
	h.wg.Wait()
}

// Handler upgrades the request to a websocket and streams published
// snapshots until the client disconnects.
func (h *Hub) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Overlay clients are OBS browser sources and local pages;
		// they do not send a meaningful Origin header.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logf("[Hub] accept failed: %v", err)
		return
	}
	defer conn.CloseNow()

	h.wg.Add(1)
	defer h.wg.Done()
	client := h.addClient()
	defer h.removeClient(client.id)

	// CloseRead discards incoming messages and cancels the context
	// when the peer goes away.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-h.done:
			conn.Close(websocket.StatusGoingAway, "shutting down")
			return
		case msg := <-client.sendCh:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *Hub) addClient() *hubClient {
	client := &hubClient{
		id:     "overlay_" + uuid.NewString()[:8],
		sendCh: make(chan []byte, 10),
	}

	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()

	count := h.clientCount.Add(1)
	h.logf("[Hub] client connected: %s (total: %d)", client.id, count)
	return client
}

func (h *Hub) removeClient(id string) {
	h.mu.Lock()
	_, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()
	if !ok {
		return
	}

	count := h.clientCount.Add(-1)
	h.logf("[Hub] client disconnected: %s (remaining: %d)", id, count)
}
