package daemon

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vocalsplit/internal/api"
	"vocalsplit/internal/jobs"
	"vocalsplit/internal/logging"
)

const (
	wsSendBuffer = 64
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsReadLimit  = 512

	messageInitialJobs = "initial_jobs"
	messageJobUpdate   = "job_update"
)

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// updateHub pushes job snapshots to websocket clients. It observes the
// registry; each client gets the full job list on connect followed by one
// job_update per committed change. Slow clients are dropped rather than
// allowed to stall the committing worker.
type updateHub struct {
	registry *jobs.Registry
	logger   *slog.Logger
	upgrader websocket.Upgrader
	now      func() time.Time

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

func newUpdateHub(registry *jobs.Registry, logger *slog.Logger) *updateHub {
	return &updateHub{
		registry: registry,
		logger:   logging.NewComponentLogger(logger, "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
		now:     time.Now,
		clients: make(map[*wsClient]struct{}),
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *updateHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	client := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}

	// The snapshot is queued under the hub lock so no update can be
	// delivered ahead of it.
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	snapshot, err := h.encode(api.UpdateMessage{
		Type: messageInitialJobs,
		Jobs: api.FromJobs(h.registry.List(), h.now()),
	})
	if err != nil {
		h.mu.Unlock()
		h.logger.Error("encode job snapshot", logging.Error(err))
		_ = conn.Close()
		return
	}
	client.send <- snapshot
	h.clients[client] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", logging.Int("clients", total))
	go h.writePump(client)
	h.readPump(client)
}

// JobChanged broadcasts next to every connected client.
func (h *updateHub) JobChanged(_, next jobs.Job) {
	view := api.FromJob(next, h.now())
	data, err := h.encode(api.UpdateMessage{Type: messageJobUpdate, Job: &view})
	if err != nil {
		h.logger.Error("encode job update", logging.JobID(next.ID), logging.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("dropping slow websocket client", logging.JobID(next.ID))
			h.removeLocked(client)
		}
	}
}

// ClientCount reports connected clients.
func (h *updateHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *updateHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for client := range h.clients {
		h.removeLocked(client)
	}
}

func (h *updateHub) encode(msg api.UpdateMessage) ([]byte, error) {
	msg.Timestamp = h.now().UTC().Format(time.RFC3339Nano)
	return json.Marshal(msg)
}

func (h *updateHub) remove(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

// removeLocked closes the client's send channel exactly once; map
// membership guards the close.
func (h *updateHub) removeLocked(client *wsClient) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
}

func (h *updateHub) readPump(client *wsClient) {
	defer func() {
		h.remove(client)
		_ = client.conn.Close()
	}()
	client.conn.SetReadLimit(wsReadLimit)
	_ = client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *updateHub) writePump(client *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
