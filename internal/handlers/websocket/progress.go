package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ZerkerEOD/krakenwifi/internal/models"
	"github.com/ZerkerEOD/krakenwifi/pkg/debug"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var progressUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking based on configuration
		return true
	},
}

// WSMessage is the envelope for all progress socket frames.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ProgressHub fans job progress events out to connected browser
// clients. It is registered as an observer on the progress broadcaster;
// a client too slow to drain its send queue is disconnected rather than
// allowed to stall the rest.
type ProgressHub struct {
	mu      sync.RWMutex
	clients map[*progressClient]bool
}

type progressClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewProgressHub creates a new progress hub
func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		clients: make(map[*progressClient]bool),
	}
}

// Notify implements the broadcaster observer: it serializes the event
// once and queues it to every connected client.
func (h *ProgressHub) Notify(event models.ProgressEvent) error {
	message, err := json.Marshal(WSMessage{Type: "job_progress", Payload: event})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			debug.Warning("Progress client send queue full, dropping connection")
			go h.unregister(client)
		}
	}
	return nil
}

// ClientCount reports the number of connected clients.
func (h *ProgressHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the connection and starts the client's pumps.
func (h *ProgressHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := progressUpgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Warning("Failed to upgrade progress connection: %v", err)
		return
	}

	client := &progressClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
	debug.Info("Progress client connected from %s", r.RemoteAddr)

	go h.writePump(client)
	go h.readPump(client)
}

func (h *ProgressHub) unregister(client *progressClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	h.mu.Unlock()

	close(client.send)
	client.conn.Close()
}

func (h *ProgressHub) writePump(client *progressClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains inbound frames; the progress socket is one-way, so
// reads only serve pong handling and close detection.
func (h *ProgressHub) readPump(client *progressClient) {
	defer h.unregister(client)

	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				debug.Warning("Progress client read error: %v", err)
			}
			return
		}
	}
}
