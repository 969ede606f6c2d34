// Package remotetest runs an in-process hub speaking the SignalR JSON
// protocol, for tests of code that talks to the broadcast hub.
package remotetest

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Path is where the hub is mounted.
const Path = "/StreamHub"

const recordSeparator = 0x1e

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub records the commands it receives and can push events to clients.
type Hub struct {
	Server *httptest.Server

	mu          sync.Mutex
	clients     map[*client]bool
	received    []string
	negotiated  int
	rejectShake bool
	commands    chan string
	joined      chan struct{}
}

// NewHub starts a hub on a local test server.
func NewHub() *Hub {
	h := &Hub{
		clients:  make(map[*client]bool),
		commands: make(chan string, 256),
		joined:   make(chan struct{}, 16),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(Path+"/negotiate", h.negotiate)
	mux.HandleFunc(Path, h.serveWs)
	h.Server = httptest.NewServer(mux)
	return h
}

// URL returns the http URL of the hub.
func (h *Hub) URL() string {
	return h.Server.URL + Path
}

// Close disconnects every client and stops the server.
func (h *Hub) Close() {
	h.DropClients()
	h.Server.Close()
}

// RejectHandshake makes subsequent handshakes fail.
func (h *Hub) RejectHandshake(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rejectShake = v
}

// Commands returns every SendMessage payload received so far.
func (h *Hub) Commands() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.received...)
}

// Negotiations returns how many negotiate calls were served.
func (h *Hub) Negotiations() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.negotiated
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// WaitCommand returns the next received command.
func (h *Hub) WaitCommand(timeout time.Duration) (string, error) {
	select {
	case cmd := <-h.commands:
		return cmd, nil
	case <-time.After(timeout):
		return "", errors.New("no command received")
	}
}

// WaitClient blocks until a client completes the handshake.
func (h *Hub) WaitClient(timeout time.Duration) error {
	select {
	case <-h.joined:
		return nil
	case <-time.After(timeout):
		return errors.New("no client joined")
	}
}

// Broadcast invokes target with args on every client.
func (h *Hub) Broadcast(target string, args ...any) error {
	data, err := json.Marshal(map[string]any{
		"type":      1,
		"target":    target,
		"arguments": args,
	})
	if err != nil {
		return err
	}
	data = append(data, recordSeparator)

	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.write(data); err != nil {
			return err
		}
	}
	return nil
}

// SendClose sends a protocol close message with the given error to every
// client.
func (h *Hub) SendClose(reason string) error {
	data, _ := json.Marshal(map[string]any{"type": 7, "error": reason})
	data = append(data, recordSeparator)

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if err := c.write(data); err != nil {
			return err
		}
	}
	return nil
}

// DropClients closes every client connection without a close handshake.
func (h *Hub) DropClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close()
		delete(h.clients, c)
	}
}

func (h *Hub) negotiate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.mu.Lock()
	h.negotiated++
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"negotiateVersion": 1,
		"connectionId":     uuid.NewString(),
		"connectionToken":  uuid.NewString(),
		"availableTransports": []map[string]any{
			{"transport": "WebSockets", "transferFormats": []string{"Text", "Binary"}},
		},
	})
}

func (h *Hub) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn}

	// handshake
	if _, _, err := conn.ReadMessage(); err != nil {
		conn.Close()
		return
	}
	h.mu.Lock()
	reject := h.rejectShake
	h.mu.Unlock()
	if reject {
		c.write(append([]byte(`{"error":"handshake rejected"}`), recordSeparator))
		conn.Close()
		return
	}
	if err := c.write(append([]byte(`{}`), recordSeparator)); err != nil {
		conn.Close()
		return
	}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	select {
	case h.joined <- struct{}{}:
	default:
	}

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		for _, rec := range bytes.Split(data, []byte{recordSeparator}) {
			if len(rec) == 0 {
				continue
			}
			var msg struct {
				Type      int      `json:"type"`
				Target    string   `json:"target"`
				Arguments []string `json:"arguments"`
			}
			if err := json.Unmarshal(rec, &msg); err != nil {
				continue
			}
			if msg.Type == 7 {
				return
			}
			if msg.Type == 1 && msg.Target == "SendMessage" && len(msg.Arguments) > 0 {
				h.mu.Lock()
				h.received = append(h.received, msg.Arguments[0])
				h.mu.Unlock()
				h.commands <- msg.Arguments[0]
			}
		}
	}
}
