package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type feedClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Feed pushes store events to websocket clients. A client that cannot keep
// up is dropped.
type Feed struct {
	store *Store
	log   *slog.Logger

	mu      sync.Mutex
	clients map[*feedClient]bool
	closed  bool

	unsubscribe func()
	wg          sync.WaitGroup
}

// NewFeed creates a feed publishing every event of store.
func NewFeed(store *Store, log *slog.Logger) *Feed {
	if log == nil {
		log = slog.Default()
	}
	f := &Feed{
		store:   store,
		log:     log.With("component", "feed"),
		clients: make(map[*feedClient]bool),
	}
	f.unsubscribe = store.Subscribe(f.Publish)
	return f
}

// Publish sends ev to every connected client.
func (f *Feed) Publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		f.log.Error("encode event failed", "type", ev.Type, "error", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		select {
		case c.send <- data:
		default:
			f.log.Warn("dropping slow feed client", "client", c.id)
			f.removeLocked(c)
		}
	}
}

// Clients returns the number of connected clients.
func (f *Feed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// ServeWS upgrades the request and streams events until the client leaves.
// The current status is sent first.
func (f *Feed) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		f.log.Warn("feed upgrade failed", "error", err)
		return
	}

	client := &feedClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	initial, _ := json.Marshal(NewSnapshotEvent(f.store.Status()))
	client.send <- initial

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		conn.Close()
		return
	}
	f.clients[client] = true
	f.wg.Add(1)
	f.mu.Unlock()

	f.log.Info("feed client connected", "client", client.id)

	go f.writeLoop(client)
	f.readLoop(client)
}

// Close disconnects every client and stops listening to the store.
func (f *Feed) Close() {
	f.unsubscribe()

	f.mu.Lock()
	f.closed = true
	for c := range f.clients {
		f.removeLocked(c)
	}
	f.mu.Unlock()

	f.wg.Wait()
}

// readLoop discards inbound frames; it exists to process pongs and notice
// the client going away.
func (f *Feed) readLoop(c *feedClient) {
	defer func() {
		f.mu.Lock()
		f.removeLocked(c)
		f.mu.Unlock()
		f.log.Info("feed client disconnected", "client", c.id)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *Feed) writeLoop(c *feedClient) {
	defer f.wg.Done()
	defer c.conn.Close()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *Feed) removeLocked(c *feedClient) {
	if !f.clients[c] {
		return
	}
	delete(f.clients, c)
	close(c.send)
}
