package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// SignalR JSON hub protocol constants.
const (
	recordSeparator = 0x1e

	messageInvocation = 1
	messagePing       = 6
	messageClose      = 7

	defaultKeepAlive        = 15 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
)

// ErrHubClosed is reported when the hub sends a close message.
var ErrHubClosed = errors.New("hub closed the connection")

// SignalROptions configures a SignalRTransport.
type SignalROptions struct {
	// SkipNegotiation dials the websocket directly instead of calling
	// /negotiate first.
	SkipNegotiation bool
	HTTPClient      *http.Client
	Dialer          *websocket.Dialer
	// KeepAlive is the ping interval. Zero means 15s.
	KeepAlive time.Duration
	Logger    *slog.Logger
}

type hubMessage struct {
	Type      int               `json:"type"`
	Target    string            `json:"target,omitempty"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
	Error     string            `json:"error,omitempty"`
}

type invocation struct {
	Type      int      `json:"type"`
	Target    string   `json:"target"`
	Arguments []string `json:"arguments"`
}

type negotiateResponse struct {
	ConnectionID    string `json:"connectionId"`
	ConnectionToken string `json:"connectionToken"`
	Error           string `json:"error"`
}

// SignalRTransport speaks the SignalR JSON hub protocol over a websocket.
type SignalRTransport struct {
	hubURL string
	opts   SignalROptions
	log    *slog.Logger

	mu   sync.Mutex
	conn *signalRConn
}

type signalRConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}
	closing atomic.Bool
}

// NewSignalRTransport creates a transport for the hub at hubURL. Both
// http(s) and ws(s) schemes are accepted.
func NewSignalRTransport(hubURL string, opts SignalROptions) *SignalRTransport {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultHandshakeTimeout}
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout}
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = defaultKeepAlive
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &SignalRTransport{
		hubURL: hubURL,
		opts:   opts,
		log:    log.With("component", "signalr"),
	}
}

func (t *SignalRTransport) Start(ctx context.Context, h Handlers) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return nil
	}

	wsURL, err := t.connectURL(ctx)
	if err != nil {
		return err
	}

	ws, _, err := t.opts.Dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial hub: %w", err)
	}

	pending, err := handshake(ctx, ws)
	if err != nil {
		ws.Close()
		return fmt.Errorf("hub handshake: %w", err)
	}

	c := &signalRConn{ws: ws, done: make(chan struct{})}
	t.conn = c

	go t.readLoop(c, h, pending)
	go t.keepAlive(c)

	return nil
}

func (t *SignalRTransport) Stop(ctx context.Context) error {
	t.mu.Lock()
	c := t.conn
	t.conn = nil
	t.mu.Unlock()

	if c == nil {
		return nil
	}

	c.closing.Store(true)

	c.writeMu.Lock()
	err := c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.ws.Close()

	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("close hub connection: %w", err)
	}
	return nil
}

func (t *SignalRTransport) Send(ctx context.Context, target, arg string) error {
	t.mu.Lock()
	c := t.conn
	t.mu.Unlock()

	if c == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(invocation{
		Type:      messageInvocation,
		Target:    target,
		Arguments: []string{arg},
	})
	if err != nil {
		return fmt.Errorf("encode invocation: %w", err)
	}

	if err := c.write(ctx, append(data, recordSeparator)); err != nil {
		return fmt.Errorf("send %s: %w", target, err)
	}
	return nil
}

func (c *signalRConn) write(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultHandshakeTimeout)
	}
	c.ws.SetWriteDeadline(deadline)
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (t *SignalRTransport) readLoop(c *signalRConn, h Handlers, pending [][]byte) {
	var cause error
	defer func() {
		c.ws.Close()
		close(c.done)

		t.mu.Lock()
		if t.conn == c {
			t.conn = nil
		}
		t.mu.Unlock()

		if !c.closing.Load() && h.OnClose != nil {
			h.OnClose(cause)
		}
	}()

	for _, rec := range pending {
		if cause = t.handleRecord(rec, h); cause != nil {
			return
		}
	}

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			cause = err
			return
		}
		for _, rec := range splitRecords(data) {
			if cause = t.handleRecord(rec, h); cause != nil {
				return
			}
		}
	}
}

func (t *SignalRTransport) handleRecord(rec []byte, h Handlers) error {
	var msg hubMessage
	if err := json.Unmarshal(rec, &msg); err != nil {
		t.log.Warn("malformed hub message", "error", err)
		return nil
	}

	switch msg.Type {
	case messageInvocation:
		if h.OnMessage != nil {
			h.OnMessage(msg.Target, decodeArguments(msg.Arguments))
		}
	case messagePing:
	case messageClose:
		if msg.Error != "" {
			return fmt.Errorf("%w: %s", ErrHubClosed, msg.Error)
		}
		return ErrHubClosed
	default:
		t.log.Debug("ignoring hub message", "type", msg.Type)
	}
	return nil
}

func (t *SignalRTransport) keepAlive(c *signalRConn) {
	ticker := time.NewTicker(t.opts.KeepAlive)
	defer ticker.Stop()

	ping := append([]byte(`{"type":6}`), recordSeparator)
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.write(context.Background(), ping); err != nil {
				t.log.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

func (t *SignalRTransport) connectURL(ctx context.Context) (string, error) {
	u, err := url.Parse(t.hubURL)
	if err != nil {
		return "", fmt.Errorf("parse hub url: %w", err)
	}

	if !t.opts.SkipNegotiation {
		id, err := t.negotiate(ctx, *u)
		if err != nil {
			return "", err
		}
		q := u.Query()
		q.Set("id", id)
		u.RawQuery = q.Encode()
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}

func (t *SignalRTransport) negotiate(ctx context.Context, u url.URL) (string, error) {
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/negotiate"
	q := u.Query()
	q.Set("negotiateVersion", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build negotiate request: %w", err)
	}

	resp, err := t.opts.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("negotiate: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("read negotiate response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("negotiate: status %d", resp.StatusCode)
	}

	var nr negotiateResponse
	if err := json.Unmarshal(body, &nr); err != nil {
		return "", fmt.Errorf("decode negotiate response: %w", err)
	}
	if nr.Error != "" {
		return "", fmt.Errorf("negotiate: %s", nr.Error)
	}
	if nr.ConnectionToken != "" {
		return nr.ConnectionToken, nil
	}
	if nr.ConnectionID == "" {
		return "", errors.New("negotiate: no connection id")
	}
	return nr.ConnectionID, nil
}

// handshake performs the protocol handshake and returns any records that
// arrived in the same frame as the response.
func handshake(ctx context.Context, ws *websocket.Conn) ([][]byte, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultHandshakeTimeout)
	}

	ws.SetWriteDeadline(deadline)
	req := append([]byte(`{"protocol":"json","version":1}`), recordSeparator)
	if err := ws.WriteMessage(websocket.TextMessage, req); err != nil {
		return nil, err
	}

	ws.SetReadDeadline(deadline)
	_, data, err := ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	ws.SetReadDeadline(time.Time{})

	records := splitRecords(data)
	if len(records) == 0 {
		return nil, errors.New("empty handshake response")
	}

	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(records[0], &resp); err != nil {
		return nil, fmt.Errorf("decode handshake response: %w", err)
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	return records[1:], nil
}

func splitRecords(data []byte) [][]byte {
	var out [][]byte
	for _, rec := range bytes.Split(data, []byte{recordSeparator}) {
		if len(bytes.TrimSpace(rec)) > 0 {
			out = append(out, rec)
		}
	}
	return out
}

func decodeArguments(raw []json.RawMessage) []string {
	args := make([]string, len(raw))
	for i, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			args[i] = s
			continue
		}
		args[i] = string(r)
	}
	return args
}
