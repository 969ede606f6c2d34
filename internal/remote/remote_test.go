package remote_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"speech-presenter/internal/remote"
	"speech-presenter/internal/remote/remotetest"
)

const waitTimeout = 2 * time.Second

func newChannel(t *testing.T) (*remote.Channel, *remotetest.Hub) {
	t.Helper()
	hub := remotetest.NewHub()
	t.Cleanup(hub.Close)

	tr := remote.NewSignalRTransport(hub.URL(), remote.SignalROptions{})
	return remote.NewChannel(tr, nil), hub
}

func TestChannel_SendCommand(t *testing.T) {
	ch, hub := newChannel(t)
	ctx := context.Background()

	if err := ch.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer ch.Disconnect(ctx)

	if hub.Negotiations() != 1 {
		t.Errorf("expected 1 negotiation, got %d", hub.Negotiations())
	}

	if err := ch.SendCommand(ctx, remote.StartCommand(42, 1).String()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := ch.SendCommand(ctx, remote.PauseCommand.String()); err != nil {
		t.Fatalf("send: %v", err)
	}

	for _, want := range []string{"42_1", "Pause"} {
		got, err := hub.WaitCommand(waitTimeout)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
}

func TestChannel_SendWhileDisconnected(t *testing.T) {
	ch, _ := newChannel(t)

	err := ch.SendCommand(context.Background(), "Pause")
	if !errors.Is(err, remote.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestChannel_ConnectIsIdempotent(t *testing.T) {
	ch, hub := newChannel(t)
	ctx := context.Background()

	var mu sync.Mutex
	var states []bool
	ch.OnStateChange(func(c bool) {
		mu.Lock()
		states = append(states, c)
		mu.Unlock()
	})

	for i := 0; i < 3; i++ {
		if err := ch.Connect(ctx); err != nil {
			t.Fatalf("connect %d: %v", i, err)
		}
	}
	if hub.Negotiations() != 1 {
		t.Errorf("expected a single connection, got %d negotiations", hub.Negotiations())
	}

	for i := 0; i < 2; i++ {
		if err := ch.Disconnect(ctx); err != nil {
			t.Fatalf("disconnect %d: %v", i, err)
		}
	}
	if ch.Connected() {
		t.Error("expected channel to be disconnected")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(states) != 2 || !states[0] || states[1] {
		t.Errorf("expected [true false] state changes, got %v", states)
	}
}

func TestChannel_EveryWatcherNotified(t *testing.T) {
	ch, _ := newChannel(t)
	ctx := context.Background()

	first := make(chan bool, 2)
	second := make(chan bool, 2)
	ch.OnStateChange(func(c bool) { first <- c })
	ch.OnStateChange(func(c bool) { second <- c })

	if err := ch.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := ch.Disconnect(ctx); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	for name, got := range map[string]chan bool{"first": first, "second": second} {
		if len(got) != 2 || !<-got || <-got {
			t.Errorf("expected %s watcher to see [true false]", name)
		}
	}
}

func TestChannel_SubscribeUpdateCount(t *testing.T) {
	ch, hub := newChannel(t)
	ctx := context.Background()

	counts := make(chan string, 4)
	unsubscribe := ch.Subscribe(remote.EventUpdateCount, func(p string) { counts <- p })

	if err := ch.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer ch.Disconnect(ctx)
	if err := hub.WaitClient(waitTimeout); err != nil {
		t.Fatal(err)
	}

	if err := hub.Broadcast("updateCount", "17"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	select {
	case got := <-counts:
		if got != "17" {
			t.Errorf("expected 17, got %q", got)
		}
	case <-time.After(waitTimeout):
		t.Fatal("no updateCount received")
	}

	unsubscribe()
	if err := hub.Broadcast("updateCount", 18); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if err := hub.Broadcast("updateCount", "19"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	select {
	case got := <-counts:
		t.Errorf("expected no delivery after unsubscribe, got %q", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChannel_ConnectionLost(t *testing.T) {
	ch, hub := newChannel(t)
	ctx := context.Background()

	lost := make(chan struct{}, 1)
	ch.OnStateChange(func(c bool) {
		if !c {
			lost <- struct{}{}
		}
	})

	if err := ch.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := hub.WaitClient(waitTimeout); err != nil {
		t.Fatal(err)
	}

	hub.DropClients()

	select {
	case <-lost:
	case <-time.After(waitTimeout):
		t.Fatal("connection loss not reported")
	}
	if ch.Connected() {
		t.Error("expected channel to be disconnected")
	}

	if err := ch.Connect(ctx); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if !ch.Connected() {
		t.Error("expected reconnect to succeed")
	}
	ch.Disconnect(ctx)
}

func TestChannel_HubCloseMessage(t *testing.T) {
	ch, hub := newChannel(t)
	ctx := context.Background()

	lost := make(chan struct{}, 1)
	ch.OnStateChange(func(c bool) {
		if !c {
			lost <- struct{}{}
		}
	})

	if err := ch.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := hub.WaitClient(waitTimeout); err != nil {
		t.Fatal(err)
	}
	if err := hub.SendClose("server shutting down"); err != nil {
		t.Fatal(err)
	}

	select {
	case <-lost:
	case <-time.After(waitTimeout):
		t.Fatal("close message not reported")
	}
}

func TestSignalRTransport_HandshakeRejected(t *testing.T) {
	hub := remotetest.NewHub()
	defer hub.Close()
	hub.RejectHandshake(true)

	tr := remote.NewSignalRTransport(hub.URL(), remote.SignalROptions{SkipNegotiation: true})
	err := tr.Start(context.Background(), remote.Handlers{})
	if err == nil {
		t.Fatal("expected handshake error")
	}
	if hub.Negotiations() != 0 {
		t.Errorf("expected negotiation to be skipped, got %d", hub.Negotiations())
	}
}

func TestSignalRTransport_DialFailure(t *testing.T) {
	tr := remote.NewSignalRTransport("ws://127.0.0.1:1/StreamHub", remote.SignalROptions{SkipNegotiation: true})

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := tr.Start(ctx, remote.Handlers{}); err == nil {
		t.Fatal("expected dial error")
	}
	if err := tr.Send(ctx, remote.SendMethod, "Pause"); !errors.Is(err, remote.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in      string
		kind    string
		wantErr bool
	}{
		{"42_1", "start", false},
		{"Pause", "pause", false},
		{"42-1", "", true},
		{"a_1", "", true},
		{"pause", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		c, err := remote.ParseCommand(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCommand(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil {
			if !errors.Is(err, remote.ErrInvalidCommand) {
				t.Errorf("expected ErrInvalidCommand, got %v", err)
			}
			continue
		}
		if c.Kind() != tt.kind {
			t.Errorf("ParseCommand(%q).Kind() = %s, expected %s", tt.in, c.Kind(), tt.kind)
		}
	}

	perf, speech, ok := remote.StartCommand(42, 7).Start()
	if !ok || perf != 42 || speech != 7 {
		t.Errorf("unexpected start split: %d %d %v", perf, speech, ok)
	}
}

func TestRedisTransport(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	prefix := "presenter-test-" + time.Now().Format("150405.000000")
	ch := remote.NewChannel(remote.NewRedisTransport(client, prefix, nil, remote.EventUpdateCount), nil)

	counts := make(chan string, 1)
	ch.Subscribe(remote.EventUpdateCount, func(p string) { counts <- p })

	if err := ch.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer ch.Disconnect(ctx)

	sub := client.Subscribe(ctx, prefix+":"+remote.SendMethod)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := ch.SendCommand(ctx, "42_1"); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case msg := <-sub.Channel():
		if msg.Payload != "42_1" {
			t.Errorf("expected 42_1, got %q", msg.Payload)
		}
	case <-time.After(waitTimeout):
		t.Fatal("command not published")
	}

	if err := client.Publish(ctx, prefix+":"+remote.EventUpdateCount, "5").Err(); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-counts:
		if got != "5" {
			t.Errorf("expected 5, got %q", got)
		}
	case <-time.After(waitTimeout):
		t.Fatal("updateCount not relayed")
	}
}
