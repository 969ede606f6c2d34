package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisTransport relays hub invocations through Redis pub/sub. Commands are
// published on "<prefix>:<target>"; push events are read from
// "<prefix>:<event>" for every event given at construction.
type RedisTransport struct {
	client *redis.Client
	prefix string
	events []string
	log    *slog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisTransport creates a transport publishing under prefix.
func NewRedisTransport(client *redis.Client, prefix string, log *slog.Logger, events ...string) *RedisTransport {
	if log == nil {
		log = slog.Default()
	}
	return &RedisTransport{
		client: client,
		prefix: prefix,
		events: events,
		log:    log.With("component", "redis"),
	}
}

func (t *RedisTransport) channel(target string) string {
	return t.prefix + ":" + target
}

func (t *RedisTransport) Start(ctx context.Context, h Handlers) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pubsub != nil {
		return nil
	}

	if err := t.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	channels := make([]string, len(t.events))
	for i, e := range t.events {
		channels[i] = t.channel(e)
	}

	ps := t.client.Subscribe(ctx, channels...)
	if len(channels) > 0 {
		// Wait for the subscription confirmation so no push is missed.
		if _, err := ps.Receive(ctx); err != nil {
			ps.Close()
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	t.pubsub = ps
	t.done = make(chan struct{})

	go t.readLoop(ps, t.done, h)
	return nil
}

func (t *RedisTransport) readLoop(ps *redis.PubSub, done chan struct{}, h Handlers) {
	defer close(done)

	for msg := range ps.Channel() {
		target := strings.TrimPrefix(msg.Channel, t.prefix+":")
		if h.OnMessage != nil {
			h.OnMessage(target, []string{msg.Payload})
		}
	}

	// Stop clears pubsub before closing it, so a match means the
	// subscription ended on its own.
	t.mu.Lock()
	lost := t.pubsub == ps
	if lost {
		t.pubsub = nil
	}
	t.mu.Unlock()

	if lost && h.OnClose != nil {
		h.OnClose(errors.New("redis subscription closed"))
	}
}

func (t *RedisTransport) Stop(ctx context.Context) error {
	t.mu.Lock()
	ps, done := t.pubsub, t.done
	t.pubsub = nil
	t.mu.Unlock()

	if ps == nil {
		return nil
	}

	err := ps.Close()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

func (t *RedisTransport) Send(ctx context.Context, target, arg string) error {
	t.mu.Lock()
	open := t.pubsub != nil
	t.mu.Unlock()

	if !open {
		return ErrNotConnected
	}

	if err := t.client.Publish(ctx, t.channel(target), arg).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", target, err)
	}
	t.log.Debug("published", "target", target)
	return nil
}
