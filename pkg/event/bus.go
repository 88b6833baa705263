package event

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// ReloadMessage is the marker every reload notification starts
	// with. Subscribers match on this prefix.
	ReloadMessage = "RELOAD_POLICIES"

	// DefaultChannel is the pub/sub channel used when the
	// configuration names none.
	DefaultChannel = "polaris:policy:changes"
)

// Handler consumes a raw reload payload. It runs on the subscriber
// goroutine, so long-running work should be handed off.
type Handler func(payload string)

// Bus publishes and receives reload notifications.
type Bus interface {
	// Publish broadcasts a reload notification to every subscriber on
	// the channel, the publishing instance included.
	Publish(ctx context.Context) error

	// Subscribe registers the handler and starts consuming. It returns
	// once the subscription is confirmed; delivery happens on a
	// background goroutine until Close or context cancellation.
	Subscribe(ctx context.Context, h Handler) error

	// Close tears down the subscription. The underlying client is
	// shared infrastructure and stays open.
	Close() error
}

// IsReload reports whether a payload is a reload notification.
func IsReload(payload string) bool {
	return strings.HasPrefix(payload, ReloadMessage)
}

// Origin extracts the publishing instance identity from a reload
// payload, or "" for bare or foreign payloads.
func Origin(payload string) string {
	rest, ok := strings.CutPrefix(payload, ReloadMessage+"|")
	if !ok {
		return ""
	}
	return rest
}

// RedisBus is a Bus backed by Redis pub/sub.
type RedisBus struct {
	client     redis.UniversalClient
	channel    string
	instanceID string
	logger     *slog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisBus creates a bus over an existing Redis client. An empty
// channel falls back to DefaultChannel.
func NewRedisBus(client redis.UniversalClient, channel string, logger *slog.Logger) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{
		client:     client,
		channel:    channel,
		instanceID: uuid.NewString(),
		logger:     logger.With("component", "event.bus", "channel", channel),
	}
}

// InstanceID returns this bus's identity, appended to every published
// payload.
func (b *RedisBus) InstanceID() string {
	return b.instanceID
}

// Publish implements Bus.
func (b *RedisBus) Publish(ctx context.Context) error {
	payload := ReloadMessage + "|" + b.instanceID
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing reload notification: %w", err)
	}
	b.logger.Info("reload notification published")
	return nil
}

// Subscribe implements Bus. A second call replaces the previous
// subscription.
func (b *RedisBus) Subscribe(ctx context.Context, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pubsub != nil {
		b.closeLocked()
	}

	pubsub := b.client.Subscribe(ctx, b.channel)

	// Wait for the subscription to be confirmed so a Publish issued
	// right after Subscribe returns is not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribing to %s: %w", b.channel, err)
	}

	b.pubsub = pubsub
	b.done = make(chan struct{})
	go b.consume(ctx, pubsub, b.done, h)

	b.logger.Info("subscribed to policy change channel")
	return nil
}

func (b *RedisBus) consume(ctx context.Context, pubsub *redis.PubSub, done chan struct{}, h Handler) {
	defer close(done)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.logger.Debug("policy change message received", "payload", msg.Payload)
			h(msg.Payload)
		}
	}
}

// Close implements Bus. Idempotent.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked()
	return nil
}

func (b *RedisBus) closeLocked() {
	if b.pubsub == nil {
		return
	}
	if err := b.pubsub.Close(); err != nil {
		b.logger.Warn("failed to close subscription", "error", err)
	}
	<-b.done
	b.pubsub = nil
	b.done = nil
	b.logger.Info("unsubscribed from policy change channel")
}
