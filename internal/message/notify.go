package message

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hyperifyio/bunkmate/internal/extract"
)

// Notification announces a freshly extracted record to display surfaces.
type Notification struct {
	ID     string         `json:"id"`
	Action string         `json:"action"`
	Record extract.Record `json:"data"`
	At     time.Time      `json:"at"`
}

// Notifier publishes notifications. Implementations must not block the
// extraction pass for long; callers log and ignore errors.
type Notifier interface {
	Publish(ctx context.Context, n Notification) error
}

// Bus fans notifications out to in-process subscribers. A subscriber whose
// buffer is full misses the notification rather than stalling publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Notification]struct{}
}

func NewBus() *Bus { return &Bus{subs: make(map[chan Notification]struct{})} }

// Subscribe registers a subscriber with the given buffer size and returns
// its channel and a cleanup function.
func (b *Bus) Subscribe(size int) (<-chan Notification, func()) {
	if size <= 0 {
		size = 10
	}
	ch := make(chan Notification, size)
	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[chan Notification]struct{})
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, ch)
			close(ch)
		})
	}
	return ch, cleanup
}

// Publish delivers n to every subscriber with buffer space.
func (b *Bus) Publish(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- n:
		default:
		}
	}
	return nil
}

// Subscribers returns the number of active subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// DefaultChannel is the redis pub/sub channel for notifications.
const DefaultChannel = "bunkmate:notifications"

// RedisNotifier publishes notifications as JSON on a redis channel so
// display surfaces in other processes can follow extraction.
type RedisNotifier struct {
	Client  *redis.Client
	Channel string
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{Client: client, Channel: channel}
}

func (r *RedisNotifier) Publish(ctx context.Context, n Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := r.Client.Publish(ctx, r.Channel, b).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Listen streams decoded notifications until ctx is done. Malformed
// payloads are skipped.
func (r *RedisNotifier) Listen(ctx context.Context) (<-chan Notification, error) {
	sub := r.Client.Subscribe(ctx, r.Channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}
	out := make(chan Notification)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var n Notification
				if err := json.Unmarshal([]byte(m.Payload), &n); err != nil {
					continue
				}
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Multi publishes to every notifier and returns the first error.
type Multi []Notifier

func (m Multi) Publish(ctx context.Context, n Notification) error {
	var first error
	for _, x := range m {
		if x == nil {
			continue
		}
		if err := x.Publish(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}
