package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RelayChannel is the pub/sub channel every instance subscribes to
const RelayChannel = "socialhub:notifications"

type relayMessage struct {
	UserID   string          `json:"userId"`
	Envelope json.RawMessage `json:"envelope"`
}

// RedisRelay publishes events to Redis so every instance delivers them to its
// own local registry. Used when dispatchers run on more than one process.
type RedisRelay struct {
	client   *redis.Client
	registry *Registry
	logger   *slog.Logger
}

// RedisOptions parses a redis:// or rediss:// URL. A non-empty password
// overrides the one in the URL.
func RedisOptions(redisURL, password string) (*redis.Options, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	return opts, nil
}

// NewRedisClient connects and verifies the Redis backbone
func NewRedisClient(redisURL, password string) (*redis.Client, error) {
	opts, err := RedisOptions(redisURL, password)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

func NewRedisRelay(client *redis.Client, registry *Registry, logger *slog.Logger) *RedisRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{client: client, registry: registry, logger: logger}
}

func (r *RedisRelay) Publish(ctx context.Context, userID string, frame []byte) error {
	payload, err := json.Marshal(relayMessage{UserID: userID, Envelope: frame})
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, RelayChannel, payload).Err(); err != nil {
		return fmt.Errorf("relay publish: %w", err)
	}
	return nil
}

// Run subscribes to RelayChannel and delivers into the local registry until
// ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, RelayChannel)
	defer sub.Close()

	// wait for the subscription confirmation before reporting ready
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("relay subscribe: %w", err)
	}
	r.logger.Info("relay_subscribed", "channel", RelayChannel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(msg.Payload)
		}
	}
}

func (r *RedisRelay) deliver(payload string) int {
	var msg relayMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil || msg.UserID == "" {
		r.logger.Warn("relay_message_malformed", "error", err)
		return 0
	}
	return r.registry.BroadcastToUser(msg.UserID, msg.Envelope)
}
