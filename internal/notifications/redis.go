package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPublishTimeout = 2 * time.Second

type envelope struct {
	UserID string `json:"user_id"`
	Event  Event  `json:"event"`
}

// RedisBroker рассылает события через канал Redis, чтобы их получили подключения на всех инстансах.
type RedisBroker struct {
	rdb     *redis.Client
	channel string
	hub     *Hub
	logger  *slog.Logger
}

// NewRedisBroker подключается к Redis по URL и проверяет соединение.
func NewRedisBroker(ctx context.Context, redisURL, channel string, hub *Hub, logger *slog.Logger) (*RedisBroker, error) {
	if hub == nil {
		return nil, errors.New("hub is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisBroker{
		rdb:     rdb,
		channel: channel,
		hub:     hub,
		logger:  logger.With(slog.String("component", "redis_broker")),
	}, nil
}

// Publish публикует событие в Redis. При ошибке событие доставляется только локальным подписчикам.
func (b *RedisBroker) Publish(userID string, event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}

	raw, err := json.Marshal(envelope{UserID: userID, Event: event})
	if err != nil {
		b.logger.Error("marshal event", slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisPublishTimeout)
	defer cancel()

	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		b.logger.Warn("redis publish failed, delivering locally", slog.String("error", err.Error()))
		b.hub.Publish(userID, event)
	}
}

// Run пересылает события из Redis в локальный хаб до отмены контекста.
func (b *RedisBroker) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer func() {
		_ = sub.Close()
	}()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("bad redis event payload", slog.String("error", err.Error()))
				continue
			}
			if env.UserID == "" {
				continue
			}
			b.hub.Publish(env.UserID, env.Event)
		}
	}
}

// Close закрывает клиент Redis.
func (b *RedisBroker) Close() error {
	return b.rdb.Close()
}
