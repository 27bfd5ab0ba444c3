package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/propimentel/flr-wb/internal/domain/model"
)

// keyPrefix — префикс ключей FileRecord в Redis.
const keyPrefix = "file:"

// Redis — общий для всех экземпляров кэш в Redis.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// ConnectRedis подключается к Redis и проверяет соединение.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ошибка подключения к Redis %s: %w", addr, err)
	}
	return client, nil
}

// NewRedis создаёт кэш поверх клиента Redis.
func NewRedis(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Redis {
	return &Redis{
		client: client,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "cache_redis")),
	}
}

// Get читает запись. Ошибки Redis логируются и считаются промахом.
func (c *Redis) Get(ctx context.Context, fileID string) (*model.FileRecord, bool) {
	data, err := c.client.Get(ctx, keyPrefix+fileID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Ошибка чтения из Redis",
				slog.String("file_id", fileID),
				slog.String("error", err.Error()),
			)
		}
		cacheMissesTotal.WithLabelValues("redis").Inc()
		return nil, false
	}

	var record model.FileRecord
	if err := json.Unmarshal(data, &record); err != nil {
		c.logger.Warn("Повреждённая запись в Redis",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		cacheMissesTotal.WithLabelValues("redis").Inc()
		return nil, false
	}

	cacheHitsTotal.WithLabelValues("redis").Inc()
	return &record, true
}

// Set записывает запись с TTL.
func (c *Redis) Set(ctx context.Context, record *model.FileRecord) {
	data, err := json.Marshal(record)
	if err != nil {
		c.logger.Warn("Ошибка сериализации записи", slog.String("error", err.Error()))
		return
	}
	if err := c.client.Set(ctx, keyPrefix+record.ID, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Ошибка записи в Redis",
			slog.String("file_id", record.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Delete удаляет запись.
func (c *Redis) Delete(ctx context.Context, fileID string) {
	if err := c.client.Del(ctx, keyPrefix+fileID).Err(); err != nil {
		c.logger.Warn("Ошибка удаления из Redis",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
	}
}

// Ping проверяет доступность Redis.
func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

var (
	_ RecordCache = (*LRU)(nil)
	_ RecordCache = (*Redis)(nil)
	_ RecordCache = Noop{}
)
