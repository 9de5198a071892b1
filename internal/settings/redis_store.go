package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"fitremind/internal/models"

	"github.com/go-redis/redis/v8"
)

// casCheckpoint swaps the checkpoint field of the hash only when it still
// holds the expected value. A missing field counts as "0".
var casCheckpoint = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'checkpoint')
if not cur then cur = '0' end
if cur == ARGV[1] then
	redis.call('HSET', KEYS[1], 'checkpoint', ARGV[2])
	return 1
end
return 0
`)

// RedisStore keeps the record in a hash with "config" and "checkpoint" fields.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore parses a redis:// URL and connects lazily.
func NewRedisStore(url, key string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisStoreWithClient(redis.NewClient(opts), key), nil
}

func NewRedisStoreWithClient(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultKey
	}
	return &RedisStore{client: client, key: "fitremind:settings:" + key}
}

// Client exposes the connection so the message channel can share it.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Load(ctx context.Context) (models.Settings, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.Settings{}, unavailable("load settings", err)
	}

	cfg := models.DefaultConfig()
	if raw, ok := fields["config"]; ok {
		cfg = models.ReminderConfig{}
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return models.Settings{}, unavailable("decode settings", err)
		}
	}

	var cp int64
	if raw, ok := fields["checkpoint"]; ok {
		cp, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return models.Settings{}, unavailable("decode checkpoint", err)
		}
	}
	return models.NewSettings(cfg, fromMillis(cp)), nil
}

func (s *RedisStore) SaveConfig(ctx context.Context, cfg models.ReminderConfig) error {
	if err := validate(cfg); err != nil {
		return err
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := s.client.HSet(ctx, s.key, "config", string(data)).Err(); err != nil {
		return unavailable("save settings", err)
	}
	return nil
}

func (s *RedisStore) CompareAndSwapCheckpoint(ctx context.Context, old, next *time.Time) (bool, error) {
	n, err := casCheckpoint.Run(ctx, s.client, []string{s.key},
		strconv.FormatInt(toMillis(old), 10),
		strconv.FormatInt(toMillis(next), 10),
	).Int()
	if err != nil {
		return false, unavailable("swap checkpoint", err)
	}
	return n == 1, nil
}
