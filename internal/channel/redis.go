package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"fitremind/internal/models"

	"github.com/go-redis/redis/v8"
)

// Redis publishes messages on a pub/sub channel so a `set` run in another
// process reaches the running server.
type Redis struct {
	client *redis.Client
	name   string
	ps     *redis.PubSub
	wg     sync.WaitGroup
	once   sync.Once
	handlers
}

// NewRedis subscribes before returning, so no message published after it
// returns is missed.
func NewRedis(ctx context.Context, client *redis.Client, key string, logger *slog.Logger) (*Redis, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if key == "" {
		key = "default"
	}
	name := "fitremind:messages:" + key

	ps := client.Subscribe(ctx, name)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", name, err)
	}

	r := &Redis{client: client, name: name, ps: ps, handlers: handlers{logger: logger}}
	r.wg.Add(1)
	go r.loop()
	return r, nil
}

func (r *Redis) loop() {
	defer r.wg.Done()
	for m := range r.ps.Channel() {
		var msg models.Message
		if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
			r.logger.Warn("dropping malformed message", "channel", m.Channel, "error", err)
			continue
		}
		r.dispatch(msg)
	}
}

func (r *Redis) Send(ctx context.Context, msg models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := r.client.Publish(ctx, r.name, data).Err(); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

func (r *Redis) OnMessage(h Handler) {
	r.add(h)
}

// Close unsubscribes. The client itself is left open for its other users.
func (r *Redis) Close() error {
	var err error
	r.once.Do(func() {
		err = r.ps.Close()
		r.wg.Wait()
	})
	return err
}
