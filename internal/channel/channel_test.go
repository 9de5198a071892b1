package channel

import (
	"context"
	"os"
	"testing"
	"time"

	"fitremind/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

func receive(t *testing.T, ch MessageChannel) <-chan models.Message {
	t.Helper()
	got := make(chan models.Message, 4)
	ch.OnMessage(func(m models.Message) { got <- m })
	return got
}

func expect(t *testing.T, got <-chan models.Message, want models.MessageType) models.Message {
	t.Helper()
	select {
	case m := <-got:
		if m.Type != want {
			t.Fatalf("type = %s, want %s", m.Type, want)
		}
		return m
	case <-time.After(5 * time.Second):
		t.Fatalf("no %s message", want)
	}
	return models.Message{}
}

func exercise(t *testing.T, ch MessageChannel) {
	got := receive(t, ch)
	cfg := models.DefaultConfig()
	cfg.Enabled = true

	ctx := context.Background()
	if err := ch.Send(ctx, models.Message{Type: models.MessageUpdateReminders, Config: &cfg}); err != nil {
		t.Fatal(err)
	}
	if err := ch.Send(ctx, models.Message{Type: models.MessageCancelReminders}); err != nil {
		t.Fatal(err)
	}

	m := expect(t, got, models.MessageUpdateReminders)
	if m.Config == nil || !m.Config.Enabled {
		t.Errorf("config lost in transit: %+v", m.Config)
	}
	expect(t, got, models.MessageCancelReminders)
}

func TestLocal(t *testing.T) {
	l := NewLocal(0, nil)
	defer l.Close()
	exercise(t, l)
}

func TestLocalHandlerPanic(t *testing.T) {
	l := NewLocal(1, nil)
	defer l.Close()
	l.OnMessage(func(models.Message) { panic("boom") })
	got := receive(t, l)

	l.Send(context.Background(), models.Message{Type: models.MessageCancelReminders})
	expect(t, got, models.MessageCancelReminders)
}

func TestLocalClosed(t *testing.T) {
	l := NewLocal(1, nil)
	l.Close()
	l.Close()
	if err := l.Send(context.Background(), models.Message{Type: models.MessageCancelReminders}); err != ErrClosed {
		t.Fatalf("got %v", err)
	}
}

func TestRedis(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatal(err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	r, err := NewRedis(context.Background(), client, "test-"+uuid.NewString(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	exercise(t, r)
}
