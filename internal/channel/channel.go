// Package channel carries fire-and-forget messages from the foreground
// context to the background context. Nothing is acknowledged: the receiver
// re-reads the settings store on its next wakeup either way.
package channel

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"fitremind/internal/models"
)

var ErrClosed = errors.New("message channel closed")

type Handler func(models.Message)

type MessageChannel interface {
	Send(ctx context.Context, msg models.Message) error
	OnMessage(h Handler)
	Close() error
}

// handlers is the fan-out shared by the implementations.
type handlers struct {
	mu     sync.RWMutex
	list   []Handler
	logger *slog.Logger
}

func (h *handlers) add(fn Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.list = append(h.list, fn)
}

func (h *handlers) dispatch(msg models.Message) {
	h.mu.RLock()
	list := append([]Handler(nil), h.list...)
	h.mu.RUnlock()

	for _, fn := range list {
		func() {
			defer func() {
				if r := recover(); r != nil {
					h.logger.Error("message handler panicked", "type", msg.Type, "panic", r)
				}
			}()
			fn(msg)
		}()
	}
}

// Local is an in-process channel backed by a buffered Go channel.
type Local struct {
	ch   chan models.Message
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
	handlers
}

func NewLocal(buffer int, logger *slog.Logger) *Local {
	if buffer <= 0 {
		buffer = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &Local{
		ch:       make(chan models.Message, buffer),
		done:     make(chan struct{}),
		handlers: handlers{logger: logger},
	}
	l.wg.Add(1)
	go l.loop()
	return l
}

func (l *Local) loop() {
	defer l.wg.Done()
	for {
		select {
		case <-l.done:
			return
		case msg := <-l.ch:
			l.dispatch(msg)
		}
	}
}

// Send queues msg. It blocks only while the buffer is full.
func (l *Local) Send(ctx context.Context, msg models.Message) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	select {
	case l.ch <- msg:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Local) OnMessage(h Handler) {
	l.add(h)
}

// Close stops delivery. Queued messages that were not dispatched are dropped.
func (l *Local) Close() error {
	l.once.Do(func() { close(l.done) })
	l.wg.Wait()
	return nil
}
