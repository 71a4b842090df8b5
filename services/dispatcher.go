package services

import (
	"sync"

	"go.uber.org/zap"
)

// dispatcher delivers events to subscribers in emission order on its own
// goroutine. emit never blocks, so it may be called while the emitting
// component holds its state lock, and subscribers may call back into that
// component.
type dispatcher[T any] struct {
	name     string
	logger   *zap.Logger
	mu       sync.Mutex
	handlers []func(T)
	queue    []T
	running  bool
}

func newDispatcher[T any](name string, logger *zap.Logger) *dispatcher[T] {
	return &dispatcher[T]{
		name:   name,
		logger: logger,
	}
}

func (d *dispatcher[T]) subscribe(handler func(T)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, handler)
}

func (d *dispatcher[T]) emit(event T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.queue = append(d.queue, event)
	if !d.running {
		d.running = true
		go d.drain()
	}
}

// drain runs until the queue is empty, then exits. The next emit starts a
// new drain goroutine.
func (d *dispatcher[T]) drain() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.running = false
			d.mu.Unlock()
			return
		}
		event := d.queue[0]
		var zero T
		d.queue[0] = zero
		d.queue = d.queue[1:]
		handlers := make([]func(T), len(d.handlers))
		copy(handlers, d.handlers)
		d.mu.Unlock()

		for _, handler := range handlers {
			d.deliver(handler, event)
		}
	}
}

func (d *dispatcher[T]) deliver(handler func(T), event T) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Event subscriber panicked",
				zap.String("dispatcher", d.name),
				zap.Any("panic", r))
		}
	}()
	handler(event)
}
