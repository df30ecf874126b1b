package usecases

import (
	"sync"

	"go.uber.org/zap"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

type subscription struct {
	id  uint64
	sub ports.Subscriber
}

// dispatcher delivers events to subscribers on its own goroutine, in the
// order they were published. Publishing never blocks on a subscriber.
type dispatcher struct {
	logger *zap.Logger

	mu     sync.Mutex
	subs   []subscription
	nextID uint64
	queue  []entities.Event
	closed bool

	wake chan struct{}
	done chan struct{}
}

func newDispatcher(logger *zap.Logger) *dispatcher {
	d := &dispatcher{
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) subscribe(s ports.Subscriber) func() {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.subs = append(d.subs, subscription{id: id, sub: s})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			for i, s := range d.subs {
				if s.id == id {
					d.subs = append(d.subs[:i:i], d.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (d *dispatcher) publish(events ...entities.Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, events...)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// close stops accepting events, delivers what is queued and waits.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	<-d.done
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		closed := d.closed
		subs := make([]subscription, len(d.subs))
		copy(subs, d.subs)
		d.mu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			<-d.wake
			continue
		}

		for _, ev := range batch {
			for _, s := range subs {
				if d.subscribed(s.id) {
					d.deliver(s.sub, ev)
				}
			}
		}
	}
}

// subscribed reports whether id is still registered, so an unsubscribe in
// the middle of a batch takes effect from the next event.
func (d *dispatcher) subscribed(id uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.subs {
		if s.id == id {
			return true
		}
	}
	return false
}

func (d *dispatcher) deliver(s ports.Subscriber, ev entities.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("subscriber panicked", zap.Any("panic", r), zap.String("event", string(ev.Kind)))
		}
	}()

	switch ev.Kind {
	case entities.EventMessage:
		s.OnMessageAppended(*ev.Message)
	case entities.EventDelta:
		s.OnStreamDelta(ev.Delta)
	case entities.EventStatus:
		s.OnStatusChanged(ev.Status)
	}
}

func messageEvent(msg entities.Message) entities.Event {
	return entities.Event{Kind: entities.EventMessage, Message: &msg}
}

func deltaEvent(delta string) entities.Event {
	return entities.Event{Kind: entities.EventDelta, Delta: delta}
}

func statusEvent(s entities.Status) entities.Event {
	return entities.Event{Kind: entities.EventStatus, Status: s}
}
