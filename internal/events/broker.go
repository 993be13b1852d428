package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pland/internal/task"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls further behind loses events rather than blocking the orchestrator.
const subscriberBuffer = 64

// Broker fans transition events out to subscribers. Attach it to a graph
// with graph.AddListener(broker.Dispatch).
type Broker struct {
	logger *zap.Logger

	mu     sync.Mutex
	nextID int
	subs   map[int]chan task.TransitionEvent
	closed bool
}

// NewBroker creates an event broker.
func NewBroker(logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		logger: logger,
		subs:   make(map[int]chan task.TransitionEvent),
	}
}

// Dispatch delivers one event to every subscriber. It never blocks: a full
// subscriber channel drops the event for that subscriber.
func (b *Broker) Dispatch(ev task.TransitionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("dropped event for slow subscriber",
				zap.Int("subscriber", id),
				zap.String("task_id", ev.TaskID),
			)
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel function
// unregisters it and closes the channel; it is safe to call more than once.
func (b *Broker) Subscribe() (<-chan task.TransitionEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan task.TransitionEvent, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Close unregisters all subscribers and closes their channels. Dispatch
// becomes a no-op afterwards.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
