// Package logs provides the shared log line fan-out between the per-node
// ingestors and their consumers (terminal display, websocket streams).
package logs

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/syncmesh/fleetrunner/internal/topology"
)

// Line is one ingested child output line.
type Line struct {
	Node      string        `json:"node"`
	Tier      topology.Tier `json:"tier"`
	Raw       string        `json:"raw"`
	Formatted string        `json:"formatted"`
	Timestamp time.Time     `json:"timestamp"`
}

// Subscriber receives published lines on a buffered channel. Delivery is
// best-effort: when the channel is full the line is dropped for that
// subscriber so a slow consumer can never stall an ingestor.
type Subscriber struct {
	ID        string
	Node      string // filter to one node, "" for all
	Ch        chan Line
	CreatedAt time.Time
}

// Broker manages log subscriptions and publishing.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	logger      *slog.Logger
}

// NewBroker creates a new log broker.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subscribers: make(map[string]*Subscriber),
		logger:      logger,
	}
}

// Subscribe creates a subscription. node restricts delivery to one node's
// lines; pass "" for the whole fleet. buffer sizes the delivery channel.
func (b *Broker) Subscribe(node string, buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 256
	}

	sub := &Subscriber{
		ID:        uuid.NewString(),
		Node:      node,
		Ch:        make(chan Line, buffer),
		CreatedAt: time.Now(),
	}

	b.mu.Lock()
	b.subscribers[sub.ID] = sub
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "subscriber_id", sub.ID, "node", node)
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broker) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[sub.ID]; exists {
		close(sub.Ch)
		delete(b.subscribers, sub.ID)
		b.logger.Debug("subscriber removed", "subscriber_id", sub.ID)
	}
}

// Publish delivers a line to all matching subscribers without blocking.
func (b *Broker) Publish(line Line) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if sub.Node != "" && sub.Node != line.Node {
			continue
		}
		select {
		case sub.Ch <- line:
		default:
			b.logger.Warn("subscriber channel full, dropping log line",
				"subscriber_id", sub.ID,
				"node", line.Node,
			)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
