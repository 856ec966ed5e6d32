package events

import (
	"encoding/json"
	"fmt"
	"sync"
)

// ProductUpdateEvent represents a product status transition
type ProductUpdateEvent struct {
	Source          string `json:"source"`
	SourceProductID string `json:"source_product_id"`
	Status          string `json:"status"`
}

// Subscriber represents a client listening for events
type Subscriber struct {
	ID         string
	Events     chan ProductUpdateEvent
	ProductKey string // Only send events for this product
}

// Broadcaster manages SSE subscriptions and publishes events
type Broadcaster struct {
	subscribers map[string]*Subscriber
	mu          sync.RWMutex
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]*Subscriber),
	}
}

// productKey identifies one product across platforms
func productKey(source, sourceProductID string) string {
	return fmt.Sprintf("%s:%s", source, sourceProductID)
}

// Subscribe adds a new subscriber for a specific product
func (b *Broadcaster) Subscribe(id, source, sourceProductID string) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscriber{
		ID:         id,
		Events:     make(chan ProductUpdateEvent, 10),
		ProductKey: productKey(source, sourceProductID),
	}
	b.subscribers[id] = sub
	return sub
}

// Unsubscribe removes a subscriber
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.Events)
		delete(b.subscribers, id)
	}
}

// Publish sends a status transition to all subscribers watching the product
func (b *Broadcaster) Publish(source, sourceProductID, status string) {
	event := ProductUpdateEvent{
		Source:          source,
		SourceProductID: sourceProductID,
		Status:          status,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	key := productKey(source, sourceProductID)
	for _, sub := range b.subscribers {
		if sub.ProductKey == key {
			select {
			case sub.Events <- event:
			default:
				// Channel full, skip this event
			}
		}
	}
}

// MarshalEvent formats an event for SSE
func MarshalEvent(event ProductUpdateEvent) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	return "data: " + string(data) + "\n\n", nil
}
