package media

import (
	"sync"

	"go.uber.org/zap"
)

const (
	EventAssetCreated = "asset.created"
	EventAssetUpdated = "asset.updated"
	EventAssetDeleted = "asset.deleted"

	subscriberBuffer = 64
)

// Event is pushed to live listeners. Only public assets are announced.
type Event struct {
	Type    string         `json:"type"`
	AssetID string         `json:"asset_id"`
	Asset   *AssetResponse `json:"asset,omitempty"`
}

type EventPublisher interface {
	Publish(evt Event)
}

// EventHub fans events out to websocket subscribers. A subscriber that falls
// behind loses events rather than stalling publishers.
type EventHub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	log  *zap.Logger
}

func NewEventHub(log *zap.Logger) *EventHub {
	return &EventHub{
		subs: make(map[chan Event]struct{}),
		log:  log.Named("events"),
	}
}

// Subscribe registers a listener. The returned cancel func closes the channel.
func (h *EventHub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
}

func (h *EventHub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
			h.log.Debug("dropping event for slow subscriber", zap.String("type", evt.Type), zap.String("asset_id", evt.AssetID))
		}
	}
}

func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
