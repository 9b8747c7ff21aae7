package notifications

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/meal-planner/internal/models"
)

const (
	EventConnected   = "connected"
	EventDataChanged = "data-changed"

	subscriberBuffer = 16
)

type Event struct {
	ID        uuid.UUID           `json:"id"`
	Type      string              `json:"type"`
	DataType  models.DocumentType `json:"dataType,omitempty"`
	Timestamp int64               `json:"timestamp"`
}

// Publisher доставляет событие всем подключениям пользователя.
type Publisher interface {
	Publish(userID string, event Event)
}

type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
}

// NewHub создает хаб для SSE-подписок.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[chan Event]struct{}),
	}
}

// DataChanged создает событие об изменении документа.
func DataChanged(docType models.DocumentType, modifiedAt time.Time) Event {
	return Event{
		ID:        uuid.New(),
		Type:      EventDataChanged,
		DataType:  docType,
		Timestamp: modifiedAt.UnixMilli(),
	}
}

// Subscribe подписывает подключение пользователя на события и возвращает канал и функцию отписки.
func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	userSubs, ok := h.subscribers[userID]
	if !ok {
		userSubs = make(map[chan Event]struct{})
		h.subscribers[userID] = userSubs
	}
	userSubs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()

			if subs, exists := h.subscribers[userID]; exists {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(h.subscribers, userID)
				}
			}
			close(ch)
		})
	}
}

// Publish отправляет событие подписчикам пользователя. Доставка не гарантируется:
// если буфер подписчика заполнен, событие для него отбрасывается.
func (h *Hub) Publish(userID string, event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	subs, ok := h.subscribers[userID]
	if !ok {
		return
	}

	for ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Connections возвращает число активных подключений пользователя.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subscribers[userID])
}
