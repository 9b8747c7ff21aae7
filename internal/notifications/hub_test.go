package notifications

import (
	"testing"
	"time"

	"example.com/meal-planner/internal/models"
)

// TestHubPublishSubscribe проверяет доставку событий подписчику.
func TestHubPublishSubscribe(t *testing.T) {
	hub := NewHub()

	ch, unsubscribe := hub.Subscribe("user_1")
	defer unsubscribe()

	hub.Publish("user_1", Event{Type: EventDataChanged, DataType: models.DocumentRecipes})

	select {
	case event := <-ch:
		if event.Type != EventDataChanged || event.DataType != models.DocumentRecipes {
			t.Fatalf("unexpected event %+v", event)
		}
		if event.Timestamp == 0 {
			t.Fatal("expected timestamp to be set")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected event to be delivered")
	}
}

// TestHubPartitionsUsers проверяет, что события не попадают к другим пользователям.
func TestHubPartitionsUsers(t *testing.T) {
	hub := NewHub()

	alice, unsubscribeAlice := hub.Subscribe("alice")
	defer unsubscribeAlice()
	bob, unsubscribeBob := hub.Subscribe("bob")
	defer unsubscribeBob()

	hub.Publish("alice", DataChanged(models.DocumentWeek, time.Now()))

	select {
	case <-alice:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected alice to receive the event")
	}

	select {
	case event := <-bob:
		t.Fatalf("bob received %+v", event)
	default:
	}
}

// TestHubDropsWhenFull проверяет доставку не более одного раза без блокировки.
func TestHubDropsWhenFull(t *testing.T) {
	hub := NewHub()

	ch, unsubscribe := hub.Subscribe("user_1")
	defer unsubscribe()

	for i := 0; i < subscriberBuffer*2; i++ {
		hub.Publish("user_1", Event{Type: EventDataChanged})
	}

	if len(ch) != subscriberBuffer {
		t.Fatalf("expected %d buffered events, got %d", subscriberBuffer, len(ch))
	}
}

// TestHubUnsubscribe проверяет закрытие канала после отписки.
func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub()

	ch, unsubscribe := hub.Subscribe("user_1")
	unsubscribe()
	unsubscribe()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed")
	}
	if hub.Connections("user_1") != 0 {
		t.Fatal("expected no connections after unsubscribe")
	}
}
