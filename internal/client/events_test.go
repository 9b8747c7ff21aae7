package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"example.com/meal-planner/internal/models"
	"example.com/meal-planner/internal/notifications"
)

// TestEventStreamReconnects проверяет повторное подключение и вызов onConnect после разрыва.
func TestEventStreamReconnects(t *testing.T) {
	var mu sync.Mutex
	connections := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "secret-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		mu.Lock()
		connections++
		attempt := connections
		mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)

		fmt.Fprint(w, ": ping\n\n")
		fmt.Fprintf(w, "event: data-changed\ndata: {\"type\":\"data-changed\",\"dataType\":\"week\",\"timestamp\":%d}\n\n", attempt)
		flusher.Flush()

		if attempt == 1 {
			return
		}
		<-r.Context().Done()
	}))
	defer server.Close()

	stream := NewEventStream(NewAPIClient(server.URL, "secret-token"), nil)
	stream.initialInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var connects int
	var events []notifications.Event
	done := make(chan error, 1)
	go func() {
		done <- stream.Run(ctx, func(context.Context) {
			mu.Lock()
			connects++
			mu.Unlock()
		}, func(event notifications.Event) {
			mu.Lock()
			events = append(events, event)
			if len(events) == 2 {
				cancel()
			}
			mu.Unlock()
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil after cancel, got %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("stream did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	if connects != 2 {
		t.Fatalf("expected 2 connects, got %d", connects)
	}
	if events[0].DataType != models.DocumentWeek || events[1].Timestamp != 2 {
		t.Fatalf("unexpected events %+v", events)
	}
}

// TestEventStreamUnauthorized проверяет остановку без повторов при 401.
func TestEventStreamUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	stream := NewEventStream(NewAPIClient(server.URL, "bad"), nil)
	stream.initialInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := stream.Run(ctx, nil, nil)
	if !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}
