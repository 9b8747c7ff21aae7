package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"example.com/meal-planner/internal/notifications"
)

var errStreamClosed = errors.New("event stream closed")

// EventStream читает SSE-поток /api/events и переподключается с экспоненциальной задержкой.
type EventStream struct {
	api             *APIClient
	httpClient      *http.Client
	logger          *slog.Logger
	initialInterval time.Duration
	maxInterval     time.Duration
}

// NewEventStream создает читатель realtime-канала для клиента API.
func NewEventStream(api *APIClient, logger *slog.Logger) *EventStream {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventStream{
		api:             api,
		httpClient:      &http.Client{},
		logger:          logger.With(slog.String("component", "event_stream")),
		initialInterval: 500 * time.Millisecond,
		maxInterval:     30 * time.Second,
	}
}

// Run читает события до отмены контекста. onConnect вызывается после каждого подключения,
// в том числе повторного, чтобы клиент догнал пропущенные изменения.
// Ошибка 401 завершает работу без повторов.
func (s *EventStream) Run(ctx context.Context, onConnect func(context.Context), onEvent func(notifications.Event)) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.initialInterval
	policy.MaxInterval = s.maxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := s.consume(ctx, func() {
			policy.Reset()
			if onConnect != nil {
				onConnect(ctx)
			}
		}, onEvent)

		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(ctx.Err())
		}
		if IsUnauthorized(err) {
			return struct{}{}, backoff.Permanent(err)
		}

		s.logger.Warn("event stream disconnected", slog.String("error", err.Error()))
		return struct{}{}, err
	}, backoff.WithBackOff(policy), backoff.WithMaxElapsedTime(0))

	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *EventStream) consume(ctx context.Context, onConnect func(), onEvent func(notifications.Event)) error {
	streamURL := s.api.BaseURL() + "/api/events?token=" + url.QueryEscape(s.api.Token())
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return err
	}
	request.Header.Set("Accept", "text/event-stream")

	response, err := s.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return &APIError{StatusCode: response.StatusCode}
	}

	onConnect()

	reader := bufio.NewReader(response.Body)
	var data strings.Builder
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("%w: %v", errStreamClosed, err)
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if data.Len() > 0 {
				s.dispatch(data.String(), onEvent)
				data.Reset()
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}

func (s *EventStream) dispatch(payload string, onEvent func(notifications.Event)) {
	var event notifications.Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		s.logger.Warn("bad event payload", slog.String("error", err.Error()))
		return
	}
	if onEvent != nil {
		onEvent(event)
	}
}

// Watch подключает realtime-канал к хранилищу: события перезагружают документы,
// а после каждого подключения догружаются изменения, пропущенные за время разрыва.
func Watch(ctx context.Context, stream *EventStream, store *Store, onEvent func(notifications.Event)) error {
	return stream.Run(ctx,
		func(ctx context.Context) {
			if err := store.SyncStale(ctx); err != nil {
				stream.logger.Warn("sync after connect failed", slog.String("error", err.Error()))
			}
		},
		func(event notifications.Event) {
			if err := store.HandleEvent(ctx, event); err != nil {
				stream.logger.Warn("apply remote change failed", slog.String("error", err.Error()))
			}
			if onEvent != nil {
				onEvent(event)
			}
		},
	)
}
