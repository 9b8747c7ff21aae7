package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"example.com/meal-planner/internal/models"
	"example.com/meal-planner/internal/notifications"
)

var (
	ErrNoUser    = errors.New("no active user")
	ErrPersist   = errors.New("persist failed")
	ErrUnchanged = errors.New("document unchanged")
)

type State int

const (
	StateEmpty State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "empty"
	}
}

type entry struct {
	state    State
	raw      []byte
	dirty    bool
	modified int64
	version  uint64
	pending  int
}

type userCache struct {
	entries map[models.DocumentType]*entry
}

func newUserCache() *userCache {
	cache := &userCache{entries: make(map[models.DocumentType]*entry, len(models.DocumentTypes))}
	for _, docType := range models.DocumentTypes {
		cache.entries[docType] = &entry{}
	}
	return cache
}

type loadResult struct {
	raw []byte
	err error
}

// Store держит кэш документов активного пользователя.
// Запись оптимистична: сначала кэш и подписчики, затем сервер.
type Store struct {
	backend Backend
	logger  *slog.Logger

	mu      sync.Mutex
	userID  string
	caches  map[string]*userCache
	subs    map[uint64]func(models.DocumentType)
	nextSub uint64

	loads singleflight.Group
}

// NewStore создает хранилище поверх backend.
func NewStore(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend: backend,
		logger:  logger.With(slog.String("component", "store")),
		caches:  make(map[string]*userCache),
		subs:    make(map[uint64]func(models.DocumentType)),
	}
}

// SwitchUser делает пользователя активным и вытесняет кэши всех остальных.
func (s *Store) SwitchUser(userID string) {
	s.mu.Lock()
	if userID == s.userID {
		s.mu.Unlock()
		return
	}
	s.userID = userID
	for id := range s.caches {
		if id != userID {
			delete(s.caches, id)
		}
	}
	if userID != "" {
		s.caches[userID] = newUserCache()
	}
	s.mu.Unlock()

	for _, docType := range models.DocumentTypes {
		s.notify(docType)
	}
}

// UserID возвращает активного пользователя.
func (s *Store) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Subscribe регистрирует обработчик изменений и возвращает функцию отписки.
// Обработчик вызывается синхронно и не должен блокироваться.
func (s *Store) Subscribe(fn func(models.DocumentType)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// State возвращает состояние записи кэша.
func (s *Store) State(docType models.DocumentType) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, _, _, err := s.currentLocked(docType)
	if err != nil {
		return StateEmpty
	}
	return e.state
}

// Dirty сообщает, что значение в кэше не подтверждено сервером.
func (s *Store) Dirty(docType models.DocumentType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, _, _, err := s.currentLocked(docType)
	if err != nil {
		return false
	}
	return e.dirty
}

// Load возвращает документ из кэша, при необходимости загружая его.
// Сетевые ошибки не возвращаются: отдается последнее значение или пустой документ.
func (s *Store) Load(ctx context.Context, docType models.DocumentType) ([]byte, error) {
	s.mu.Lock()
	e, userID, cache, err := s.currentLocked(docType)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if e.state == StateReady && (!e.dirty || e.pending > 0) {
		raw := e.raw
		s.mu.Unlock()
		return raw, nil
	}
	s.mu.Unlock()

	result := s.load(ctx, userID, cache, docType, 0, false)
	if errors.Is(result.err, ErrNoUser) {
		return nil, ErrNoUser
	}
	if result.raw == nil {
		return emptyRaw(docType), nil
	}
	return result.raw, nil
}

// Refresh принудительно перезагружает документ с сервера.
func (s *Store) Refresh(ctx context.Context, docType models.DocumentType) error {
	s.mu.Lock()
	_, userID, cache, err := s.currentLocked(docType)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	return s.load(ctx, userID, cache, docType, 0, true).err
}

// HandleEvent обрабатывает событие realtime-канала: измененный документ перезагружается.
// Эхо собственной записи распознается по метке времени и пропускается.
func (s *Store) HandleEvent(ctx context.Context, event notifications.Event) error {
	if event.Type != notifications.EventDataChanged || !event.DataType.IsValid() {
		return nil
	}

	s.mu.Lock()
	e, userID, cache, err := s.currentLocked(event.DataType)
	if err != nil {
		s.mu.Unlock()
		return nil
	}
	if e.state == StateEmpty {
		s.mu.Unlock()
		return nil
	}
	if event.Timestamp != 0 && event.Timestamp <= e.modified {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	return s.load(ctx, userID, cache, event.DataType, event.Timestamp, true).err
}

// SyncStale сверяет метки /api/sync с кэшем и перезагружает устаревшие и неподтвержденные документы.
func (s *Store) SyncStale(ctx context.Context) error {
	s.mu.Lock()
	userID := s.userID
	cache := s.caches[userID]
	s.mu.Unlock()
	if cache == nil {
		return ErrNoUser
	}

	modified, err := s.backend.Sync(ctx)
	if err != nil {
		return fmt.Errorf("sync metadata: %w", err)
	}

	var errs []error
	for _, docType := range models.DocumentTypes {
		var serverModified int64
		if ts := modified[docType]; ts != nil {
			serverModified = *ts
		}

		s.mu.Lock()
		e, ok := s.entryLocked(userID, cache, docType)
		stale := ok && e.state != StateEmpty && e.pending == 0 && (e.dirty || serverModified > e.modified)
		s.mu.Unlock()

		if !stale {
			continue
		}
		if result := s.load(ctx, userID, cache, docType, serverModified, true); result.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", docType, result.err))
		}
	}

	return errors.Join(errs...)
}

// load загружает документ с сервера. Одновременные загрузки одной записи объединяются;
// без force уже загруженная запись отдается из кэша.
func (s *Store) load(ctx context.Context, userID string, cache *userCache, docType models.DocumentType, modified int64, force bool) loadResult {
	key := userID + "/" + string(docType)
	if force {
		key += "/refresh"
	}
	value, _, _ := s.loads.Do(key, func() (interface{}, error) {
		s.mu.Lock()
		e, ok := s.entryLocked(userID, cache, docType)
		if !ok {
			s.mu.Unlock()
			return loadResult{err: ErrNoUser}, nil
		}
		if !force && e.state == StateReady && (!e.dirty || e.pending > 0) {
			raw := e.raw
			s.mu.Unlock()
			return loadResult{raw: raw}, nil
		}
		startVersion := e.version
		e.state = StateLoading
		s.mu.Unlock()

		payload, fetchErr := s.backend.Fetch(ctx, docType)

		s.mu.Lock()
		e, ok = s.entryLocked(userID, cache, docType)
		if !ok {
			s.mu.Unlock()
			return loadResult{err: ErrNoUser}, nil
		}

		if fetchErr != nil {
			if e.raw == nil {
				e.raw = emptyRaw(docType)
			}
			e.state = StateReady
			e.dirty = true
			raw := e.raw
			s.mu.Unlock()

			s.logger.Warn("document load failed, serving cached value",
				slog.String("user_id", userID),
				slog.String("doc_type", string(docType)),
				slog.String("error", fetchErr.Error()),
			)
			s.notify(docType)
			return loadResult{raw: raw, err: fetchErr}, nil
		}

		e.state = StateReady
		if e.version != startVersion || e.pending > 0 {
			raw := e.raw
			s.mu.Unlock()
			return loadResult{raw: raw}, nil
		}

		e.raw = payload
		e.dirty = false
		if modified > e.modified {
			e.modified = modified
		}
		s.mu.Unlock()

		s.notify(docType)
		return loadResult{raw: payload}, nil
	})

	return value.(loadResult)
}

// write применяет изменение к кэшу, уведомляет подписчиков и сохраняет документ.
// Если сохранение не удалось, документ перечитывается с сервера; если и это не удалось,
// запись помечается неподтвержденной. Ошибка сохранения возвращается в обоих случаях.
func (s *Store) write(ctx context.Context, docType models.DocumentType, apply func(current []byte) ([]byte, error)) error {
	if _, err := s.Load(ctx, docType); err != nil {
		return err
	}

	s.mu.Lock()
	e, userID, cache, err := s.currentLocked(docType)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	current := e.raw
	if current == nil {
		current = emptyRaw(docType)
	}
	next, err := apply(current)
	if err != nil {
		s.mu.Unlock()
		if errors.Is(err, ErrUnchanged) {
			return nil
		}
		return err
	}

	e.raw = next
	e.state = StateReady
	e.version++
	e.pending++
	version := e.version
	s.mu.Unlock()

	s.notify(docType)

	modified, persistErr := s.backend.Persist(ctx, docType, next)

	s.mu.Lock()
	e, ok := s.entryLocked(userID, cache, docType)
	if ok {
		e.pending--
		if persistErr == nil {
			if modified > e.modified {
				e.modified = modified
			}
			if e.version == version {
				e.dirty = false
			}
		}
	}
	s.mu.Unlock()

	if persistErr == nil {
		return nil
	}

	s.logger.Warn("document persist failed, resyncing",
		slog.String("user_id", userID),
		slog.String("doc_type", string(docType)),
		slog.String("error", persistErr.Error()),
	)
	if ok {
		s.resync(ctx, userID, cache, docType, version)
	}

	return fmt.Errorf("%w: %s: %v", ErrPersist, docType, persistErr)
}

func (s *Store) resync(ctx context.Context, userID string, cache *userCache, docType models.DocumentType, version uint64) {
	payload, fetchErr := s.backend.Fetch(ctx, docType)

	s.mu.Lock()
	e, ok := s.entryLocked(userID, cache, docType)
	if !ok || e.version != version || e.pending > 0 {
		s.mu.Unlock()
		return
	}
	if fetchErr != nil {
		e.dirty = true
	} else {
		e.raw = payload
		e.dirty = false
	}
	s.mu.Unlock()

	if fetchErr != nil {
		s.logger.Warn("document resync failed, marked dirty",
			slog.String("user_id", userID),
			slog.String("doc_type", string(docType)),
			slog.String("error", fetchErr.Error()),
		)
	}
	s.notify(docType)
}

func (s *Store) currentLocked(docType models.DocumentType) (*entry, string, *userCache, error) {
	if s.userID == "" {
		return nil, "", nil, ErrNoUser
	}
	cache := s.caches[s.userID]
	e, ok := s.entryLocked(s.userID, cache, docType)
	if !ok {
		return nil, "", nil, fmt.Errorf("unknown document type %q", docType)
	}
	return e, s.userID, cache, nil
}

// entryLocked возвращает запись, только если кэш пользователя не был вытеснен.
func (s *Store) entryLocked(userID string, cache *userCache, docType models.DocumentType) (*entry, bool) {
	if cache == nil || s.caches[userID] != cache {
		return nil, false
	}
	e, ok := cache.entries[docType]
	return e, ok
}

func (s *Store) notify(docType models.DocumentType) {
	s.mu.Lock()
	subs := make([]func(models.DocumentType), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(docType)
	}
}

func emptyRaw(docType models.DocumentType) []byte {
	empty, err := models.EmptyDocument(docType)
	if err != nil {
		return []byte("null")
	}
	raw, err := json.Marshal(empty)
	if err != nil {
		return []byte("null")
	}
	return raw
}
