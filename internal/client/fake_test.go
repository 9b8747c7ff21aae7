package client

import (
	"context"
	"errors"
	"sync"

	"example.com/meal-planner/internal/models"
)

var errOffline = errors.New("offline")

// fakeBackend хранит документы в памяти, отдельно для каждого пользователя.
type fakeBackend struct {
	mu         sync.Mutex
	user       string
	docs       map[string]map[models.DocumentType][]byte
	modified   map[string]map[models.DocumentType]int64
	clock      int64
	fetchErr   error
	persistErr error
	fetches    int
	persists   int

	fetchStarted  chan struct{}
	fetchGate     chan struct{}
	beforePersist func()
}

func newFakeBackend(user string) *fakeBackend {
	return &fakeBackend{
		user:     user,
		docs:     make(map[string]map[models.DocumentType][]byte),
		modified: make(map[string]map[models.DocumentType]int64),
		clock:    1000,
	}
}

func (b *fakeBackend) setUser(user string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.user = user
}

func (b *fakeBackend) setErrors(fetchErr, persistErr error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetchErr = fetchErr
	b.persistErr = persistErr
}

// put меняет документ на сервере, как будто его записал другой клиент.
func (b *fakeBackend) put(user string, docType models.DocumentType, raw string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.putLocked(user, docType, []byte(raw))
}

func (b *fakeBackend) putLocked(user string, docType models.DocumentType, raw []byte) int64 {
	if b.docs[user] == nil {
		b.docs[user] = make(map[models.DocumentType][]byte)
		b.modified[user] = make(map[models.DocumentType]int64)
	}
	b.clock++
	b.docs[user][docType] = append([]byte(nil), raw...)
	b.modified[user][docType] = b.clock
	return b.clock
}

func (b *fakeBackend) stored(user string, docType models.DocumentType) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.docs[user][docType])
}

func (b *fakeBackend) counts() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetches, b.persists
}

func (b *fakeBackend) Fetch(ctx context.Context, docType models.DocumentType) ([]byte, error) {
	b.mu.Lock()
	started, gate := b.fetchStarted, b.fetchGate
	user := b.user
	b.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetches++
	if b.fetchErr != nil {
		return nil, b.fetchErr
	}
	if raw, ok := b.docs[user][docType]; ok {
		return append([]byte(nil), raw...), nil
	}
	return emptyRaw(docType), nil
}

func (b *fakeBackend) Persist(ctx context.Context, docType models.DocumentType, payload []byte) (int64, error) {
	b.mu.Lock()
	hook := b.beforePersist
	b.mu.Unlock()
	if hook != nil {
		hook()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.persists++
	if b.persistErr != nil {
		return 0, b.persistErr
	}
	return b.putLocked(b.user, docType, payload), nil
}

func (b *fakeBackend) Sync(ctx context.Context) (map[models.DocumentType]*int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fetchErr != nil {
		return nil, b.fetchErr
	}
	out := make(map[models.DocumentType]*int64, len(models.DocumentTypes))
	for _, docType := range models.DocumentTypes {
		if ts, ok := b.modified[b.user][docType]; ok {
			value := ts
			out[docType] = &value
			continue
		}
		out[docType] = nil
	}
	return out, nil
}
