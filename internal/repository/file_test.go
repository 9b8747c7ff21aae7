package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"example.com/meal-planner/internal/models"
)

// TestFileRepositoryNotFound проверяет ErrNotFound для еще не созданного документа.
func TestFileRepositoryNotFound(t *testing.T) {
	repo, err := NewFileDocumentRepository(t.TempDir())
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}

	if _, err := repo.Get(context.Background(), "user_1", models.DocumentRecipes); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestFileRepositoryPutGet проверяет перезапись документа целиком.
func TestFileRepositoryPutGet(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewFileDocumentRepository(dir)
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	ctx := context.Background()

	if _, err := repo.Put(ctx, "user_1", models.DocumentIngredients, []byte(`[{"id":"rice"}]`)); err != nil {
		t.Fatalf("first put: %v", err)
	}
	modified, err := repo.Put(ctx, "user_1", models.DocumentIngredients, []byte(`[]`))
	if err != nil {
		t.Fatalf("second put: %v", err)
	}
	if modified.IsZero() {
		t.Fatal("expected modification time")
	}

	got, err := repo.Get(ctx, "user_1", models.DocumentIngredients)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `[]` {
		t.Fatalf("expected last write to win, got %s", got)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "user_1"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "ingredients.json" {
		t.Fatalf("expected only ingredients.json, got %v", entries)
	}
}

// TestFileRepositoryIsolation проверяет, что документы разных пользователей не пересекаются.
func TestFileRepositoryIsolation(t *testing.T) {
	repo, err := NewFileDocumentRepository(t.TempDir())
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	ctx := context.Background()

	if _, err := repo.Put(ctx, "alice", models.DocumentWeek, []byte(`{}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := repo.Get(ctx, "bob", models.DocumentWeek); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another user, got %v", err)
	}
}

// TestFileRepositoryLastModified проверяет nil для отсутствующих документов.
func TestFileRepositoryLastModified(t *testing.T) {
	repo, err := NewFileDocumentRepository(t.TempDir())
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	ctx := context.Background()

	if _, err := repo.Put(ctx, "user_1", models.DocumentShoppingList, []byte(`{}`)); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := repo.LastModified(ctx, "user_1")
	if err != nil {
		t.Fatalf("last modified: %v", err)
	}
	if len(got) != len(models.DocumentTypes) {
		t.Fatalf("expected %d entries, got %d", len(models.DocumentTypes), len(got))
	}
	if got[models.DocumentShoppingList] == nil {
		t.Fatal("expected shopping-list timestamp")
	}
	if got[models.DocumentRecipes] != nil {
		t.Fatal("expected nil for missing recipes")
	}
}

// TestFileRepositoryInvalidKey проверяет отказ для небезопасных идентификаторов.
func TestFileRepositoryInvalidKey(t *testing.T) {
	repo, err := NewFileDocumentRepository(t.TempDir())
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	ctx := context.Background()

	for _, userID := range []string{"", "..", "../other", `a\b`, " padded"} {
		if _, err := repo.Put(ctx, userID, models.DocumentWeek, []byte(`{}`)); !errors.Is(err, ErrInvalid) {
			t.Fatalf("expected ErrInvalid for %q, got %v", userID, err)
		}
	}

	if _, err := repo.Get(ctx, "user_1", models.DocumentType("settings")); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for unknown document, got %v", err)
	}
}

// TestFileRepositoryStampsIncrease проверяет, что подряд идущие записи получают разные миллисекундные метки.
func TestFileRepositoryStampsIncrease(t *testing.T) {
	repo, err := NewFileDocumentRepository(t.TempDir())
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	ctx := context.Background()

	var previous int64
	for i := 0; i < 200; i++ {
		modified, err := repo.Put(ctx, "user_1", models.DocumentIngredients, []byte(`[]`))
		if err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
		if modified.UnixMilli() <= previous {
			t.Fatalf("put %d: stamp %d not after %d", i, modified.UnixMilli(), previous)
		}
		previous = modified.UnixMilli()
	}

	got, err := repo.LastModified(ctx, "user_1")
	if err != nil {
		t.Fatalf("last modified: %v", err)
	}
	if got[models.DocumentIngredients].UnixMilli() != previous {
		t.Fatalf("expected last modified %d, got %d", previous, got[models.DocumentIngredients].UnixMilli())
	}
}

// TestFileRepositoryStampsSurviveRestart проверяет, что новый экземпляр продолжает метки после записанного mtime.
func TestFileRepositoryStampsSurviveRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewFileDocumentRepository(dir)
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	before, err := first.Put(ctx, "user_1", models.DocumentWeek, []byte(`{}`))
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	second, err := NewFileDocumentRepository(dir)
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	after, err := second.Put(ctx, "user_1", models.DocumentWeek, []byte(`{}`))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if after.UnixMilli() <= before.UnixMilli() {
		t.Fatalf("expected stamp after %d, got %d", before.UnixMilli(), after.UnixMilli())
	}
}

// TestNextStamp проверяет выбор метки при совпадении и отставании часов.
func TestNextStamp(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	if got := nextStamp(time.Time{}, base.Add(1500*time.Microsecond)); !got.Equal(base.Add(time.Millisecond)) {
		t.Fatalf("expected truncated now, got %v", got)
	}
	if got := nextStamp(base, base); !got.Equal(base.Add(time.Millisecond)) {
		t.Fatalf("expected previous+1ms for same tick, got %v", got)
	}
	if got := nextStamp(base, base.Add(-time.Second)); !got.Equal(base.Add(time.Millisecond)) {
		t.Fatalf("expected previous+1ms when clock is behind, got %v", got)
	}
	if got := nextStamp(base, base.Add(time.Second)); !got.Equal(base.Add(time.Second)) {
		t.Fatalf("expected now when clock is ahead, got %v", got)
	}
}
