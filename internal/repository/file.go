package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"example.com/meal-planner/internal/models"
)

type FileDocumentRepository struct {
	dir string

	mu     sync.Mutex
	stamps map[string]time.Time
}

// NewFileDocumentRepository создает файловое хранилище документов в каталоге dir.
func NewFileDocumentRepository(dir string) (*FileDocumentRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}
	return &FileDocumentRepository{dir: dir, stamps: make(map[string]time.Time)}, nil
}

// Get читает документ пользователя. Если файла еще нет, возвращает ErrNotFound.
func (r *FileDocumentRepository) Get(ctx context.Context, userID string, docType models.DocumentType) ([]byte, error) {
	if err := validateKey(userID, docType); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload, err := os.ReadFile(r.path(userID, docType))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s for user %s: %w", docType, userID, err)
	}

	return payload, nil
}

// Put перезаписывает документ целиком через временный файл и rename.
// Возвращаемая метка строго больше предыдущей для того же документа с точностью до миллисекунды.
func (r *FileDocumentRepository) Put(ctx context.Context, userID string, docType models.DocumentType, payload []byte) (time.Time, error) {
	if err := validateKey(userID, docType); err != nil {
		return time.Time{}, err
	}
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	userDir := filepath.Join(r.dir, userID)
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return time.Time{}, fmt.Errorf("create user dir: %w", err)
	}

	tmp, err := os.CreateTemp(userDir, string(docType)+".*.tmp")
	if err != nil {
		return time.Time{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return time.Time{}, fmt.Errorf("write %s: %w", docType, err)
	}
	if err := tmp.Close(); err != nil {
		return time.Time{}, fmt.Errorf("close %s: %w", docType, err)
	}

	target := r.path(userID, docType)

	r.mu.Lock()
	defer r.mu.Unlock()

	previous, err := r.modifiedLocked(target)
	if err != nil {
		return time.Time{}, err
	}
	stamp := nextStamp(previous, time.Now())
	if err := os.Chtimes(tmpName, stamp, stamp); err != nil {
		return time.Time{}, fmt.Errorf("stamp %s: %w", docType, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return time.Time{}, fmt.Errorf("replace %s: %w", docType, err)
	}
	r.stamps[target] = stamp

	return stamp, nil
}

// LastModified возвращает время изменения каждого документа пользователя, nil если документа нет.
func (r *FileDocumentRepository) LastModified(ctx context.Context, userID string) (map[models.DocumentType]*time.Time, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out := emptyModified()
	for _, docType := range models.DocumentTypes {
		modified, err := r.modifiedLocked(r.path(userID, docType))
		if err != nil {
			return nil, err
		}
		if modified.IsZero() {
			continue
		}
		out[docType] = &modified
	}

	return out, nil
}

// modifiedLocked возвращает метку последней записи файла или нулевое время, если файла нет.
// Метка, выданная этим процессом, приоритетнее mtime.
func (r *FileDocumentRepository) modifiedLocked(path string) (time.Time, error) {
	if stamp, ok := r.stamps[path]; ok {
		return stamp, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("stat %s: %w", filepath.Base(path), err)
	}
	return info.ModTime().UTC().Truncate(time.Millisecond), nil
}

func (r *FileDocumentRepository) path(userID string, docType models.DocumentType) string {
	return filepath.Join(r.dir, userID, string(docType)+".json")
}
