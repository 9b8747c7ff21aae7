package repository

import (
	"context"
	"strings"
	"time"

	"example.com/meal-planner/internal/models"
)

// DocumentRepository хранит документы пользователя целиком: один документ на пару (userID, docType).
type DocumentRepository interface {
	Get(ctx context.Context, userID string, docType models.DocumentType) ([]byte, error)
	Put(ctx context.Context, userID string, docType models.DocumentType, payload []byte) (time.Time, error)
	LastModified(ctx context.Context, userID string) (map[models.DocumentType]*time.Time, error)
}

func validateKey(userID string, docType models.DocumentType) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	if !docType.IsValid() {
		return ErrInvalid
	}
	return nil
}

func validateUserID(userID string) error {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" || trimmed != userID {
		return ErrInvalid
	}
	if userID == "." || userID == ".." || strings.ContainsAny(userID, `/\`) || strings.ContainsRune(userID, 0) {
		return ErrInvalid
	}
	return nil
}

func emptyModified() map[models.DocumentType]*time.Time {
	out := make(map[models.DocumentType]*time.Time, len(models.DocumentTypes))
	for _, docType := range models.DocumentTypes {
		out[docType] = nil
	}
	return out
}

// nextStamp возвращает метку записи: текущее время в миллисекундах,
// но не раньше чем через миллисекунду после предыдущей записи.
func nextStamp(previous, now time.Time) time.Time {
	stamp := now.UTC().Truncate(time.Millisecond)
	if !previous.IsZero() {
		if floor := previous.UTC().Truncate(time.Millisecond).Add(time.Millisecond); stamp.Before(floor) {
			stamp = floor
		}
	}
	return stamp
}
