package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/meal-planner/internal/models"
)

type PostgresDocumentRepository struct {
	db *pgxpool.Pool
}

// NewPostgresDocumentRepository создает хранилище документов в таблице user_documents.
func NewPostgresDocumentRepository(db *pgxpool.Pool) *PostgresDocumentRepository {
	return &PostgresDocumentRepository{db: db}
}

// Get возвращает документ пользователя или ErrNotFound.
func (r *PostgresDocumentRepository) Get(ctx context.Context, userID string, docType models.DocumentType) ([]byte, error) {
	if err := validateKey(userID, docType); err != nil {
		return nil, err
	}

	var payload []byte
	err := r.db.QueryRow(ctx,
		`SELECT payload
		 FROM user_documents
		 WHERE user_id = $1 AND doc_type = $2`,
		userID, string(docType),
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select %s: %w", docType, err)
	}

	return payload, nil
}

// Put заменяет документ целиком, последняя запись побеждает.
// updated_at каждой записи строго больше предыдущего с точностью до миллисекунды.
func (r *PostgresDocumentRepository) Put(ctx context.Context, userID string, docType models.DocumentType, payload []byte) (time.Time, error) {
	if err := validateKey(userID, docType); err != nil {
		return time.Time{}, err
	}

	var updatedAt time.Time
	err := r.db.QueryRow(ctx,
		`INSERT INTO user_documents (user_id, doc_type, payload, updated_at)
		 VALUES ($1, $2, $3::jsonb, date_trunc('milliseconds', clock_timestamp()))
		 ON CONFLICT (user_id, doc_type)
		 DO UPDATE SET payload = EXCLUDED.payload,
		     updated_at = GREATEST(
		         EXCLUDED.updated_at,
		         date_trunc('milliseconds', user_documents.updated_at) + INTERVAL '1 millisecond'
		     )
		 RETURNING updated_at`,
		userID, string(docType), string(payload),
	).Scan(&updatedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("upsert %s: %w", docType, err)
	}

	return updatedAt.UTC(), nil
}

// LastModified возвращает updated_at для каждого типа документа пользователя.
func (r *PostgresDocumentRepository) LastModified(ctx context.Context, userID string) (map[models.DocumentType]*time.Time, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx,
		`SELECT doc_type, updated_at
		 FROM user_documents
		 WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := emptyModified()
	for rows.Next() {
		var docType string
		var updatedAt time.Time
		if err := rows.Scan(&docType, &updatedAt); err != nil {
			return nil, err
		}
		if !models.DocumentType(docType).IsValid() {
			continue
		}
		modified := updatedAt.UTC()
		out[models.DocumentType(docType)] = &modified
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}
