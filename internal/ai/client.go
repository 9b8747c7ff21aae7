package ai

import (
	"context"
	"errors"
)

var (
	ErrUnavailable  = errors.New("ai service unavailable")
	ErrModelMissing = errors.New("ai model is not installed")
)

// Client обращается к локальному сервису генерации.
// Probe ограничен коротким таймаутом; Generate работает, пока не закончится поток или контекст.
type Client interface {
	Probe(ctx context.Context) error
	Generate(ctx context.Context, prompt string, onChunk func(string)) (string, error)
}
