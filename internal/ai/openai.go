package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIClient calls an OpenAI-compatible chat completions API served locally
// (llama.cpp server, LM Studio, vLLM, Ollama's /v1).
type OpenAIClient struct {
	client       openai.Client
	model        string
	probeTimeout time.Duration
}

// NewOpenAIClient создает клиент OpenAI-совместимого сервера.
func NewOpenAIClient(apiKey, baseURL, model string, probeTimeout time.Duration) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(baseURL, "/") + "/"),
		option.WithHTTPClient(&http.Client{}),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(apiKey) != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	return &OpenAIClient{
		client:       openai.NewClient(opts...),
		model:        model,
		probeTimeout: probeTimeout,
	}
}

// Probe проверяет доступность сервера и наличие модели в /models.
func (c *OpenAIClient) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	page, err := c.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	for _, model := range page.Data {
		if model.ID == c.model {
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrModelMissing, c.model)
}

// Generate запрашивает потоковый ответ и передает каждый фрагмент текста в onChunk.
// При ошибке возвращается уже полученная часть текста.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Temperature: openai.Float(0.7),
	})
	defer stream.Close()

	var text strings.Builder
	for stream.Next() {
		for _, choice := range stream.Current().Choices {
			if choice.Delta.Content == "" {
				continue
			}
			text.WriteString(choice.Delta.Content)
			if onChunk != nil {
				onChunk(choice.Delta.Content)
			}
		}
	}

	if err := stream.Err(); err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			return text.String(), fmt.Errorf("openai api error: %s", apiErr.Message)
		}
		if ctx.Err() == nil && text.Len() == 0 {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return text.String(), fmt.Errorf("openai stream: %w", err)
	}
	if text.Len() == 0 {
		return "", errors.New("openai stream ended without content")
	}
	return text.String(), nil
}
