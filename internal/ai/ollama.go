package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxStreamLine = 1 << 20

// OllamaClient calls a local Ollama server and consumes its NDJSON stream.
type OllamaClient struct {
	baseURL      string
	model        string
	probeTimeout time.Duration
	httpClient   *http.Client
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaStreamChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// NewOllamaClient создает клиент Ollama. У HTTP-клиента нет общего таймаута:
// генерация идет до конца потока, а проверка доступности ограничена probeTimeout.
func NewOllamaClient(baseURL, model string, probeTimeout time.Duration) *OllamaClient {
	return &OllamaClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		model:        model,
		probeTimeout: probeTimeout,
		httpClient:   &http.Client{},
	}
}

// Probe проверяет, что сервис отвечает и нужная модель установлена.
func (c *OllamaClient) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, response.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(response.Body).Decode(&tags); err != nil {
		return fmt.Errorf("%w: decode tags: %v", ErrUnavailable, err)
	}

	for _, model := range tags.Models {
		if matchesModel(model.Name, c.model) || matchesModel(model.Model, c.model) {
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrModelMissing, c.model)
}

// Generate отправляет промпт и собирает ответ из потока, передавая каждый фрагмент в onChunk.
func (c *OllamaClient) Generate(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	payload, err := json.Marshal(ollamaGenerateRequest{Model: c.model, Prompt: prompt, Stream: true})
	if err != nil {
		return "", err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		var apiErr ollamaStreamChunk
		message := strings.TrimSpace(string(body))
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
			message = apiErr.Error
		}
		if response.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("%w: %s", ErrModelMissing, message)
		}
		return "", fmt.Errorf("ollama api error: %s", message)
	}

	var builder strings.Builder
	scanner := bufio.NewScanner(response.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ollamaStreamChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return builder.String(), fmt.Errorf("decode stream chunk: %w", err)
		}
		if chunk.Error != "" {
			return builder.String(), fmt.Errorf("ollama stream error: %s", chunk.Error)
		}

		if chunk.Response != "" {
			builder.WriteString(chunk.Response)
			if onChunk != nil {
				onChunk(chunk.Response)
			}
		}

		if chunk.Done {
			return builder.String(), nil
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return builder.String(), err
		}
		return builder.String(), fmt.Errorf("read stream: %w", err)
	}

	return builder.String(), nil
}

func matchesModel(installed, wanted string) bool {
	if installed == "" {
		return false
	}
	if installed == wanted {
		return true
	}
	if !strings.Contains(wanted, ":") {
		return strings.HasPrefix(installed, wanted+":")
	}
	return false
}
