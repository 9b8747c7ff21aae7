package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"example.com/meal-planner/internal/ai"
	"example.com/meal-planner/internal/models"
)

type recipeStreamLine struct {
	Chunk  string         `json:"chunk,omitempty"`
	Recipe *models.Recipe `json:"recipe,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// AIStatus возвращает доступность генерации рецептов на сервере.
func (c *APIClient) AIStatus(ctx context.Context) (ai.Status, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/ai/status", nil)
	if err != nil {
		return ai.Status{}, err
	}

	var status ai.Status
	if err := json.Unmarshal(body, &status); err != nil {
		return ai.Status{}, fmt.Errorf("decode ai status: %w", err)
	}
	return status, nil
}

// GenerateRecipe запрашивает потоковую генерацию рецепта и передает фрагменты текста в onChunk.
// Таймаута нет: генерация идет, пока сервер не закончит поток или не отменят ctx.
func (c *APIClient) GenerateRecipe(ctx context.Context, req ai.RecipeRequest, onChunk func(string)) (models.Recipe, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return models.Recipe{}, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/ai/recipes/stream", bytes.NewReader(payload))
	if err != nil {
		return models.Recipe{}, err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+c.Token())

	response, err := http.DefaultClient.Do(request)
	if err != nil {
		return models.Recipe{}, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		apiErr := &APIError{StatusCode: response.StatusCode}
		var parsed struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &parsed); err == nil {
			apiErr.Message = parsed.Error
		}
		return models.Recipe{}, apiErr
	}

	scanner := bufio.NewScanner(response.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var parsed recipeStreamLine
		if err := json.Unmarshal(line, &parsed); err != nil {
			return models.Recipe{}, fmt.Errorf("decode stream line: %w", err)
		}

		switch {
		case parsed.Error != "":
			return models.Recipe{}, errors.New(parsed.Error)
		case parsed.Recipe != nil:
			return *parsed.Recipe, nil
		case parsed.Chunk != "" && onChunk != nil:
			onChunk(parsed.Chunk)
		}
	}

	if err := scanner.Err(); err != nil {
		return models.Recipe{}, fmt.Errorf("read stream: %w", err)
	}
	return models.Recipe{}, errors.New("stream ended without a recipe")
}
