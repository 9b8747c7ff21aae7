package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"example.com/meal-planner/internal/models"
)

var defaultLanguages = []string{"es", "en"}

type Service struct {
	client   Client
	provider string
	model    string
}

// NewService создает сервис генерации рецептов.
func NewService(client Client, provider, model string) *Service {
	return &Service{client: client, provider: provider, model: model}
}

// Probe проверяет доступность сервиса генерации с коротким таймаутом.
func (s *Service) Probe(ctx context.Context) error {
	return s.client.Probe(ctx)
}

// Status возвращает статус доступности для клиента.
func (s *Service) Status(ctx context.Context) Status {
	status := Status{Provider: s.provider, Model: s.model}
	if err := s.client.Probe(ctx); err != nil {
		status.Error = err.Error()
		return status
	}
	status.Available = true
	return status
}

// GenerateRecipe генерирует рецепт и разбирает ответ модели. Возвращает рецепт и сырой текст.
// Доступность сервиса проверяется отдельно через Probe.
func (s *Service) GenerateRecipe(ctx context.Context, req RecipeRequest, onChunk func(string)) (models.Recipe, string, error) {
	if strings.TrimSpace(req.Instruction) == "" {
		return models.Recipe{}, "", errors.New("instruction is required")
	}

	prompt := buildRecipePrompt(req)
	text, err := s.client.Generate(ctx, prompt, onChunk)
	if err != nil {
		return models.Recipe{}, text, err
	}

	recipe, err := ParseRecipe(text)
	if err != nil {
		return models.Recipe{}, text, err
	}

	return recipe, text, nil
}

func buildRecipePrompt(req RecipeRequest) string {
	languages := req.Languages
	if len(languages) == 0 {
		languages = defaultLanguages
	}

	var instructions strings.Builder
	for _, lang := range languages {
		code := strings.ToUpper(strings.TrimSpace(lang))
		fmt.Fprintf(&instructions, "Instructions (%s):\n<numbered steps written in %s>\n", code, code)
	}

	available := "none provided"
	if len(req.Ingredients) > 0 {
		available = strings.Join(req.Ingredients, ", ")
	}

	return fmt.Sprintf(`### Instruction:
You are a cooking assistant. Create one recipe for the request below.
Prefer the available ingredients. Answer using exactly this template and nothing else:

Name: <recipe name>
Category: <category, e.g. Seafood, Vegetarian, Dessert>
Area: <cuisine, e.g. Spanish>
Ingredients:
- <ingredient name in english, lowercase>: <quantity>
%sTags: <comma separated tags>

Request: %s
Available ingredients: %s

### Response:
`, instructions.String(), strings.TrimSpace(req.Instruction), available)
}
