package ai

import (
	"errors"
	"regexp"
	"strings"

	"example.com/meal-planner/internal/models"
)

var (
	ErrRecipeName        = errors.New("generated recipe has no name")
	ErrRecipeIngredients = errors.New("generated recipe has no ingredients")

	headerPattern       = regexp.MustCompile(`(?i)^(name|nombre|category|categor[ií]a|area|[aá]rea|ingredients|ingredientes|instructions|instrucciones|tags|etiquetas)\s*(?:\(([a-z]{2})\))?\s*:\s*(.*)$`)
	listMarkerPattern   = regexp.MustCompile(`^(?:[-*•]|\d+[.)])\s+`)
	spacePattern        = regexp.MustCompile(`\s+`)
	defaultInstructions = "en"
)

type section int

const (
	sectionNone section = iota
	sectionIngredients
	sectionInstructions
)

// ParseRecipe разбирает ответ модели по шаблону в рецепт с source=ai.
// Разбор терпим к markdown-разметке: заголовкам, жирному шрифту и маркерам списков.
func ParseRecipe(text string) (models.Recipe, error) {
	recipe := models.Recipe{
		Ingredients:  []models.Item{},
		Instructions: map[string]string{},
		Tags:         []string{},
		Source:       models.RecipeSourceAI,
	}

	current := sectionNone
	lang := ""
	steps := map[string][]string{}
	seen := map[string]struct{}{}

	for _, rawLine := range strings.Split(text, "\n") {
		line := cleanLine(rawLine)
		if line == "" {
			continue
		}

		if match := headerPattern.FindStringSubmatch(line); match != nil {
			key := strings.ToLower(match[1])
			value := strings.TrimSpace(match[3])

			switch {
			case key == "name" || key == "nombre":
				recipe.Name = value
				current = sectionNone
			case strings.HasPrefix(key, "categor"):
				recipe.Category = value
				current = sectionNone
			case key == "area" || key == "área":
				recipe.Area = value
				current = sectionNone
			case strings.HasPrefix(key, "ingredient"):
				current = sectionIngredients
				if value != "" {
					addIngredient(&recipe, seen, value)
				}
			case strings.HasPrefix(key, "instruc"):
				current = sectionInstructions
				lang = strings.ToLower(match[2])
				if lang == "" {
					lang = defaultInstructions
				}
				if value != "" {
					steps[lang] = append(steps[lang], value)
				}
			default:
				recipe.Tags = parseTags(value)
				current = sectionNone
			}
			continue
		}

		switch current {
		case sectionIngredients:
			addIngredient(&recipe, seen, listMarkerPattern.ReplaceAllString(line, ""))
		case sectionInstructions:
			steps[lang] = append(steps[lang], line)
		}
	}

	for code, lines := range steps {
		recipe.Instructions[code] = strings.Join(lines, "\n")
	}

	recipe.Name = strings.TrimSpace(recipe.Name)
	if recipe.Name == "" {
		return models.Recipe{}, ErrRecipeName
	}
	if len(recipe.Ingredients) == 0 {
		return models.Recipe{}, ErrRecipeIngredients
	}

	return recipe, nil
}

// NormalizeIngredientID приводит название ингредиента к идентификатору инвентаря.
func NormalizeIngredientID(name string) string {
	return spacePattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), " ")
}

func cleanLine(line string) string {
	trimmed := strings.TrimSpace(line)
	trimmed = strings.TrimLeft(trimmed, "#")
	trimmed = strings.ReplaceAll(trimmed, "**", "")
	trimmed = strings.ReplaceAll(trimmed, "__", "")
	return strings.TrimSpace(trimmed)
}

func addIngredient(recipe *models.Recipe, seen map[string]struct{}, entry string) {
	entry = strings.TrimSpace(listMarkerPattern.ReplaceAllString(entry, ""))
	if entry == "" {
		return
	}

	name, measure := entry, ""
	if idx := strings.Index(entry, ":"); idx >= 0 {
		name = entry[:idx]
		measure = strings.TrimSpace(entry[idx+1:])
	}

	id := NormalizeIngredientID(name)
	if id == "" {
		return
	}
	if _, ok := seen[id]; ok {
		return
	}
	seen[id] = struct{}{}

	recipe.Ingredients = append(recipe.Ingredients, models.Item{ID: id, Measure: measure})
}

func parseTags(value string) []string {
	tags := []string{}
	for _, part := range strings.Split(value, ",") {
		tag := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "#"))
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
