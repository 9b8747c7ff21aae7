package planner

import "example.com/meal-planner/internal/models"

type Availability struct {
	AvailableMatches []models.Item            `json:"availableMatches"`
	MissingItems     []models.Item            `json:"missingItems"`
	Status           models.AvailabilityStatus `json:"status"`
}

// IsHeld сообщает, есть ли ингредиент в наличии: отсутствие означают только пустая строка и ровно "0".
func IsHeld(measure string) bool {
	return measure != "" && measure != "0"
}

// CheckAvailability сравнивает ингредиенты рецепта с инвентарем.
// Недостающие позиции сохраняют количество, требуемое рецептом.
func CheckAvailability(recipe models.Recipe, inventory []models.Ingredient) Availability {
	held := make(map[string]string, len(inventory))
	for _, ingredient := range inventory {
		held[ingredient.ID] = ingredient.Measure
	}

	result := Availability{
		AvailableMatches: []models.Item{},
		MissingItems:     []models.Item{},
	}

	for _, required := range recipe.Ingredients {
		measure, ok := held[required.ID]
		if ok && IsHeld(measure) {
			result.AvailableMatches = append(result.AvailableMatches, required)
			continue
		}
		result.MissingItems = append(result.MissingItems, required)
	}

	result.Status = availabilityStatus(len(result.MissingItems), len(recipe.Ingredients))
	return result
}

func availabilityStatus(missing, total int) models.AvailabilityStatus {
	if missing == 0 {
		return models.StatusAvailable
	}
	// missing >= total/2 без перехода к дробям
	if 2*missing >= total {
		return models.StatusUnavailable
	}
	return models.StatusPartial
}
