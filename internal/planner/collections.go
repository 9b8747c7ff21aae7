package planner

import "example.com/meal-planner/internal/models"

// UpsertIngredient заменяет ингредиент с тем же id на его месте или добавляет новый в конец.
func UpsertIngredient(inventory []models.Ingredient, ingredient models.Ingredient) []models.Ingredient {
	out := append([]models.Ingredient{}, inventory...)
	for i := range out {
		if out[i].ID == ingredient.ID {
			out[i] = ingredient
			return out
		}
	}
	return append(out, ingredient)
}

// RemoveIngredient удаляет ингредиент по id.
func RemoveIngredient(inventory []models.Ingredient, id string) []models.Ingredient {
	out := make([]models.Ingredient, 0, len(inventory))
	for _, ingredient := range inventory {
		if ingredient.ID != id {
			out = append(out, ingredient)
		}
	}
	return out
}

// FindIngredient ищет ингредиент по id.
func FindIngredient(inventory []models.Ingredient, id string) (models.Ingredient, bool) {
	for _, ingredient := range inventory {
		if ingredient.ID == id {
			return ingredient, true
		}
	}
	return models.Ingredient{}, false
}

// UpsertRecipe заменяет рецепт с тем же названием на его месте или добавляет новый.
func UpsertRecipe(recipes []models.Recipe, recipe models.Recipe) []models.Recipe {
	out := append([]models.Recipe{}, recipes...)
	for i := range out {
		if out[i].Name == recipe.Name {
			out[i] = recipe
			return out
		}
	}
	return append(out, recipe)
}

// RemoveRecipe удаляет рецепт по названию.
func RemoveRecipe(recipes []models.Recipe, name string) []models.Recipe {
	out := make([]models.Recipe, 0, len(recipes))
	for _, recipe := range recipes {
		if recipe.Name != name {
			out = append(out, recipe)
		}
	}
	return out
}

// FindRecipe ищет рецепт по названию.
func FindRecipe(recipes []models.Recipe, name string) (models.Recipe, bool) {
	for _, recipe := range recipes {
		if recipe.Name == name {
			return recipe, true
		}
	}
	return models.Recipe{}, false
}

// DuplicateIngredientID возвращает первый повторяющийся id в инвентаре.
func DuplicateIngredientID(inventory []models.Ingredient) (string, bool) {
	seen := make(map[string]struct{}, len(inventory))
	for _, ingredient := range inventory {
		if _, ok := seen[ingredient.ID]; ok {
			return ingredient.ID, true
		}
		seen[ingredient.ID] = struct{}{}
	}
	return "", false
}

// DuplicateRecipeName возвращает первое повторяющееся название рецепта.
func DuplicateRecipeName(recipes []models.Recipe) (string, bool) {
	seen := make(map[string]struct{}, len(recipes))
	for _, recipe := range recipes {
		if _, ok := seen[recipe.Name]; ok {
			return recipe.Name, true
		}
		seen[recipe.Name] = struct{}{}
	}
	return "", false
}
