package planner

import (
	"errors"

	"example.com/meal-planner/internal/models"
)

var ErrInvalidSlot = errors.New("invalid week slot")

// AddInstance добавляет экземпляр рецепта в конец слота.
func AddInstance(week models.WeekPlan, day models.Day, meal models.Meal, recipeName string) (models.WeekPlan, error) {
	out := week.Clone()
	slot, ok := out.Slot(day, meal)
	if !ok {
		return week, ErrInvalidSlot
	}
	*slot = append(*slot, models.PlannedMeal{RecipeName: recipeName})
	return out, nil
}

// RemoveInstance удаляет экземпляр по позиции в слоте и возвращает название его рецепта.
func RemoveInstance(week models.WeekPlan, day models.Day, meal models.Meal, index int) (models.WeekPlan, string, error) {
	out := week.Clone()
	slot, ok := out.Slot(day, meal)
	if !ok || index < 0 || index >= len(*slot) {
		return week, "", ErrInvalidSlot
	}
	name := (*slot)[index].RecipeName
	*slot = append((*slot)[:index], (*slot)[index+1:]...)
	return out, name, nil
}

// MarkOneInstanceCompleted отмечает приготовленным первый незавершенный экземпляр рецепта.
// Обход идет с понедельника по воскресенье, обед раньше ужина.
// Возвращает false, если отмечать нечего.
func MarkOneInstanceCompleted(week models.WeekPlan, recipeName string) (models.WeekPlan, bool) {
	out := week.Clone()
	for _, day := range models.Days {
		for _, meal := range models.Meals {
			slot, _ := out.Slot(day, meal)
			for i := range *slot {
				if (*slot)[i].RecipeName == recipeName && !(*slot)[i].Completed {
					(*slot)[i].Completed = true
					return out, true
				}
			}
		}
	}
	return out, false
}

// HasIncompleteInstance сообщает, остался ли в неделе неприготовленный экземпляр рецепта.
func HasIncompleteInstance(week models.WeekPlan, recipeName string) bool {
	found := false
	eachInstance(week, func(meal models.PlannedMeal) {
		if meal.RecipeName == recipeName && !meal.Completed {
			found = true
		}
	})
	return found
}

// HasInstance сообщает, запланирован ли рецепт хотя бы в одном слоте.
func HasInstance(week models.WeekPlan, recipeName string) bool {
	found := false
	eachInstance(week, func(meal models.PlannedMeal) {
		if meal.RecipeName == recipeName {
			found = true
		}
	})
	return found
}

// DetachRecipe убирает рецепт из всех слотов недели.
func DetachRecipe(week models.WeekPlan, recipeName string) models.WeekPlan {
	out := week.Clone()
	for _, day := range models.Days {
		for _, meal := range models.Meals {
			slot, _ := out.Slot(day, meal)
			kept := make([]models.PlannedMeal, 0, len(*slot))
			for _, planned := range *slot {
				if planned.RecipeName != recipeName {
					kept = append(kept, planned)
				}
			}
			*slot = kept
		}
	}
	return out
}

// PlannedRecipes возвращает названия запланированных рецептов в порядке недели без повторов.
func PlannedRecipes(week models.WeekPlan) []string {
	seen := make(map[string]struct{})
	names := make([]string, 0)
	eachInstance(week, func(meal models.PlannedMeal) {
		if _, ok := seen[meal.RecipeName]; ok {
			return
		}
		seen[meal.RecipeName] = struct{}{}
		names = append(names, meal.RecipeName)
	})
	return names
}

func eachInstance(week models.WeekPlan, fn func(models.PlannedMeal)) {
	for _, day := range models.Days {
		for _, meal := range models.Meals {
			slot, _ := week.Slot(day, meal)
			for _, planned := range *slot {
				fn(planned)
			}
		}
	}
}
