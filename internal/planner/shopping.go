package planner

import "example.com/meal-planner/internal/models"

// AddGeneralItem добавляет позицию без привязки к рецепту.
// Если позиция с таким id уже есть, список не меняется и возвращается false.
func AddGeneralItem(list models.ShoppingList, item models.Item) (models.ShoppingList, bool) {
	out := list.Clone()
	for _, existing := range out.GeneralItems {
		if existing.ID == item.ID {
			return out, false
		}
	}
	out.GeneralItems = append(out.GeneralItems, item)
	return out, true
}

// RemoveGeneralItem удаляет общую позицию по id.
func RemoveGeneralItem(list models.ShoppingList, id string) models.ShoppingList {
	out := list.Clone()
	items := make([]models.Item, 0, len(out.GeneralItems))
	for _, item := range out.GeneralItems {
		if item.ID != id {
			items = append(items, item)
		}
	}
	out.GeneralItems = items
	return out
}

// MergeRecipeIntoShoppingList заменяет позиции рецепта на месте или добавляет запись в конец.
func MergeRecipeIntoShoppingList(list models.ShoppingList, recipeName string, missing []models.Item) models.ShoppingList {
	out := list.Clone()
	items := append([]models.Item{}, missing...)
	for i := range out.RecipeLists {
		if out.RecipeLists[i].RecipeName == recipeName {
			out.RecipeLists[i].Items = items
			return out
		}
	}
	out.RecipeLists = append(out.RecipeLists, models.RecipeList{RecipeName: recipeName, Items: items})
	return out
}

// RemoveRecipeFromShoppingList удаляет запись рецепта из списка покупок.
// Отвязка рецепта от плана недели остается на вызывающей стороне.
func RemoveRecipeFromShoppingList(list models.ShoppingList, recipeName string) models.ShoppingList {
	out := list.Clone()
	lists := make([]models.RecipeList, 0, len(out.RecipeLists))
	for _, entry := range out.RecipeLists {
		if entry.RecipeName != recipeName {
			lists = append(lists, entry)
		}
	}
	out.RecipeLists = lists
	return out
}

// RemoveShoppingItem удаляет позицию из записи рецепта, а при пустом recipeName из общих позиций.
// Запись рецепта остается даже с пустым списком: рецепт подтвержден, покупать нечего.
func RemoveShoppingItem(list models.ShoppingList, recipeName, id string) models.ShoppingList {
	if recipeName == "" {
		return RemoveGeneralItem(list, id)
	}

	out := list.Clone()
	for i := range out.RecipeLists {
		if out.RecipeLists[i].RecipeName != recipeName {
			continue
		}
		items := make([]models.Item, 0, len(out.RecipeLists[i].Items))
		for _, item := range out.RecipeLists[i].Items {
			if item.ID != id {
				items = append(items, item)
			}
		}
		out.RecipeLists[i].Items = items
	}
	return out
}

// FindShoppingItem ищет позицию в записи рецепта или в общих позициях.
func FindShoppingItem(list models.ShoppingList, recipeName, id string) (models.Item, bool) {
	items := list.GeneralItems
	if recipeName != "" {
		items = nil
		for _, entry := range list.RecipeLists {
			if entry.RecipeName == recipeName {
				items = entry.Items
				break
			}
		}
	}
	for _, item := range items {
		if item.ID == id {
			return item, true
		}
	}
	return models.Item{}, false
}

// HasRecipeList сообщает, подтвержден ли рецепт в списке покупок.
func HasRecipeList(list models.ShoppingList, recipeName string) bool {
	for _, entry := range list.RecipeLists {
		if entry.RecipeName == recipeName {
			return true
		}
	}
	return false
}

// DuplicateRecipeList возвращает первое повторяющееся название в recipeLists.
func DuplicateRecipeList(list models.ShoppingList) (string, bool) {
	seen := make(map[string]struct{}, len(list.RecipeLists))
	for _, entry := range list.RecipeLists {
		if _, ok := seen[entry.RecipeName]; ok {
			return entry.RecipeName, true
		}
		seen[entry.RecipeName] = struct{}{}
	}
	return "", false
}
