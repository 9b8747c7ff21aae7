package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"example.com/meal-planner/internal/models"
	"example.com/meal-planner/internal/planner"
)

var (
	ErrRecipeNotFound = errors.New("recipe not found")
	ErrItemNotFound   = errors.New("shopping item not found")
)

// Planner согласует документы между собой: неделю, список покупок, инвентарь и рецепты.
type Planner struct {
	store *Store
}

// NewPlanner создает планировщик поверх хранилища.
func NewPlanner(store *Store) *Planner {
	return &Planner{store: store}
}

// Availability проверяет наличие ингредиентов рецепта в инвентаре.
func (p *Planner) Availability(ctx context.Context, recipeName string) (planner.Availability, error) {
	recipe, inventory, err := p.recipeAndInventory(ctx, recipeName)
	if err != nil {
		return planner.Availability{}, err
	}
	return planner.CheckAvailability(recipe, inventory), nil
}

// ConfirmRecipe планирует рецепт в слот недели и заносит недостающие ингредиенты в список покупок.
// Запись для рецепта создается, даже если докупать нечего.
func (p *Planner) ConfirmRecipe(ctx context.Context, recipeName string, day models.Day, meal models.Meal) (planner.Availability, error) {
	recipe, inventory, err := p.recipeAndInventory(ctx, recipeName)
	if err != nil {
		return planner.Availability{}, err
	}

	if _, ok := (&models.WeekPlan{}).Slot(day, meal); !ok {
		return planner.Availability{}, planner.ErrInvalidSlot
	}

	availability := planner.CheckAvailability(recipe, inventory)

	if err := p.store.UpdateShoppingList(ctx, func(list models.ShoppingList) (models.ShoppingList, error) {
		return planner.MergeRecipeIntoShoppingList(list, recipe.Name, availability.MissingItems), nil
	}); err != nil {
		return availability, err
	}

	if err := p.store.UpdateWeek(ctx, func(week models.WeekPlan) (models.WeekPlan, error) {
		return planner.AddInstance(week, day, meal, recipe.Name)
	}); err != nil {
		return availability, err
	}

	return availability, nil
}

// CompleteMeal отмечает приготовленным ближайший экземпляр рецепта.
// Когда незавершенных экземпляров не остается, запись рецепта уходит из списка покупок.
// Возвращает false, если отмечать было нечего.
func (p *Planner) CompleteMeal(ctx context.Context, recipeName string) (bool, error) {
	var marked, remaining bool
	err := p.store.UpdateWeek(ctx, func(week models.WeekPlan) (models.WeekPlan, error) {
		next, ok := planner.MarkOneInstanceCompleted(week, recipeName)
		if !ok {
			return week, ErrUnchanged
		}
		marked = true
		remaining = planner.HasIncompleteInstance(next, recipeName)
		return next, nil
	})
	if err != nil || !marked {
		return marked, err
	}

	if !remaining {
		if err := p.removeRecipeList(ctx, recipeName); err != nil {
			return true, err
		}
	}

	return true, nil
}

// RemoveMeal удаляет экземпляр из слота. После удаления последнего экземпляра
// запись рецепта удаляется из списка покупок.
func (p *Planner) RemoveMeal(ctx context.Context, day models.Day, meal models.Meal, index int) error {
	var name string
	var stillPlanned bool
	err := p.store.UpdateWeek(ctx, func(week models.WeekPlan) (models.WeekPlan, error) {
		next, removed, err := planner.RemoveInstance(week, day, meal, index)
		if err != nil {
			return week, err
		}
		name = removed
		stillPlanned = planner.HasInstance(next, removed)
		return next, nil
	})
	if err != nil {
		return err
	}

	if !stillPlanned {
		return p.removeRecipeList(ctx, name)
	}
	return nil
}

// RemoveFromShoppingList удаляет запись рецепта из списка и снимает рецепт со всех слотов недели.
func (p *Planner) RemoveFromShoppingList(ctx context.Context, recipeName string) error {
	if err := p.removeRecipeList(ctx, recipeName); err != nil {
		return err
	}

	return p.store.UpdateWeek(ctx, func(week models.WeekPlan) (models.WeekPlan, error) {
		if !planner.HasInstance(week, recipeName) {
			return week, ErrUnchanged
		}
		return planner.DetachRecipe(week, recipeName), nil
	})
}

// AddGeneralItem добавляет позицию без рецепта. Возвращает false, если она уже была в списке.
func (p *Planner) AddGeneralItem(ctx context.Context, item models.Item) (bool, error) {
	item.ID = strings.TrimSpace(item.ID)
	if item.ID == "" {
		return false, errors.New("item id is required")
	}

	added := false
	err := p.store.UpdateShoppingList(ctx, func(list models.ShoppingList) (models.ShoppingList, error) {
		next, ok := planner.AddGeneralItem(list, item)
		if !ok {
			return list, ErrUnchanged
		}
		added = true
		return next, nil
	})
	return added, err
}

// SaveIngredient обновляет ингредиент на месте или добавляет новый.
func (p *Planner) SaveIngredient(ctx context.Context, ingredient models.Ingredient) error {
	ingredient.ID = strings.TrimSpace(ingredient.ID)
	if ingredient.ID == "" {
		return errors.New("ingredient id is required")
	}
	if ingredient.Category == "" {
		ingredient.Category = models.CategoryOther
	}

	return p.store.UpdateIngredients(ctx, func(inventory []models.Ingredient) ([]models.Ingredient, error) {
		return planner.UpsertIngredient(inventory, ingredient), nil
	})
}

// DeleteIngredient удаляет ингредиент из инвентаря.
func (p *Planner) DeleteIngredient(ctx context.Context, id string) error {
	return p.store.UpdateIngredients(ctx, func(inventory []models.Ingredient) ([]models.Ingredient, error) {
		if _, ok := planner.FindIngredient(inventory, id); !ok {
			return inventory, ErrUnchanged
		}
		return planner.RemoveIngredient(inventory, id), nil
	})
}

// SaveRecipe обновляет рецепт на месте или добавляет новый.
func (p *Planner) SaveRecipe(ctx context.Context, recipe models.Recipe) error {
	recipe.Name = strings.TrimSpace(recipe.Name)
	if recipe.Name == "" {
		return errors.New("recipe name is required")
	}
	if recipe.Source == "" {
		recipe.Source = models.RecipeSourceLocal
	}
	if recipe.Ingredients == nil {
		recipe.Ingredients = []models.Item{}
	}

	return p.store.UpdateRecipes(ctx, func(recipes []models.Recipe) ([]models.Recipe, error) {
		return planner.UpsertRecipe(recipes, recipe), nil
	})
}

// DeleteRecipe удаляет рецепт вместе с его записью в списке покупок и экземплярами в неделе.
func (p *Planner) DeleteRecipe(ctx context.Context, recipeName string) error {
	err := p.store.UpdateRecipes(ctx, func(recipes []models.Recipe) ([]models.Recipe, error) {
		if _, ok := planner.FindRecipe(recipes, recipeName); !ok {
			return recipes, ErrUnchanged
		}
		return planner.RemoveRecipe(recipes, recipeName), nil
	})
	if err != nil {
		return err
	}

	return p.RemoveFromShoppingList(ctx, recipeName)
}

// PurchaseItem переносит купленную позицию из списка покупок в инвентарь.
// Пустое recipeName означает общую позицию.
func (p *Planner) PurchaseItem(ctx context.Context, recipeName, id string) error {
	list, err := p.store.ShoppingList(ctx)
	if err != nil {
		return err
	}

	item, ok := planner.FindShoppingItem(list, recipeName, id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}

	measure := item.Measure
	if !planner.IsHeld(measure) {
		measure = "1"
	}

	if err := p.store.UpdateIngredients(ctx, func(inventory []models.Ingredient) ([]models.Ingredient, error) {
		ingredient, found := planner.FindIngredient(inventory, item.ID)
		if !found {
			ingredient = models.Ingredient{ID: item.ID, Category: models.CategoryOther}
		}
		ingredient.Measure = measure
		return planner.UpsertIngredient(inventory, ingredient), nil
	}); err != nil {
		return err
	}

	return p.store.UpdateShoppingList(ctx, func(list models.ShoppingList) (models.ShoppingList, error) {
		return planner.RemoveShoppingItem(list, recipeName, id), nil
	})
}

// ClearShoppingList очищает список покупок.
func (p *Planner) ClearShoppingList(ctx context.Context) error {
	return p.store.UpdateShoppingList(ctx, func(models.ShoppingList) (models.ShoppingList, error) {
		return models.NewShoppingList(), nil
	})
}

// ClearWeek очищает план недели.
func (p *Planner) ClearWeek(ctx context.Context) error {
	return p.store.UpdateWeek(ctx, func(models.WeekPlan) (models.WeekPlan, error) {
		return models.NewWeekPlan(), nil
	})
}

func (p *Planner) removeRecipeList(ctx context.Context, recipeName string) error {
	return p.store.UpdateShoppingList(ctx, func(list models.ShoppingList) (models.ShoppingList, error) {
		if !planner.HasRecipeList(list, recipeName) {
			return list, ErrUnchanged
		}
		return planner.RemoveRecipeFromShoppingList(list, recipeName), nil
	})
}

func (p *Planner) recipeAndInventory(ctx context.Context, recipeName string) (models.Recipe, []models.Ingredient, error) {
	recipes, err := p.store.Recipes(ctx)
	if err != nil {
		return models.Recipe{}, nil, err
	}

	recipe, ok := planner.FindRecipe(recipes, recipeName)
	if !ok {
		return models.Recipe{}, nil, fmt.Errorf("%w: %s", ErrRecipeNotFound, recipeName)
	}

	inventory, err := p.store.Ingredients(ctx)
	if err != nil {
		return models.Recipe{}, nil, err
	}

	return recipe, inventory, nil
}
