package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"example.com/meal-planner/internal/models"
)

type normalizer interface {
	Normalize()
}

// Ingredients возвращает инвентарь.
func (s *Store) Ingredients(ctx context.Context) ([]models.Ingredient, error) {
	return read[[]models.Ingredient](ctx, s, models.DocumentIngredients)
}

// Recipes возвращает коллекцию рецептов.
func (s *Store) Recipes(ctx context.Context) ([]models.Recipe, error) {
	return read[[]models.Recipe](ctx, s, models.DocumentRecipes)
}

// ShoppingList возвращает список покупок.
func (s *Store) ShoppingList(ctx context.Context) (models.ShoppingList, error) {
	return read[models.ShoppingList](ctx, s, models.DocumentShoppingList)
}

// Week возвращает план на неделю.
func (s *Store) Week(ctx context.Context) (models.WeekPlan, error) {
	return read[models.WeekPlan](ctx, s, models.DocumentWeek)
}

// UpdateIngredients применяет fn к инвентарю и сохраняет результат.
func (s *Store) UpdateIngredients(ctx context.Context, fn func([]models.Ingredient) ([]models.Ingredient, error)) error {
	return update(ctx, s, models.DocumentIngredients, fn)
}

// UpdateRecipes применяет fn к рецептам и сохраняет результат.
func (s *Store) UpdateRecipes(ctx context.Context, fn func([]models.Recipe) ([]models.Recipe, error)) error {
	return update(ctx, s, models.DocumentRecipes, fn)
}

// UpdateShoppingList применяет fn к списку покупок и сохраняет результат.
func (s *Store) UpdateShoppingList(ctx context.Context, fn func(models.ShoppingList) (models.ShoppingList, error)) error {
	return update(ctx, s, models.DocumentShoppingList, fn)
}

// UpdateWeek применяет fn к плану недели и сохраняет результат.
func (s *Store) UpdateWeek(ctx context.Context, fn func(models.WeekPlan) (models.WeekPlan, error)) error {
	return update(ctx, s, models.DocumentWeek, fn)
}

func read[T any](ctx context.Context, s *Store, docType models.DocumentType) (T, error) {
	var value T
	raw, err := s.Load(ctx, docType)
	if err != nil {
		return value, err
	}
	return decode[T](raw, docType)
}

func update[T any](ctx context.Context, s *Store, docType models.DocumentType, fn func(T) (T, error)) error {
	return s.write(ctx, docType, func(current []byte) ([]byte, error) {
		value, err := decode[T](current, docType)
		if err != nil {
			return nil, err
		}
		next, err := fn(value)
		if err != nil {
			return nil, err
		}
		if n, ok := any(&next).(normalizer); ok {
			n.Normalize()
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return nil, err
		}
		if bytes.Equal(raw, []byte("null")) {
			return emptyRaw(docType), nil
		}
		return raw, nil
	})
}

func decode[T any](raw []byte, docType models.DocumentType) (T, error) {
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, fmt.Errorf("decode %s: %w", docType, err)
	}
	if n, ok := any(&value).(normalizer); ok {
		n.Normalize()
	}
	return value, nil
}
