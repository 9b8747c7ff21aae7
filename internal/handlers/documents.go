package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"example.com/meal-planner/internal/auth"
	"example.com/meal-planner/internal/models"
	"example.com/meal-planner/internal/notifications"
	"example.com/meal-planner/internal/planner"
	"example.com/meal-planner/internal/repository"
)

const maxDocumentSize = 4 << 20

var errEmptyDocument = errors.New("document body is required")

type DocumentHandler struct {
	Documents repository.DocumentRepository
	Notifier  notifications.Publisher
}

// NewDocumentHandler создает обработчик документов пользователя.
func NewDocumentHandler(documents repository.DocumentRepository, notifier notifications.Publisher) *DocumentHandler {
	return &DocumentHandler{Documents: documents, Notifier: notifier}
}

type SaveResponse struct {
	Success   bool  `json:"success"`
	Timestamp int64 `json:"timestamp"`
}

type ingredientsDocument struct {
	Items []models.Ingredient `json:"items" validate:"dive"`
}

type recipesDocument struct {
	Items []models.Recipe `json:"items" validate:"dive"`
}

// GetIngredients возвращает инвентарь ингредиентов.
func (h *DocumentHandler) GetIngredients(c echo.Context) error {
	return h.get(c, models.DocumentIngredients)
}

// SaveIngredients заменяет инвентарь целиком.
func (h *DocumentHandler) SaveIngredients(c echo.Context) error {
	return save(h, c, models.DocumentIngredients, func(items *[]models.Ingredient) error {
		if *items == nil {
			return errEmptyDocument
		}
		if err := c.Validate(&ingredientsDocument{Items: *items}); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		if id, ok := planner.DuplicateIngredientID(*items); ok {
			return fmt.Errorf("duplicate ingredient %q", id)
		}
		return nil
	})
}

// GetRecipes возвращает коллекцию рецептов.
func (h *DocumentHandler) GetRecipes(c echo.Context) error {
	return h.get(c, models.DocumentRecipes)
}

// SaveRecipes заменяет коллекцию рецептов целиком.
func (h *DocumentHandler) SaveRecipes(c echo.Context) error {
	return save(h, c, models.DocumentRecipes, func(items *[]models.Recipe) error {
		if *items == nil {
			return errEmptyDocument
		}
		if err := c.Validate(&recipesDocument{Items: *items}); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		if name, ok := planner.DuplicateRecipeName(*items); ok {
			return fmt.Errorf("duplicate recipe %q", name)
		}
		return nil
	})
}

// GetShoppingList возвращает список покупок.
func (h *DocumentHandler) GetShoppingList(c echo.Context) error {
	return h.get(c, models.DocumentShoppingList)
}

// SaveShoppingList заменяет список покупок целиком.
func (h *DocumentHandler) SaveShoppingList(c echo.Context) error {
	return save(h, c, models.DocumentShoppingList, func(list *models.ShoppingList) error {
		if err := c.Validate(list); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		if name, ok := planner.DuplicateRecipeList(*list); ok {
			return fmt.Errorf("duplicate recipe list %q", name)
		}
		list.Normalize()
		return nil
	})
}

// GetWeek возвращает план на неделю.
func (h *DocumentHandler) GetWeek(c echo.Context) error {
	return h.get(c, models.DocumentWeek)
}

// SaveWeek заменяет план на неделю целиком.
func (h *DocumentHandler) SaveWeek(c echo.Context) error {
	return save(h, c, models.DocumentWeek, func(week *models.WeekPlan) error {
		if err := c.Validate(week); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		week.Normalize()
		return nil
	})
}

func (h *DocumentHandler) get(c echo.Context, docType models.DocumentType) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	payload, err := h.Documents.Get(c.Request().Context(), userID, docType)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			empty, emptyErr := models.EmptyDocument(docType)
			if emptyErr != nil {
				return serverError(c)
			}
			return c.JSON(http.StatusOK, empty)
		}
		if errors.Is(err, repository.ErrInvalid) {
			return badRequest(c, "invalid user")
		}
		slog.Error("read document failed", slog.String("user_id", userID), slog.String("doc_type", string(docType)), slog.String("error", err.Error()))
		return serverError(c)
	}

	return c.JSONBlob(http.StatusOK, payload)
}

// save декодирует тело в типизированный документ, проверяет его и только затем пишет.
func save[T any](h *DocumentHandler, c echo.Context, docType models.DocumentType, check func(*T) error) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var document T
	if err := decodeDocument(c, &document); err != nil {
		return badRequest(c, err.Error())
	}
	if err := check(&document); err != nil {
		return badRequest(c, err.Error())
	}

	payload, err := json.Marshal(document)
	if err != nil {
		return serverError(c)
	}

	modifiedAt, err := h.Documents.Put(c.Request().Context(), userID, docType, payload)
	if err != nil {
		if errors.Is(err, repository.ErrInvalid) {
			return badRequest(c, "invalid user")
		}
		slog.Error("write document failed", slog.String("user_id", userID), slog.String("doc_type", string(docType)), slog.String("error", err.Error()))
		return serverError(c)
	}

	if h.Notifier != nil {
		h.Notifier.Publish(userID, notifications.DataChanged(docType, modifiedAt))
	}

	return c.JSON(http.StatusOK, SaveResponse{Success: true, Timestamp: modifiedAt.UnixMilli()})
}

// decodeDocument читает тело целиком и декодирует его строго: неизвестные поля и данные после документа отклоняются.
func decodeDocument(c echo.Context, target interface{}) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxDocumentSize+1))
	if err != nil {
		return errors.New("failed to read body")
	}
	if len(body) > maxDocumentSize {
		return errors.New("document is too large")
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return errEmptyDocument
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return errors.New("invalid payload: trailing data after document")
	}

	return nil
}
