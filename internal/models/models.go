package models

import "fmt"

type DocumentType string

type IngredientCategory string

type AvailabilityStatus string

type Day string

type Meal string

const (
	DocumentIngredients  DocumentType = "ingredients"
	DocumentRecipes      DocumentType = "recipes"
	DocumentShoppingList DocumentType = "shopping-list"
	DocumentWeek         DocumentType = "week"

	CategoryVegetable IngredientCategory = "vegetable"
	CategoryFruit     IngredientCategory = "fruit"
	CategoryMeat      IngredientCategory = "meat"
	CategoryDairy     IngredientCategory = "dairy"
	CategoryGrain     IngredientCategory = "grain"
	CategorySpice     IngredientCategory = "spice"
	CategoryBeverage  IngredientCategory = "beverage"
	CategoryOther     IngredientCategory = "other"

	StatusAvailable   AvailabilityStatus = "available"
	StatusPartial     AvailabilityStatus = "partial"
	StatusUnavailable AvailabilityStatus = "unavailable"

	Monday    Day = "monday"
	Tuesday   Day = "tuesday"
	Wednesday Day = "wednesday"
	Thursday  Day = "thursday"
	Friday    Day = "friday"
	Saturday  Day = "saturday"
	Sunday    Day = "sunday"

	Lunch  Meal = "lunch"
	Dinner Meal = "dinner"

	RecipeSourceLocal = "local"
	RecipeSourceAI    = "ai"
)

// DocumentTypes перечисляет все типы документов пользователя.
var DocumentTypes = []DocumentType{DocumentIngredients, DocumentRecipes, DocumentShoppingList, DocumentWeek}

// Days задает порядок дней недели: понедельник идет первым.
var Days = []Day{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// Meals задает порядок приемов пищи внутри дня: обед перед ужином.
var Meals = []Meal{Lunch, Dinner}

type Ingredient struct {
	ID       string             `json:"id" validate:"required,max=100"`
	Category IngredientCategory `json:"category" validate:"required,oneof=vegetable fruit meat dairy grain spice beverage other"`
	Measure  string             `json:"measure" validate:"max=100"`
}

type Item struct {
	ID      string `json:"id" validate:"required,max=100"`
	Measure string `json:"measure" validate:"max=100"`
}

type Recipe struct {
	Name         string            `json:"name" validate:"required,max=200"`
	Category     string            `json:"category" validate:"max=100"`
	Area         string            `json:"area" validate:"max=100"`
	Ingredients  []Item            `json:"ingredients" validate:"dive"`
	Instructions map[string]string `json:"instructions,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	ImageURL     string            `json:"imageURL,omitempty"`
	VideoURL     string            `json:"videoURL,omitempty"`
	SourceURL    string            `json:"sourceURL,omitempty"`
	Source       string            `json:"source,omitempty"`
	Internal     bool              `json:"internal,omitempty"`
}

type PlannedMeal struct {
	RecipeName string `json:"recipeName" validate:"required,max=200"`
	Completed  bool   `json:"completed,omitempty"`
}

type DayPlan struct {
	Lunch  []PlannedMeal `json:"lunch" validate:"dive"`
	Dinner []PlannedMeal `json:"dinner" validate:"dive"`
}

type WeekPlan struct {
	Monday    DayPlan `json:"monday"`
	Tuesday   DayPlan `json:"tuesday"`
	Wednesday DayPlan `json:"wednesday"`
	Thursday  DayPlan `json:"thursday"`
	Friday    DayPlan `json:"friday"`
	Saturday  DayPlan `json:"saturday"`
	Sunday    DayPlan `json:"sunday"`
}

type RecipeList struct {
	RecipeName string `json:"recipeName" validate:"required,max=200"`
	Items      []Item `json:"items" validate:"dive"`
}

type ShoppingList struct {
	GeneralItems []Item       `json:"generalItems" validate:"dive"`
	RecipeLists  []RecipeList `json:"recipeLists" validate:"dive"`
}

// IsValid сообщает, является ли строка известным типом документа.
func (d DocumentType) IsValid() bool {
	for _, known := range DocumentTypes {
		if d == known {
			return true
		}
	}
	return false
}

// EmptyDocument возвращает пустое значение документа заданного типа.
func EmptyDocument(docType DocumentType) (interface{}, error) {
	switch docType {
	case DocumentIngredients:
		return []Ingredient{}, nil
	case DocumentRecipes:
		return []Recipe{}, nil
	case DocumentShoppingList:
		return NewShoppingList(), nil
	case DocumentWeek:
		return NewWeekPlan(), nil
	default:
		return nil, fmt.Errorf("unknown document type %q", docType)
	}
}

// NewShoppingList создает пустой список покупок с инициализированными срезами.
func NewShoppingList() ShoppingList {
	return ShoppingList{GeneralItems: []Item{}, RecipeLists: []RecipeList{}}
}

// NewWeekPlan создает пустой план на неделю.
func NewWeekPlan() WeekPlan {
	var week WeekPlan
	week.Normalize()
	return week
}

// Slot возвращает указатель на список блюд для дня и приема пищи.
func (w *WeekPlan) Slot(day Day, meal Meal) (*[]PlannedMeal, bool) {
	var plan *DayPlan
	switch day {
	case Monday:
		plan = &w.Monday
	case Tuesday:
		plan = &w.Tuesday
	case Wednesday:
		plan = &w.Wednesday
	case Thursday:
		plan = &w.Thursday
	case Friday:
		plan = &w.Friday
	case Saturday:
		plan = &w.Saturday
	case Sunday:
		plan = &w.Sunday
	default:
		return nil, false
	}

	switch meal {
	case Lunch:
		return &plan.Lunch, true
	case Dinner:
		return &plan.Dinner, true
	default:
		return nil, false
	}
}

// Normalize заменяет nil-срезы пустыми, чтобы JSON всегда содержал массивы.
func (w *WeekPlan) Normalize() {
	for _, day := range Days {
		for _, meal := range Meals {
			slot, _ := w.Slot(day, meal)
			if *slot == nil {
				*slot = []PlannedMeal{}
			}
		}
	}
}

// Clone возвращает глубокую копию плана.
func (w WeekPlan) Clone() WeekPlan {
	var out WeekPlan
	for _, day := range Days {
		for _, meal := range Meals {
			src, _ := w.Slot(day, meal)
			dst, _ := out.Slot(day, meal)
			*dst = append([]PlannedMeal{}, (*src)...)
		}
	}
	return out
}

// Normalize заменяет nil-срезы пустыми.
func (l *ShoppingList) Normalize() {
	if l.GeneralItems == nil {
		l.GeneralItems = []Item{}
	}
	if l.RecipeLists == nil {
		l.RecipeLists = []RecipeList{}
	}
	for i := range l.RecipeLists {
		if l.RecipeLists[i].Items == nil {
			l.RecipeLists[i].Items = []Item{}
		}
	}
}

// Clone возвращает глубокую копию списка покупок.
func (l ShoppingList) Clone() ShoppingList {
	out := ShoppingList{
		GeneralItems: append([]Item{}, l.GeneralItems...),
		RecipeLists:  make([]RecipeList, 0, len(l.RecipeLists)),
	}
	for _, list := range l.RecipeLists {
		out.RecipeLists = append(out.RecipeLists, RecipeList{
			RecipeName: list.RecipeName,
			Items:      append([]Item{}, list.Items...),
		})
	}
	return out
}
