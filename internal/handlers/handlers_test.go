package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"example.com/meal-planner/internal/ai"
	"example.com/meal-planner/internal/auth"
	"example.com/meal-planner/internal/models"
	"example.com/meal-planner/internal/notifications"
	"example.com/meal-planner/internal/repository"
)

type testValidator struct {
	validator *validator.Validate
}

func (v testValidator) Validate(i interface{}) error {
	return v.validator.Struct(i)
}

type stubAIClient struct {
	probeErr error
	chunks   []string
}

func (s stubAIClient) Probe(ctx context.Context) error {
	return s.probeErr
}

func (s stubAIClient) Generate(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	var builder strings.Builder
	for _, chunk := range s.chunks {
		builder.WriteString(chunk)
		if onChunk != nil {
			onChunk(chunk)
		}
	}
	return builder.String(), nil
}

type testEnv struct {
	echo  *echo.Echo
	hub   *notifications.Hub
	repo  *repository.FileDocumentRepository
	token string
}

func newTestEnv(t *testing.T, aiClient ai.Client) testEnv {
	t.Helper()

	repo, err := repository.NewFileDocumentRepository(t.TempDir())
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}

	manager := auth.NewTokenManager("secret", "meal-planner")
	token, _, err := manager.IssueToken("user_1", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	hub := notifications.NewHub()
	documents := NewDocumentHandler(repo, hub)
	if aiClient == nil {
		aiClient = stubAIClient{}
	}
	aiHandler := NewAIHandler(ai.NewService(aiClient, "ollama", "llama3"))
	notificationHandler := NewNotificationHandler(hub, 50*time.Millisecond)

	e := echo.New()
	e.Validator = testValidator{validator: validator.New()}

	api := e.Group("/api", auth.BearerMiddleware(manager))
	api.GET("/ingredients", documents.GetIngredients)
	api.POST("/ingredients", documents.SaveIngredients)
	api.GET("/recipes", documents.GetRecipes)
	api.POST("/recipes", documents.SaveRecipes)
	api.GET("/shopping-list", documents.GetShoppingList)
	api.POST("/shopping-list", documents.SaveShoppingList)
	api.GET("/week", documents.GetWeek)
	api.POST("/week", documents.SaveWeek)
	api.GET("/sync", documents.Sync)
	api.GET("/ai/status", aiHandler.Status)
	api.POST("/ai/recipes", aiHandler.GenerateRecipe)
	api.POST("/ai/recipes/stream", aiHandler.GenerateRecipeStream)
	e.GET("/api/events", notificationHandler.Stream, auth.BearerMiddleware(manager, auth.WithQueryToken()))

	return testEnv{echo: e, hub: hub, repo: repo, token: token}
}

func (env testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+env.token)

	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

// TestDocumentsRequireToken проверяет отказ без токена.
func TestDocumentsRequireToken(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/week", nil)
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

// TestGetReturnsEmptyDefault проверяет пустые значения для несохраненных документов.
func TestGetReturnsEmptyDefault(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/ingredients", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty array, got %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/week", "")
	var week models.WeekPlan
	if err := json.Unmarshal(rec.Body.Bytes(), &week); err != nil {
		t.Fatalf("decode week: %v", err)
	}
	if week.Sunday.Dinner == nil || len(week.Sunday.Dinner) != 0 {
		t.Fatalf("expected empty sunday dinner, got %v", week.Sunday.Dinner)
	}

	rec = env.do(t, http.MethodGet, "/api/shopping-list", "")
	if !strings.Contains(rec.Body.String(), `"generalItems":[]`) {
		t.Fatalf("expected empty shopping list, got %s", rec.Body.String())
	}
}

// TestSavePublishesEvent проверяет запись, чтение и событие об изменении.
func TestSavePublishesEvent(t *testing.T) {
	env := newTestEnv(t, nil)
	events, unsubscribe := env.hub.Subscribe("user_1")
	defer unsubscribe()
	others, unsubscribeOther := env.hub.Subscribe("user_2")
	defer unsubscribeOther()

	rec := env.do(t, http.MethodPost, "/api/ingredients", `[{"id":"rice","category":"grain","measure":"1kg"}]`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}

	var response SaveResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !response.Success || response.Timestamp == 0 {
		t.Fatalf("unexpected response %+v", response)
	}

	select {
	case event := <-events:
		if event.Type != notifications.EventDataChanged || event.DataType != models.DocumentIngredients {
			t.Fatalf("unexpected event %+v", event)
		}
		if event.Timestamp != response.Timestamp {
			t.Fatalf("expected timestamp %d, got %d", response.Timestamp, event.Timestamp)
		}
	case <-time.After(time.Second):
		t.Fatal("expected data-changed event")
	}

	select {
	case event := <-others:
		t.Fatalf("unexpected event for another user: %+v", event)
	default:
	}

	rec = env.do(t, http.MethodGet, "/api/ingredients", "")
	var stored []models.Ingredient
	if err := json.Unmarshal(rec.Body.Bytes(), &stored); err != nil {
		t.Fatalf("decode ingredients: %v", err)
	}
	if len(stored) != 1 || stored[0].ID != "rice" || stored[0].Measure != "1kg" {
		t.Fatalf("unexpected stored ingredients %v", stored)
	}
}

// TestSaveRejectsMalformed проверяет 400 без побочных эффектов.
func TestSaveRejectsMalformed(t *testing.T) {
	env := newTestEnv(t, nil)
	events, unsubscribe := env.hub.Subscribe("user_1")
	defer unsubscribe()

	cases := []struct {
		path string
		body string
	}{
		{"/api/week", `[]`},
		{"/api/ingredients", `{"id":"rice"}`},
		{"/api/ingredients", `null`},
		{"/api/ingredients", ``},
		{"/api/ingredients", `[{"id":"rice","category":"stone"}]`},
		{"/api/ingredients", `[{"id":"rice","category":"grain"},{"id":"rice","category":"grain"}]`},
		{"/api/recipes", `[{"name":"","ingredients":[]}]`},
		{"/api/recipes", `[{"name":"Paella"},{"name":"Paella"}]`},
		{"/api/shopping-list", `{"generalItems":[{"id":""}]}`},
		{"/api/shopping-list", `{"recipeLists":[{"recipeName":"A"},{"recipeName":"A"}]}`},
		{"/api/week", `{"monday":{"lunch":[{"recipeName":""}]}}`},
		{"/api/week", `{"Mondayy":{"lunch":[]},"foo":42}`},
		{"/api/week", `{"monday":{"brunch":[]}}`},
		{"/api/week", `{} {}`},
		{"/api/shopping-list", `{"items":[1,2,3]}`},
		{"/api/ingredients", `[{"id":"rice","category":"grain","qty":2}]`},
		{"/api/ingredients", `[] []`},
	}

	for _, tc := range cases {
		rec := env.do(t, http.MethodPost, tc.path, tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s %q, got %d", tc.path, tc.body, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"error"`) {
			t.Fatalf("expected error body, got %s", rec.Body.String())
		}
	}

	select {
	case event := <-events:
		t.Fatalf("unexpected event %+v", event)
	default:
	}

	modified, err := env.repo.LastModified(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("last modified: %v", err)
	}
	for docType, value := range modified {
		if value != nil {
			t.Fatalf("expected no stored %s", docType)
		}
	}
}

// TestSaveWrongShapeKeepsStored проверяет, что тело чужой формы не затирает сохраненный документ.
func TestSaveWrongShapeKeepsStored(t *testing.T) {
	env := newTestEnv(t, nil)

	if rec := env.do(t, http.MethodPost, "/api/week", `{"monday":{"lunch":[{"recipeName":"Paella"}]}}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, http.MethodPost, "/api/shopping-list", `{"generalItems":[{"id":"salt","measure":"1"}]}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}

	if rec := env.do(t, http.MethodPost, "/api/week", `{"Mondayy":{"lunch":[]},"foo":42}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong-shape week, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/shopping-list", `{"items":[1,2,3]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong-shape shopping list, got %d", rec.Code)
	}

	var week models.WeekPlan
	if err := json.Unmarshal(env.do(t, http.MethodGet, "/api/week", "").Body.Bytes(), &week); err != nil {
		t.Fatalf("decode week: %v", err)
	}
	if len(week.Monday.Lunch) != 1 || week.Monday.Lunch[0].RecipeName != "Paella" {
		t.Fatalf("expected stored monday lunch, got %v", week.Monday.Lunch)
	}

	var list models.ShoppingList
	if err := json.Unmarshal(env.do(t, http.MethodGet, "/api/shopping-list", "").Body.Bytes(), &list); err != nil {
		t.Fatalf("decode shopping list: %v", err)
	}
	if len(list.GeneralItems) != 1 || list.GeneralItems[0].ID != "salt" {
		t.Fatalf("expected stored general items, got %v", list.GeneralItems)
	}
}

// TestDocumentsIsolatedByToken проверяет, что токен другого пользователя не видит чужие документы.
func TestDocumentsIsolatedByToken(t *testing.T) {
	env := newTestEnv(t, nil)

	if rec := env.do(t, http.MethodPost, "/api/ingredients", `[{"id":"rice","category":"grain","measure":"1kg"}]`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}

	other, _, err := auth.NewTokenManager("secret", "meal-planner").IssueToken("user_2", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	env.token = other

	rec := env.do(t, http.MethodGet, "/api/ingredients", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty inventory for user_2, got %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/sync", "")
	var modified map[string]*int64
	if err := json.Unmarshal(rec.Body.Bytes(), &modified); err != nil {
		t.Fatalf("decode sync: %v", err)
	}
	if modified["ingredients"] != nil {
		t.Fatalf("expected no ingredients timestamp for user_2, got %d", *modified["ingredients"])
	}
}

// TestSaveTimestampsIncrease проверяет, что подряд идущие записи получают разные возрастающие метки.
func TestSaveTimestampsIncrease(t *testing.T) {
	env := newTestEnv(t, nil)

	var previous int64
	for i := 0; i < 20; i++ {
		rec := env.do(t, http.MethodPost, "/api/ingredients", `[]`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
		}
		var response SaveResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if response.Timestamp <= previous {
			t.Fatalf("write %d: timestamp %d not after %d", i, response.Timestamp, previous)
		}
		previous = response.Timestamp
	}
}

// TestSaveWeekNormalizes проверяет, что частичный план сохраняется со всеми слотами.
func TestSaveWeekNormalizes(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/week", `{"monday":{"lunch":[{"recipeName":"Paella","completed":false}]}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/week", "")
	var week models.WeekPlan
	if err := json.Unmarshal(rec.Body.Bytes(), &week); err != nil {
		t.Fatalf("decode week: %v", err)
	}
	if len(week.Monday.Lunch) != 1 || week.Monday.Lunch[0].RecipeName != "Paella" {
		t.Fatalf("unexpected monday lunch %v", week.Monday.Lunch)
	}
	if week.Friday.Dinner == nil {
		t.Fatal("expected normalized friday dinner")
	}
}

// TestSync проверяет метки времени и null для отсутствующих документов.
func TestSync(t *testing.T) {
	env := newTestEnv(t, nil)

	if rec := env.do(t, http.MethodPost, "/api/recipes", `[{"name":"Paella","ingredients":[{"id":"rice","measure":"300g"}]}]`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}

	rec := env.do(t, http.MethodGet, "/api/sync", "")
	var response map[string]*int64
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode sync: %v", err)
	}
	if len(response) != len(models.DocumentTypes) {
		t.Fatalf("expected %d entries, got %v", len(models.DocumentTypes), response)
	}
	if response["recipes"] == nil || *response["recipes"] == 0 {
		t.Fatal("expected recipes timestamp")
	}
	if _, ok := response["week"]; !ok || response["week"] != nil {
		t.Fatalf("expected explicit null for week, got %v", response["week"])
	}
}

// TestEventStream проверяет SSE-поток: connected, затем data-changed после записи.
func TestEventStream(t *testing.T) {
	env := newTestEnv(t, nil)
	server := httptest.NewServer(env.echo)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/events?token="+env.token, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	reader := bufio.NewReader(resp.Body)
	readEvent := func() notifications.Event {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			if strings.HasPrefix(line, "data: ") {
				var event notifications.Event
				if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
					t.Fatalf("decode event: %v", err)
				}
				return event
			}
		}
	}

	if event := readEvent(); event.Type != notifications.EventConnected {
		t.Fatalf("expected connected event, got %+v", event)
	}

	if rec := env.do(t, http.MethodPost, "/api/shopping-list", `{"generalItems":[{"id":"milk","measure":"1l"}],"recipeLists":[]}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	event := readEvent()
	if event.Type != notifications.EventDataChanged || event.DataType != models.DocumentShoppingList {
		t.Fatalf("unexpected event %+v", event)
	}
}

// TestEventStreamRequiresToken проверяет отказ подключения без токена.
func TestEventStreamRequiresToken(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/events?token=bogus", nil)
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if env.hub.Connections("user_1") != 0 {
		t.Fatal("expected no subscription")
	}
}

// TestAIRecipeStream проверяет NDJSON-поток фрагментов и итоговый рецепт.
func TestAIRecipeStream(t *testing.T) {
	env := newTestEnv(t, stubAIClient{chunks: []string{"Name: Toast\n", "Ingredients:\n", "- bread: 2 slices\n"}})

	rec := env.do(t, http.MethodPost, "/api/ai/recipes/stream", `{"instruction":"breakfast"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != contentTypeNDJSON {
		t.Fatalf("expected ndjson content type, got %s", got)
	}

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 3 chunks and a result, got %v", lines)
	}

	var last streamLine
	if err := json.Unmarshal([]byte(lines[3]), &last); err != nil {
		t.Fatalf("decode last line: %v", err)
	}
	if last.Recipe == nil || last.Recipe.Name != "Toast" || last.Recipe.Source != models.RecipeSourceAI {
		t.Fatalf("unexpected recipe line %+v", last)
	}
}

// TestAIRecipeUnavailable проверяет 503, если сервис не отвечает.
func TestAIRecipeUnavailable(t *testing.T) {
	env := newTestEnv(t, stubAIClient{probeErr: ai.ErrUnavailable})

	rec := env.do(t, http.MethodPost, "/api/ai/recipes", `{"instruction":"dinner"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/ai/status", "")
	var status ai.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Available {
		t.Fatal("expected unavailable status")
	}

	rec = env.do(t, http.MethodPost, "/api/ai/recipes", `{"instruction":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty instruction, got %d", rec.Code)
	}
}
