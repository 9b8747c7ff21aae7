package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"example.com/meal-planner/internal/models"
)

const requestTimeout = 15 * time.Second

// Backend хранит документы пользователя на сервере.
type Backend interface {
	Fetch(ctx context.Context, docType models.DocumentType) ([]byte, error)
	Persist(ctx context.Context, docType models.DocumentType, payload []byte) (int64, error)
	Sync(ctx context.Context) (map[models.DocumentType]*int64, error)
}

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}

// IsUnauthorized сообщает, что сервер отклонил токен.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// APIClient обращается к REST API планировщика с bearer-токеном.
type APIClient struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

type saveResponse struct {
	Success   bool  `json:"success"`
	Timestamp int64 `json:"timestamp"`
}

// NewAPIClient создает клиент REST API.
func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		token:      token,
	}
}

// SetToken меняет токен для следующих запросов.
func (c *APIClient) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token возвращает текущий токен.
func (c *APIClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// BaseURL возвращает адрес сервера.
func (c *APIClient) BaseURL() string {
	return c.baseURL
}

// Fetch загружает документ или его пустое значение.
func (c *APIClient) Fetch(ctx context.Context, docType models.DocumentType) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/api/"+string(docType), nil)
}

// Persist заменяет документ на сервере и возвращает время изменения в миллисекундах.
func (c *APIClient) Persist(ctx context.Context, docType models.DocumentType, payload []byte) (int64, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/"+string(docType), payload)
	if err != nil {
		return 0, err
	}

	var response saveResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return 0, fmt.Errorf("decode save response: %w", err)
	}
	if !response.Success {
		return 0, errors.New("save was not acknowledged")
	}

	return response.Timestamp, nil
}

// Sync возвращает метки изменения документов.
func (c *APIClient) Sync(ctx context.Context) (map[models.DocumentType]*int64, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/sync", nil)
	if err != nil {
		return nil, err
	}

	var raw map[string]*int64
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode sync response: %w", err)
	}

	out := make(map[models.DocumentType]*int64, len(raw))
	for key, value := range raw {
		docType := models.DocumentType(key)
		if docType.IsValid() {
			out[docType] = value
		}
	}

	return out, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: response.StatusCode}
		var parsed struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(responseBody, &parsed); err == nil {
			apiErr.Message = parsed.Error
		}
		return nil, apiErr
	}

	return responseBody, nil
}

// UserIDFromToken читает subject токена без проверки подписи: клиенту нужен только ключ кэша,
// подпись проверяет сервер.
func UserIDFromToken(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}
