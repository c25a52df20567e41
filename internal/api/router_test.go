package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pantry-chef/internal/api/handlers/health"
	"pantry-chef/internal/api/middleware"
	"pantry-chef/internal/core/ai/cache"
	"pantry-chef/internal/core/ai/image"
	"pantry-chef/internal/core/ai/queue"
	"pantry-chef/internal/core/pantry"
	"pantry-chef/internal/core/suggestion"
	"pantry-chef/internal/infrastructure/config"
	"pantry-chef/internal/infrastructure/database"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type stubGenerator struct {
	detailErr error
}

func (g *stubGenerator) Generate(ctx context.Context, ingredients []string) ([]cache.Dish, error) {
	return []cache.Dish{
		{"name": "Omelete", "short_description": "with " + strings.Join(ingredients, ", ")},
		{"name": "Tomato Onion Bake"},
	}, nil
}

func (g *stubGenerator) Model() string { return "stub-model" }

func (g *stubGenerator) Detail(ctx context.Context, name string) (map[string]any, error) {
	if g.detailErr != nil {
		return nil, g.detailErr
	}
	return map[string]any{"name": name, "instructions": []any{map[string]any{"step": "Whisk"}}}, nil
}

type testServer struct {
	router *gin.Engine
	gen    *stubGenerator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.Default()
	cfg.Auth.JWTSecret = testSecret
	cfg.RateLimit.Enabled = false

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", DSN: dsn}, false)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	_, err = database.Seed(db)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	runner := queue.NewRunner(cfg.Queue)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = runner.Close(ctx)
		_ = sqlDB.Close()
	})

	gen := &stubGenerator{}
	pantrySvc := pantry.NewService(db)
	store := cache.NewSQLStore(db, time.Now)
	resolver := image.NewResolver(image.DefaultSeeds, cfg.Image.BasePath, cfg.Image.DefaultImage, cfg.Image.FuzzyCutoff)

	router := SetupRouter(cfg, Services{
		Suggestion: suggestion.NewService(cfg.Suggestion, pantrySvc, store, runner, gen, resolver),
		Pantry:     pantrySvc,
		Queue:      runner,
		Model:      gen,
		Readiness:  map[string]health.Pinger{"database": sqlDB},
		Dedup:      middleware.NewDeduplicator(time.Second),
	})
	return &testServer{router: router, gen: gen}
}

func (s *testServer) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != "" {
		token, err := middleware.IssueToken(testSecret, "pantry-chef", user, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthEndpointsNeedNoAuth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "queue")
	assert.Equal(t, "stub-model", body["model"])

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/live", "", "").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/ready", "", "").Code)

	rec = s.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_request_latency_seconds")
}

func TestAPIRequiresBearerToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/ai/suggestions", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ai/suggestions", nil)
	bad, err := middleware.IssueToken("other-secret", "pantry-chef", "alice", time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+bad)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSuggestionsEmptyPantry(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/ai/suggestions", "alice", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Your pantry is empty! Add ingredients first.", decode(t, rec)["error"])
}

func TestSuggestionFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/pantry/ingredients", "alice", `{"name":"Tomato"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPost, "/api/v1/pantry/ingredients", "alice", `{"name":"Onion"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/ai/suggestions", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "processing", body["status"])
	taskID, _ := body["task_id"].(string)
	require.NotEmpty(t, taskID)

	// 其他使用者看不到這個任務
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/ai/task-status/"+taskID, "bob", "").Code)

	var done map[string]any
	require.Eventually(t, func() bool {
		rec := s.do(t, http.MethodGet, "/api/v1/ai/task-status/"+taskID, "alice", "")
		if rec.Code != http.StatusOK {
			return false
		}
		done = decode(t, rec)
		return done["status"] == "done"
	}, 3*time.Second, 10*time.Millisecond)

	recipes, ok := done["recipes"].([]any)
	require.True(t, ok)
	require.Len(t, recipes, 2)
	first := recipes[0].(map[string]any)
	assert.Equal(t, "/media/recipes/Omelette.jpg", first["image"])
	assert.Equal(t, "with Onion, Tomato", first["short_description"])
	assert.Equal(t, "/media/recipes/default.png", recipes[1].(map[string]any)["image"])

	rec = s.do(t, http.MethodGet, "/api/v1/ai/suggestions", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.NotContains(t, body, "status")
	assert.Len(t, body["recipes"], 2)
}

func TestTaskStatusUnknownTask(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/ai/task-status/nope", "alice", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode(t, rec), "error")
}

func TestRecipeDetail(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/ai/recipe/Pancakes", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Pancakes", body["name"])
	assert.Equal(t, "/media/recipes/Pancakes.jpg", body["image"])

	s.gen.detailErr = errors.New("upstream timed out")
	rec = s.do(t, http.MethodGet, "/api/v1/ai/recipe/Pancakes", "alice", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "upstream timed out", decode(t, rec)["error"])
}

func TestPantryEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/pantry", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Empty(t, body["ingredients"])
	assert.Len(t, body["available"], 20)

	rec = s.do(t, http.MethodPost, "/api/v1/pantry/ingredients", "alice", `{"name":"Eggs"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	// 時間窗內重複送出
	rec = s.do(t, http.MethodPost, "/api/v1/pantry/ingredients", "alice", `{"name":"Eggs"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/pantry", "alice", "")
	body = decode(t, rec)
	assert.Len(t, body["ingredients"], 1)
	assert.Len(t, body["available"], 19)

	rec = s.do(t, http.MethodPost, "/api/v1/pantry/ingredients", "alice", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/pantry/ingredients/Garlic", "alice", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/pantry/ingredients/Eggs", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["ingredients"])
}
