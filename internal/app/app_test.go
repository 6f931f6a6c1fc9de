package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/habit-tracker/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func memoryConfig() *config.Config {
	return &config.Config{
		HTTPAddr:                  ":0",
		CORSOrigins:               []string{"*"},
		StorageDriver:             config.StorageMemory,
		AppTimezone:               "UTC",
		SessionTTL:                time.Hour,
		AdminUsername:             "admin",
		XPPerCompletion:           15,
		RateLimitRequests:         100,
		RateLimitWindow:           time.Minute,
		ReminderStreakThreshold:   7,
		ReminderHour:              18,
		FeatureCommunitiesEnabled: true,
		MetricsEnabled:            true,
	}
}

type client struct {
	t *testing.T
	h http.Handler
}

func (c client) do(method, path, token string, body interface{}) (int, map[string]interface{}) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	c.h.ServeHTTP(w, req)

	var out map[string]interface{}
	require.NoError(c.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func (c client) register(name string) string {
	c.t.Helper()
	code, body := c.do(http.MethodPost, "/api/auth/register", "", map[string]string{"username": name, "password": "secret1"})
	require.Equal(c.t, http.StatusOK, code, body)
	return body["token"].(string)
}

func newMemoryApp(t *testing.T) (*App, client) {
	t.Helper()
	a, err := New(context.Background(), memoryConfig())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	assert.Nil(t, a.DB)
	assert.Nil(t, a.Telegram, "без токена бот не создаётся")
	return a, client{t: t, h: a.Router}
}

func TestApp_HabitFlowWithAdminDate(t *testing.T) {
	_, c := newMemoryApp(t)

	adminToken := c.register("admin")
	alice := c.register("alice")

	code, _ := c.do(http.MethodPut, "/api/admin/date-override", alice, map[string]string{"date": "2024-03-01"})
	assert.Equal(t, http.StatusForbidden, code)

	code, body := c.do(http.MethodPut, "/api/admin/date-override", adminToken, map[string]string{"date": "2024-03-01"})
	require.Equal(t, http.StatusOK, code, body)

	code, body = c.do(http.MethodPost, "/api/habits", alice, map[string]string{"name": "Бег", "icon": "run"})
	require.Equal(t, http.StatusCreated, code, body)
	habitID := body["habit"].(map[string]interface{})["id"].(string)

	code, body = c.do(http.MethodPost, "/api/habits/"+habitID+"/complete", alice, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(15), body["state"].(map[string]interface{})["xp"])

	code, _ = c.do(http.MethodPut, "/api/admin/date-override", adminToken, map[string]string{"date": "2024-03-02"})
	require.Equal(t, http.StatusOK, code)

	code, body = c.do(http.MethodPost, "/api/habits/"+habitID+"/complete", alice, nil)
	require.Equal(t, http.StatusOK, code, body)
	state := body["state"].(map[string]interface{})
	assert.Equal(t, float64(30), state["xp"])
	habit := state["habits"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, float64(2), habit["streak"])
	assert.Equal(t, "2024-03-02", body["today"])

	code, body = c.do(http.MethodGet, "/api/user/me", alice, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(30), body["user"].(map[string]interface{})["experience"], "опыт зеркалируется в учётную запись")

	code, body = c.do(http.MethodGet, "/api/admin/users", adminToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["users"], 2)

	code, _ = c.do(http.MethodDelete, "/api/admin/date-override", adminToken, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = c.do(http.MethodPost, "/api/auth/logout", alice, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = c.do(http.MethodGet, "/api/user/state", alice, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestApp_Communities(t *testing.T) {
	_, c := newMemoryApp(t)
	owner := c.register("owner")
	guest := c.register("guest")

	code, body := c.do(http.MethodPost, "/api/communities", owner, map[string]string{"name": "Бегуны", "category": "спорт"})
	require.Equal(t, http.StatusCreated, code, body)

	code, _ = c.do(http.MethodPost, "/api/communities/1/join", guest, nil)
	require.Equal(t, http.StatusOK, code)

	code, body = c.do(http.MethodGet, "/api/communities/1/members", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["members"], 1)

	code, _ = c.do(http.MethodDelete, "/api/communities/1", guest, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestApp_CommunitiesDisabled(t *testing.T) {
	cfg := memoryConfig()
	cfg.FeatureCommunitiesEnabled = false
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	c := client{t: t, h: a.Router}
	code, _ := c.do(http.MethodGet, "/api/communities", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestApp_ServiceRoutes(t *testing.T) {
	a, c := newMemoryApp(t)

	code, body := c.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "habit_tracker_http_requests_total")

	code, body = c.do(http.MethodGet, "/api/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, false, body["success"])
}

func TestApp_InvalidThresholds(t *testing.T) {
	cfg := memoryConfig()
	cfg.LevelThresholds = []int64{5, 10}
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
