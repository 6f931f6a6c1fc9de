package users

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/habit-tracker/internal/api/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newUsersRouter(f *usersFixture) *gin.Engine {
	r := gin.New()
	stateView := func(_ context.Context, userID uuid.UUID) (any, error) {
		return gin.H{"owner": userID.String()}, nil
	}
	h := NewHandler(f.svc, stateView)

	api := r.Group("/api")
	auth := api.Group("/auth")
	protected := api.Group("", middleware.RequireAuth(f.svc.Authenticator()))
	h.Register(auth, protected)
	return r
}

func call(t *testing.T, r http.Handler, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func TestHandler_RegisterLoginLogout(t *testing.T) {
	f := newUsersFixture()
	r := newUsersRouter(f)

	code, body := call(t, r, http.MethodPost, "/api/auth/register", "", map[string]string{"username": "alice", "password": "secret1"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["success"])
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "alice", user["username"])
	assert.NotContains(t, user, "passwordHash")
	assert.NotEmpty(t, body["token"])

	code, body = call(t, r, http.MethodPost, "/api/auth/register", "", map[string]string{"username": "alice", "password": "secret1"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Имя занято", body["message"])

	code, body = call(t, r, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "alice", "password": "secret1"})
	require.Equal(t, http.StatusOK, code, body)
	token := body["token"].(string)
	state := body["state"].(map[string]interface{})
	assert.Equal(t, user["id"], state["owner"])

	code, body = call(t, r, http.MethodGet, "/api/user/me", token, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "alice", body["user"].(map[string]interface{})["username"])

	code, _ = call(t, r, http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, code)

	code, body = call(t, r, http.MethodGet, "/api/user/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, false, body["success"])
}

func TestHandler_LoginFailures(t *testing.T) {
	f := newUsersFixture()
	r := newUsersRouter(f)
	_, _, err := f.svc.Register(context.Background(), Credentials{Username: "bob", Password: "secret1"})
	require.NoError(t, err)

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
	}{
		{"wrong password", map[string]string{"username": "bob", "password": "nope"}, http.StatusUnauthorized},
		{"unknown user", map[string]string{"username": "nobody", "password": "secret1"}, http.StatusUnauthorized},
		{"empty body", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := call(t, r, http.MethodPost, "/api/auth/login", "", tt.body)
			assert.Equal(t, tt.wantStatus, code)
			assert.Equal(t, "Неверные данные", body["message"])
		})
	}
}

func TestHandler_Telegram(t *testing.T) {
	f := newUsersFixture()
	r := newUsersRouter(f)
	_, session, err := f.svc.Register(context.Background(), Credentials{Username: "carol", Password: "secret1"})
	require.NoError(t, err)

	code, body := call(t, r, http.MethodPut, "/api/user/telegram", session.Token, map[string]int64{"chatId": 777})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(777), body["user"].(map[string]interface{})["telegramChatId"])

	code, _ = call(t, r, http.MethodPut, "/api/user/telegram", session.Token, map[string]int64{"chatId": 0})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, r, http.MethodPut, "/api/user/telegram", "", map[string]int64{"chatId": 1})
	assert.Equal(t, http.StatusUnauthorized, code)
}
