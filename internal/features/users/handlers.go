// Package users — handlers.go обрабатывает запросы регистрации, входа и профиля.
package users

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"serotonyl.ru/habit-tracker/internal/api/middleware"
	"serotonyl.ru/habit-tracker/internal/api/respond"
	"serotonyl.ru/habit-tracker/internal/common"
)

// StateView отдаёт актуальное состояние пользователя для ответа на вход.
type StateView func(ctx context.Context, userID uuid.UUID) (any, error)

// Handler обрабатывает запросы учётных записей.
type Handler struct {
	service   *Service
	stateView StateView
}

// NewHandler создаёт обработчик. stateView может быть nil.
func NewHandler(service *Service, stateView StateView) *Handler {
	return &Handler{service: service, stateView: stateView}
}

// Register подключает маршруты.
// auth — группа /api/auth без авторизации (с rate limit), api — группа /api с RequireAuth.
func (h *Handler) Register(auth, api *gin.RouterGroup) {
	auth.POST("/register", h.HandleRegister)
	auth.POST("/login", h.HandleLogin)

	api.POST("/auth/logout", h.HandleLogout)
	api.GET("/user/me", h.HandleMe)
	api.PUT("/user/telegram", h.HandleTelegram)
}

// HandleRegister — POST /api/auth/register.
func (h *Handler) HandleRegister(c *gin.Context) {
	var in Credentials
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.Fail(c, http.StatusBadRequest, "Некорректные данные")
		return
	}

	u, session, err := h.service.Register(c.Request.Context(), in)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{
		"user":      u,
		"token":     session.Token,
		"expiresAt": session.ExpiresAt,
	})
}

// HandleLogin — POST /api/auth/login. Вместе с токеном отдаёт состояние.
func (h *Handler) HandleLogin(c *gin.Context) {
	var in Credentials
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.Error(c, common.ErrInvalidCredentials)
		return
	}

	u, session, err := h.service.Login(c.Request.Context(), in)
	if err != nil {
		respond.Error(c, err)
		return
	}

	body := gin.H{
		"user":      u,
		"token":     session.Token,
		"expiresAt": session.ExpiresAt,
	}
	if h.stateView != nil {
		state, err := h.stateView(c.Request.Context(), u.ID)
		if err != nil {
			respond.Error(c, err)
			return
		}
		body["state"] = state
	}
	respond.OK(c, http.StatusOK, body)
}

// HandleLogout — POST /api/auth/logout.
func (h *Handler) HandleLogout(c *gin.Context) {
	p, ok := middleware.CurrentUser(c)
	if !ok {
		respond.Error(c, common.ErrUnauthorized)
		return
	}
	if err := h.service.Logout(c.Request.Context(), p.Token); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, nil)
}

// HandleMe — GET /api/user/me.
func (h *Handler) HandleMe(c *gin.Context) {
	p, ok := middleware.CurrentUser(c)
	if !ok {
		respond.Error(c, common.ErrUnauthorized)
		return
	}
	u, err := h.service.Get(c.Request.Context(), p.UserID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"user": u})
}

// HandleTelegram — PUT /api/user/telegram. {"chatId": null} отвязывает.
func (h *Handler) HandleTelegram(c *gin.Context) {
	p, ok := middleware.CurrentUser(c)
	if !ok {
		respond.Error(c, common.ErrUnauthorized)
		return
	}

	var in TelegramLink
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.Fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}

	u, err := h.service.LinkTelegram(c.Request.Context(), p.UserID, in)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"user": u})
}
