// Package admin — handlers.go обрабатывает запросы /api/admin.
// Доступ проверяет middleware.RequireAdmin на уровне группы.
package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"serotonyl.ru/habit-tracker/internal/api/middleware"
	"serotonyl.ru/habit-tracker/internal/api/respond"
)

// Handler обрабатывает админские запросы.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register подключает маршруты к группе /api/admin.
func (h *Handler) Register(admin *gin.RouterGroup) {
	admin.GET("/date-override", h.HandleGetOverride)
	admin.PUT("/date-override", h.HandleSetOverride)
	admin.DELETE("/date-override", h.HandleClearOverride)
	admin.GET("/users", h.HandleUsers)
}

func (h *Handler) HandleGetOverride(c *gin.Context) {
	respond.OK(c, http.StatusOK, gin.H{"override": h.service.Current()})
}

func (h *Handler) HandleSetOverride(c *gin.Context) {
	var in OverrideInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.Fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}

	out, err := h.service.SetOverride(c.Request.Context(), actor(c), in)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"override": out})
}

func (h *Handler) HandleClearOverride(c *gin.Context) {
	out, err := h.service.ClearOverride(c.Request.Context(), actor(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"override": out})
}

func (h *Handler) HandleUsers(c *gin.Context) {
	list, err := h.service.Users(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"users": list})
}

func actor(c *gin.Context) string {
	if p, ok := middleware.CurrentUser(c); ok {
		return p.Username
	}
	return ""
}
