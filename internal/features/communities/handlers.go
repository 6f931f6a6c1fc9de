// Package communities — handlers.go обрабатывает HTTP-запросы к сообществам.
package communities

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"serotonyl.ru/habit-tracker/internal/api/middleware"
	"serotonyl.ru/habit-tracker/internal/api/respond"
	"serotonyl.ru/habit-tracker/internal/common"
)

// Handler обрабатывает запросы к сообществам.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик сообществ.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register подключает маршруты.
// public — группа /api без авторизации, api — группа /api с RequireAuth.
func (h *Handler) Register(public, api *gin.RouterGroup) {
	public.GET("/communities", h.HandleList)
	public.GET("/communities/:id/members", h.HandleMembers)

	api.POST("/communities", h.HandleCreate)
	api.POST("/communities/:id/join", h.HandleJoin)
	api.POST("/communities/:id/leave", h.HandleLeave)
	api.DELETE("/communities/:id", h.HandleDelete)
	api.GET("/user/communities", h.HandleMine)
}

// HandleList — GET /api/communities.
func (h *Handler) HandleList(c *gin.Context) {
	list, err := h.service.List(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"communities": nonNil(list)})
}

// HandleMembers — GET /api/communities/:id/members.
func (h *Handler) HandleMembers(c *gin.Context) {
	id, ok := communityID(c)
	if !ok {
		return
	}
	members, err := h.service.Members(c.Request.Context(), id)
	if err != nil {
		respond.Error(c, err)
		return
	}
	if members == nil {
		members = []*Member{}
	}
	respond.OK(c, http.StatusOK, gin.H{"members": members})
}

// HandleCreate — POST /api/communities.
func (h *Handler) HandleCreate(c *gin.Context) {
	p, ok := middleware.CurrentUser(c)
	if !ok {
		respond.Error(c, common.ErrUnauthorized)
		return
	}

	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.Fail(c, http.StatusBadRequest, "Нужно имя и категория")
		return
	}

	community, err := h.service.Create(c.Request.Context(), p.UserID, in)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusCreated, gin.H{"community": community})
}

// HandleJoin — POST /api/communities/:id/join.
func (h *Handler) HandleJoin(c *gin.Context) {
	h.membership(c, h.service.Join)
}

// HandleLeave — POST /api/communities/:id/leave.
func (h *Handler) HandleLeave(c *gin.Context) {
	h.membership(c, h.service.Leave)
}

// HandleDelete — DELETE /api/communities/:id. Только создатель.
func (h *Handler) HandleDelete(c *gin.Context) {
	h.membership(c, h.service.Delete)
}

// HandleMine — GET /api/user/communities.
func (h *Handler) HandleMine(c *gin.Context) {
	p, ok := middleware.CurrentUser(c)
	if !ok {
		respond.Error(c, common.ErrUnauthorized)
		return
	}
	list, err := h.service.ForUser(c.Request.Context(), p.UserID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"communities": nonNil(list)})
}

type memberOp func(ctx context.Context, userID uuid.UUID, id int64) error

func (h *Handler) membership(c *gin.Context, op memberOp) {
	p, ok := middleware.CurrentUser(c)
	if !ok {
		respond.Error(c, common.ErrUnauthorized)
		return
	}
	id, ok := communityID(c)
	if !ok {
		return
	}
	if err := op(c.Request.Context(), p.UserID, id); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{})
}

// communityID разбирает :id. Некорректный id отвечает 404, как несуществующий.
func communityID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respond.Error(c, common.ErrCommunityNotFound)
		return 0, false
	}
	return id, true
}

func nonNil(list []*Community) []*Community {
	if list == nil {
		return []*Community{}
	}
	return list
}
