// Package habits — handlers.go обрабатывает HTTP-запросы к привычкам и состоянию.
package habits

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"

	"serotonyl.ru/habit-tracker/internal/api/middleware"
	"serotonyl.ru/habit-tracker/internal/api/respond"
	"serotonyl.ru/habit-tracker/internal/common"
)

// Handler обрабатывает запросы к привычкам.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик привычек.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register подключает маршруты к группе /api, на которой уже стоит RequireAuth.
func (h *Handler) Register(api *gin.RouterGroup) {
	user := api.Group("/user")
	user.GET("/state", h.HandleState)
	user.PATCH("/settings", h.HandleSettings)
	user.GET("/xp-history", h.HandleXPHistory)

	habits := api.Group("/habits")
	habits.POST("", h.HandleAdd)
	habits.PATCH("/:id", h.HandleEdit)
	habits.DELETE("/:id", h.HandleDelete)
	habits.POST("/:id/complete", h.HandleComplete)
	habits.POST("/:id/toggle", h.HandleToggle)
	habits.POST("/:id/archive", h.HandleArchive)
}

type toggleRequest struct {
	Date string `json:"date"`
}

type archiveRequest struct {
	Archived *bool `json:"archived"`
}

// HandleState — GET /api/user/state.
func (h *Handler) HandleState(c *gin.Context) {
	p, ok := middleware.CurrentUser(c)
	if !ok {
		respond.Error(c, common.ErrUnauthorized)
		return
	}

	view, err := h.service.View(c.Request.Context(), p.UserID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, viewBody(view))
}

// HandleSettings — PATCH /api/user/settings.
func (h *Handler) HandleSettings(c *gin.Context) {
	var in Settings
	if !bind(c, &in) {
		return
	}
	h.run(c, http.StatusOK, func(p *middleware.Principal) (*Result, error) {
		return h.service.UpdateSettings(c.Request.Context(), p.UserID, in)
	})
}

// HandleXPHistory — GET /api/user/xp-history?limit=N.
func (h *Handler) HandleXPHistory(c *gin.Context) {
	p, ok := middleware.CurrentUser(c)
	if !ok {
		respond.Error(c, common.ErrUnauthorized)
		return
	}

	limit := MaxHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respond.Fail(c, http.StatusBadRequest, "Неверный limit")
			return
		}
		limit = n
	}

	entries, err := h.service.XPHistory(c.Request.Context(), p.UserID, limit)
	if err != nil {
		respond.Error(c, err)
		return
	}
	if entries == nil {
		entries = []*XPEntry{}
	}
	respond.OK(c, http.StatusOK, gin.H{"history": entries})
}

// HandleAdd — POST /api/habits.
func (h *Handler) HandleAdd(c *gin.Context) {
	var in HabitInput
	if !bind(c, &in) {
		return
	}
	h.run(c, http.StatusCreated, func(p *middleware.Principal) (*Result, error) {
		return h.service.AddHabit(c.Request.Context(), p.UserID, in)
	})
}

// HandleEdit — PATCH /api/habits/:id.
func (h *Handler) HandleEdit(c *gin.Context) {
	var patch HabitPatch
	if !bind(c, &patch) {
		return
	}
	h.run(c, http.StatusOK, func(p *middleware.Principal) (*Result, error) {
		return h.service.EditHabit(c.Request.Context(), p.UserID, c.Param("id"), patch)
	})
}

// HandleDelete — DELETE /api/habits/:id.
func (h *Handler) HandleDelete(c *gin.Context) {
	h.run(c, http.StatusOK, func(p *middleware.Principal) (*Result, error) {
		return h.service.DeleteHabit(c.Request.Context(), p.UserID, c.Param("id"))
	})
}

// HandleComplete — POST /api/habits/:id/complete.
func (h *Handler) HandleComplete(c *gin.Context) {
	h.run(c, http.StatusOK, func(p *middleware.Principal) (*Result, error) {
		return h.service.Complete(c.Request.Context(), p.UserID, c.Param("id"))
	})
}

// HandleToggle — POST /api/habits/:id/toggle. Пустое тело или пустая дата — сегодня.
func (h *Handler) HandleToggle(c *gin.Context) {
	var req toggleRequest
	if !bindOptional(c, &req) {
		return
	}

	var date *civil.Date
	if s := strings.TrimSpace(req.Date); s != "" {
		d, err := common.ParseDate(s)
		if err != nil {
			respond.Error(c, err)
			return
		}
		date = &d
	}

	h.run(c, http.StatusOK, func(p *middleware.Principal) (*Result, error) {
		return h.service.Toggle(c.Request.Context(), p.UserID, c.Param("id"), date)
	})
}

// HandleArchive — POST /api/habits/:id/archive. Без тела архивирует.
func (h *Handler) HandleArchive(c *gin.Context) {
	var req archiveRequest
	if !bindOptional(c, &req) {
		return
	}
	archived := req.Archived == nil || *req.Archived

	h.run(c, http.StatusOK, func(p *middleware.Principal) (*Result, error) {
		return h.service.SetArchived(c.Request.Context(), p.UserID, c.Param("id"), archived)
	})
}

// run выполняет операцию от имени пользователя запроса и отдаёт результат.
func (h *Handler) run(c *gin.Context, status int, op func(p *middleware.Principal) (*Result, error)) {
	p, ok := middleware.CurrentUser(c)
	if !ok {
		respond.Error(c, common.ErrUnauthorized)
		return
	}

	res, err := op(p)
	if err != nil {
		respond.Error(c, err)
		return
	}

	body := viewBody(res.View)
	body["outcome"] = res.Outcome
	if res.Habit != nil {
		body["habit"] = res.Habit
	}
	respond.OK(c, status, body)
}

func viewBody(v *View) gin.H {
	return gin.H{
		"state":    v.State,
		"progress": v.Progress,
		"today":    v.Today,
	}
}

// bindOptional разбирает необязательное тело. Пустое тело, в том числе
// chunked без Content-Length, оставляет dst нулевым.
func bindOptional(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 || c.Request.Body == nil {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		respond.Fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return false
	}
	return true
}

func bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respond.Fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return false
	}
	return true
}
