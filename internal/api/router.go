// Package api собирает HTTP-маршруты сервиса.
// router.go подключает общие middleware и обработчики фич к gin.Engine.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/habit-tracker/internal/api/middleware"
	"serotonyl.ru/habit-tracker/internal/api/respond"
	"serotonyl.ru/habit-tracker/internal/features/admin"
	"serotonyl.ru/habit-tracker/internal/features/communities"
	"serotonyl.ru/habit-tracker/internal/features/habits"
	"serotonyl.ru/habit-tracker/internal/features/users"
	"serotonyl.ru/habit-tracker/internal/metrics"
)

// Deps — всё, что нужно роутеру.
type Deps struct {
	Authenticator middleware.Authenticator
	Users         *users.Handler
	Habits        *habits.Handler
	Communities   *communities.Handler // nil, если фича выключена
	Admin         *admin.Handler

	Metrics     *metrics.Metrics // nil, если метрики выключены
	AuthLimiter *middleware.RateLimiter
	CORSOrigins []string
	Health      func(ctx context.Context) error
}

// NewRouter создаёт gin.Engine со всеми маршрутами.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logger(d.Metrics), middleware.CORS(d.CORSOrigins))

	r.GET("/healthz", func(c *gin.Context) {
		if d.Health != nil {
			if err := d.Health(c.Request.Context()); err != nil {
				log.WithError(err).Warn("Проверка здоровья не прошла")
				respond.Fail(c, http.StatusServiceUnavailable, "База данных недоступна")
				return
			}
		}
		respond.OK(c, http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	public := r.Group("/api")
	auth := public.Group("/auth")
	if d.AuthLimiter != nil {
		auth.Use(d.AuthLimiter.Middleware())
	}
	protected := public.Group("", middleware.RequireAuth(d.Authenticator))
	adminGroup := protected.Group("/admin", middleware.RequireAdmin())

	d.Users.Register(auth, protected)
	d.Habits.Register(protected)
	if d.Communities != nil {
		d.Communities.Register(public, protected)
	}
	d.Admin.Register(adminGroup)

	r.NoRoute(func(c *gin.Context) {
		respond.Fail(c, http.StatusNotFound, "Не найдено")
	})
	return r
}
