package middleware

import (
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/habit-tracker/internal/api/respond"
	"serotonyl.ru/habit-tracker/internal/common"
)

// RequireAdmin пропускает только администратора. Ставится после RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := CurrentUser(c)
		if !ok {
			log.WithField("component", "AdminFilter").Error("нет пользователя в контексте (RequireAuth не подключен?)")
			respond.Error(c, common.ErrUnauthorized)
			return
		}

		logger := log.WithFields(log.Fields{
			"component": "AdminFilter",
			"user_id":   p.UserID,
			"username":  p.Username,
			"path":      c.FullPath(),
		})

		if !p.IsAdmin {
			logger.Info("deny: not admin")
			respond.Error(c, common.ErrNotAdmin)
			return
		}

		logger.Debug("allow: admin")
		c.Next()
	}
}
